// Package dataconn establishes the outbound data connection from a worker
// back to the client's listening data port.
package dataconn

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/marmos91/ftserve/internal/logger"
	"github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/internal/telemetry"
	"github.com/marmos91/ftserve/pkg/metrics"
)

// Connect attempt outcomes reported to metrics.
const (
	OutcomeOK      = "ok"
	OutcomeRefused = "refused"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Config controls how the data connection is established.
type Config struct {
	// ConnectDelay is waited once before the first attempt, giving the
	// client time to start listening.
	ConnectDelay time.Duration

	// ConnectTimeout bounds each attempt.
	ConnectTimeout time.Duration

	// MaxRetries is the number of extra attempts after a refused connect.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer connects to client data ports. It is safe for concurrent use.
type Dialer struct {
	cfg      Config
	resolver Resolver
	metrics  metrics.FTMetrics
}

// New creates a Dialer. m may be nil to disable metrics.
func New(cfg Config, m metrics.FTMetrics) *Dialer {
	return &Dialer{cfg: cfg, resolver: net.DefaultResolver, metrics: m}
}

// WithResolver returns a copy of d that resolves hostnames with r.
func (d *Dialer) WithResolver(r Resolver) *Dialer {
	clone := *d
	clone.resolver = r
	return &clone
}

// Dial resolves host and connects to host:port over TCP.
//
// A resolution failure returns an ft.ErrNoSuchHost error. Refused attempts
// are retried with exponential backoff up to MaxRetries; any other failure
// ends the attempts. Both cases return an ft.ErrConnect error.
func (d *Dialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	ip, err := d.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	ctx, span := telemetry.StartDialSpan(ctx, addr)
	defer span.End()

	if d.cfg.ConnectDelay > 0 {
		timer := time.NewTimer(d.cfg.ConnectDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			err := ft.NewError(ft.ErrConnect, "connect "+addr, ctx.Err())
			telemetry.RecordError(ctx, err)
			return nil, err
		}
	}

	var (
		conn    net.Conn
		attempt int
	)
	operation := func() error {
		attempt++
		telemetry.AddEvent(ctx, telemetry.EventDialAttempt, telemetry.Attempt(attempt))

		c, err := d.dialOnce(ctx, addr)
		outcome := classify(err)
		if d.metrics != nil {
			d.metrics.RecordConnectAttempt(outcome)
		}
		if err == nil {
			conn = c
			return nil
		}

		logger.DebugCtx(ctx, "Data connection attempt failed",
			logger.KeyAddress, addr,
			logger.Attempt(attempt),
			logger.Err(err))

		if outcome != OutcomeRefused {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.DebugCtx(ctx, "Retrying data connection",
			logger.KeyAddress, addr,
			logger.Attempt(attempt),
			logger.Backoff(wait))
	}

	if err := backoff.RetryNotify(operation, d.backoff(ctx), notify); err != nil {
		err = ft.NewError(ft.ErrConnect, "connect "+addr, err)
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	telemetry.SetAttributes(ctx, telemetry.Attempt(attempt))
	return conn, nil
}

func (d *Dialer) dialOnce(ctx context.Context, addr string) (net.Conn, error) {
	attemptCtx := ctx
	if d.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.ConnectTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	return dialer.DialContext(attemptCtx, "tcp", addr)
}

func (d *Dialer) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if d.cfg.InitialBackoff > 0 {
		eb.InitialInterval = d.cfg.InitialBackoff
	}
	if d.cfg.MaxBackoff > 0 {
		eb.MaxInterval = d.cfg.MaxBackoff
	}
	// Attempts are bounded by count, not elapsed time.
	eb.MaxElapsedTime = 0

	retries := d.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// resolve returns host unchanged when it is an IP literal, otherwise its
// first resolved address.
func (d *Dialer) resolve(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return "", ft.NewError(ft.ErrNoSuchHost, "resolve "+host, err)
	}
	if len(addrs) == 0 {
		return "", ft.NewError(ft.ErrNoSuchHost, "resolve "+host, errors.New("no addresses"))
	}
	return addrs[0], nil
}

func classify(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return OutcomeRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeError
}
