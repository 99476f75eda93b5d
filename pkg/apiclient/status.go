package apiclient

import (
	"context"
	"errors"

	"github.com/marmos91/ftserve/pkg/adapter"
)

// Liveness is the payload of GET /health.
type Liveness struct {
	Service   string `json:"service"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
}

// Readiness is the payload of GET /health/ready.
type Readiness struct {
	Ready         bool   `json:"ready"`
	ActiveWorkers int    `json:"active_workers"`
	Reason        string `json:"reason,omitempty"`
}

// Health calls the liveness probe.
func (c *Client) Health(ctx context.Context) (*Liveness, error) {
	var live Liveness
	if err := c.get(ctx, "/health", &live); err != nil {
		return nil, err
	}
	return &live, nil
}

// Ready calls the readiness probe. A 503 is not an error: it is reported
// as Ready false with the server's reason.
func (c *Client) Ready(ctx context.Context) (*Readiness, error) {
	var ready Readiness
	err := c.get(ctx, "/health/ready", &ready)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsUnavailable() {
			return &Readiness{Reason: apiErr.Message}, nil
		}
		return nil, err
	}
	ready.Ready = true
	return &ready, nil
}

// Workers lists the server's worker registry.
func (c *Client) Workers(ctx context.Context) ([]adapter.WorkerStatus, error) {
	workers := []adapter.WorkerStatus{}
	if err := c.get(ctx, "/api/v1/workers", &workers); err != nil {
		return nil, err
	}
	return workers, nil
}
