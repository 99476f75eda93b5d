package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorGray    = "\033[90m"
)

// workerTagLen is how much of a worker UUID is shown in the line header.
const workerTagLen = 8

// ColorTextHandler implements slog.Handler with colored, human-oriented
// output:
//
//	[2026-01-02 15:04:05] [INFO] [w:1a2b3c4d] Transfer complete bytes=5000 chunks=5
//
// A worker_id attribute is lifted into the header so concurrent workers can
// be told apart at a glance.
type ColorTextHandler struct {
	opts     *slog.HandlerOptions
	w        io.Writer
	mu       *sync.Mutex
	attrs    []slog.Attr
	prefix   string // dotted group path applied to record attrs
	workerID string
	useColor bool
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *ColorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ColorTextHandler{
		opts:     opts,
		w:        w,
		mu:       &sync.Mutex{},
		useColor: useColor,
	}
}

// Enabled reports whether the handler handles records at the given level
func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats and writes a log record
func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	workerID := h.workerID
	recAttrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == KeyWorkerID && h.prefix == "" {
			workerID = a.Value.String()
			return true
		}
		recAttrs = append(recAttrs, a)
		return true
	})

	buf := make([]byte, 0, 256)
	buf = fmt.Appendf(buf, "[%s] [%s]", r.Time.Format("2006-01-02 15:04:05"), h.formatLevel(r.Level))
	if workerID != "" {
		buf = append(buf, ' ')
		buf = append(buf, h.paint(colorMagenta, "[w:"+shortID(workerID)+"]")...)
	}
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	for _, a := range h.attrs {
		buf = h.appendAttr(buf, "", a)
	}
	for _, a := range recAttrs {
		buf = h.appendAttr(buf, h.prefix, a)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *ColorTextHandler) formatLevel(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return h.paint(colorGray, "DEBUG")
	case level < slog.LevelWarn:
		return h.paint(colorGreen, "INFO")
	case level < slog.LevelError:
		return h.paint(colorYellow, "WARN")
	default:
		return h.paint(colorRed, "ERROR")
	}
}

func (h *ColorTextHandler) paint(color, s string) string {
	if !h.useColor {
		return s
	}
	return color + s + colorReset
}

// appendAttr formats a as key=value, flattening groups into dotted keys.
func (h *ColorTextHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	a.Value = a.Value.Resolve()

	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, key, ga)
		}
		return buf
	}

	return fmt.Appendf(buf, " %s=%s", h.paint(colorCyan, key), formatValue(a.Value))
}

// formatValue formats a slog.Value for text output. Strings containing
// spaces or quotes are quoted so lines stay splittable on whitespace.
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}

func shortID(id string) string {
	if len(id) > workerTagLen {
		return id[:workerTagLen]
	}
	return id
}

// WithAttrs returns a new handler with additional attrs. A worker_id among
// them becomes the handler's header tag.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		if a.Key == KeyWorkerID && h.prefix == "" {
			clone.workerID = a.Value.String()
			continue
		}
		if h.prefix != "" {
			a = slog.Attr{Key: h.prefix + "." + a.Key, Value: a.Value}
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup returns a new handler that prefixes later attrs with name.
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.prefix == "" {
		clone.prefix = name
	} else {
		clone.prefix = clone.prefix + "." + name
	}
	return &clone
}
