package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "ftserve", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	// A disabled tracer still hands out usable spans.
	spanCtx, span := StartSpan(ctx, "noop")
	require.NotNil(t, span)
	span.End()
	assert.Empty(t, TraceID(spanCtx))
	assert.Empty(t, SpanID(spanCtx))
}

func TestHelpersWithoutSpan(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		AddEvent(ctx, "event")
		RecordError(ctx, errors.New("boom"))
		RecordError(ctx, nil)
		SetAttributes(ctx, Bytes(1))
	})
}

func newRecorder(t *testing.T, rate float64) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.SampleRate = rate
	shutdown := InitWithExporter(cfg, exporter)
	t.Cleanup(func() { _ = shutdown(context.Background()) })
	return exporter
}

func TestWorkerTrace(t *testing.T) {
	exporter := newRecorder(t, 1.0)
	require.True(t, IsEnabled())

	ctx, root := StartRequestSpan(context.Background(), "w-1", "127.0.0.1", Command("-g"), Filename("a.txt"))
	require.NotEmpty(t, TraceID(ctx))
	require.NotEmpty(t, SpanID(ctx))

	dialCtx, dial := StartDialSpan(ctx, "127.0.0.1:9020")
	AddEvent(dialCtx, EventDialAttempt, Attempt(1))
	dial.End()

	xferCtx, xfer := StartTransferSpan(ctx, "-g")
	SetAttributes(xferCtx, Bytes(5003), Chunks(6))
	xfer.End()

	RecordError(ctx, errors.New("late failure"))
	root.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	require.Contains(t, byName, SpanRequest)
	require.Contains(t, byName, SpanDial)
	require.Contains(t, byName, SpanTransfer)

	rootStub := byName[SpanRequest]
	assert.Equal(t, codes.Error, rootStub.Status.Code)
	assert.Contains(t, rootStub.Attributes, attribute.String(AttrFilename, "a.txt"))
	assert.Contains(t, rootStub.Attributes, attribute.String(AttrWorkerID, "w-1"))

	xferStub := byName[SpanTransfer]
	assert.Equal(t, rootStub.SpanContext.SpanID(), xferStub.Parent.SpanID())
	assert.Contains(t, xferStub.Attributes, attribute.Int(AttrChunks, 6))

	dialStub := byName[SpanDial]
	require.Len(t, dialStub.Events, 1)
	assert.Equal(t, EventDialAttempt, dialStub.Events[0].Name)
}

func TestNeverSample(t *testing.T) {
	exporter := newRecorder(t, 0)

	_, span := StartRequestSpan(context.Background(), "w-2", "127.0.0.1")
	span.End()

	assert.Empty(t, exporter.GetSpans())
}

func TestShutdownDisables(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := DefaultConfig()
	cfg.Enabled = true
	shutdown := InitWithExporter(cfg, exporter)

	require.True(t, IsEnabled())
	require.NoError(t, shutdown(context.Background()))
	assert.False(t, IsEnabled())
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes([]string{"cpu", "goroutines", "block_duration"})
	require.NoError(t, err)
	assert.Len(t, types, 3)

	_, err = parseProfileTypes([]string{"cpu", "heap"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heap")

	_, err = InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"bogus"}})
	assert.Error(t, err)
}
