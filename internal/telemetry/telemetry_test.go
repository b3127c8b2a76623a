package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	p, err := Init(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, p.Enabled)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Meter)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitEnabledExportsToFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "telemetry")
	ctx := context.Background()
	p, err := Init(ctx, Options{Enabled: true, Dir: dir, Interval: time.Hour, ServiceVersion: "test"})
	require.NoError(t, err)
	assert.True(t, p.Enabled)

	counter, err := p.Meter.Int64Counter("deskrec.test.counter")
	require.NoError(t, err)
	counter.Add(ctx, 2)
	_, span := p.Tracer.Start(ctx, "session.start")
	span.End()

	require.NoError(t, p.Shutdown(ctx))
	assert.NoError(t, p.Shutdown(ctx))

	traces, err := os.ReadFile(filepath.Join(dir, TracesFile))
	require.NoError(t, err)
	assert.Contains(t, string(traces), "session.start")

	metrics, err := os.ReadFile(filepath.Join(dir, MetricsFile))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "deskrec.test.counter")
}

func TestInitEnabledRequiresDir(t *testing.T) {
	_, err := Init(context.Background(), Options{Enabled: true})
	assert.Error(t, err)
}
