package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeops/lanewatch/internal/config"
	"github.com/storeops/lanewatch/internal/correlate"
	"github.com/storeops/lanewatch/internal/detect"
	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/queuehealth"
)

var t0 = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T, conf config.EngineConf) *Pipeline {
	t.Helper()
	registry := detect.NewRegistry(nil)
	registry.Register(detect.NewScannerAvoidance())
	registry.Register(detect.NewQueueSpike(6))
	correlator := correlate.New(correlate.DefaultWindow, correlate.DefaultMaxHistory)
	queues := queuehealth.NewService(6, 60, 200)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	p := New(ctx, conf, registry, correlator, queues, nil)
	t.Cleanup(p.Shutdown)
	return p
}

func defaultConf() config.EngineConf {
	return config.EngineConf{EventWorkers: 4, QueueDepth: 64, EventTimeoutMs: 5000}
}

func TestProcessSync_QueueEvent(t *testing.T) {
	p := newTestPipeline(t, defaultConf())

	ev := &event.Event{
		Dataset:   event.DatasetQueue,
		Timestamp: t0,
		StationID: "SCC1",
		Payload:   map[string]any{"customer_count": 3, "average_dwell_time": 45.0},
		Sequence:  -1,
	}
	res, err := p.ProcessSync(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, res.QueueHealth)
	assert.Equal(t, "SCC1", res.QueueHealth.StationID)
	assert.Equal(t, event.DatasetQueue, res.Dataset)
	assert.Empty(t, res.Correlations)
}

func TestProcessSync_POSEventFeedsCorrelator(t *testing.T) {
	p := newTestPipeline(t, defaultConf())

	pos := &event.Event{
		Dataset:   event.DatasetPOS,
		Timestamp: t0,
		StationID: "SCC1",
		Payload:   map[string]any{"sku": "PRD_A_01", "customer_id": "C1"},
		Sequence:  -1,
	}
	res, err := p.ProcessSync(context.Background(), pos)
	require.NoError(t, err)
	assert.Nil(t, res.QueueHealth)
	// POS with no RFID or vision corroboration is suspicious.
	require.NotEmpty(t, res.Suspicious)
	assert.Equal(t, "PRD_A_01", res.Suspicious[0].SKU)

	assert.NotEmpty(t, p.Correlator().RecentSuspicious(10))
}

func TestProcessAsync_QueueFull(t *testing.T) {
	// No workers: submissions stay queued so capacity is observable.
	p := newTestPipeline(t, config.EngineConf{EventWorkers: 0, QueueDepth: 1, EventTimeoutMs: 100})

	ev := &event.Event{Dataset: event.DatasetPOS, Timestamp: t0, StationID: "SCC1", Payload: map[string]any{}, Sequence: -1}
	assert.True(t, p.ProcessAsync(ev))
	assert.False(t, p.ProcessAsync(ev))
	assert.InDelta(t, 1.0, p.QueueUtilization(), 1e-9)
}

func TestProcessAsync_AfterShutdown(t *testing.T) {
	p := newTestPipeline(t, defaultConf())
	p.Shutdown()

	// Submissions racing a shutdown are rejected, not panicking on a
	// closed queue. Shutdown itself is idempotent.
	ev := &event.Event{Dataset: event.DatasetPOS, Timestamp: t0, StationID: "SCC1", Payload: map[string]any{}, Sequence: -1}
	assert.False(t, p.ProcessAsync(ev))
	p.Shutdown()
}

func TestProcessSync_Timeout(t *testing.T) {
	p := newTestPipeline(t, config.EngineConf{EventWorkers: 0, QueueDepth: 4, EventTimeoutMs: 20})

	ev := &event.Event{Dataset: event.DatasetPOS, Timestamp: t0, StationID: "SCC1", Payload: map[string]any{}, Sequence: -1}
	_, err := p.ProcessSync(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestResetAll(t *testing.T) {
	p := newTestPipeline(t, defaultConf())

	pos := &event.Event{
		Dataset:   event.DatasetPOS,
		Timestamp: t0,
		StationID: "SCC1",
		Payload:   map[string]any{"sku": "PRD_A_01"},
		Sequence:  -1,
	}
	_, err := p.ProcessSync(context.Background(), pos)
	require.NoError(t, err)
	require.NotEmpty(t, p.Correlator().RecentSuspicious(10))

	p.ResetAll()
	assert.Empty(t, p.Correlator().RecentSuspicious(10))
	assert.Empty(t, p.Queues().RecentIncidents(0))
}
