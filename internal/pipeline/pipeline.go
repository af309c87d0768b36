// Package pipeline fans canonical events out to the detectors, the
// correlator, and the queue-health engine through a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storeops/lanewatch/internal/config"
	"github.com/storeops/lanewatch/internal/correlate"
	"github.com/storeops/lanewatch/internal/detect"
	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/metrics"
	"github.com/storeops/lanewatch/internal/queuehealth"
)

// Result is the outcome of processing a single event.
type Result struct {
	Dataset      event.Dataset             `json:"dataset"`
	StationID    string                    `json:"station_id,omitempty"`
	DurationMs   int64                     `json:"duration_ms"`
	Alerts       []detect.Alert            `json:"alerts"`
	Correlations []correlate.Correlation   `json:"correlations,omitempty"`
	Suspicious   []correlate.Suspicious    `json:"suspicious,omitempty"`
	QueueHealth  *queuehealth.HealthReport `json:"queue_health,omitempty"`
}

const alertHistoryLimit = 500

// Pipeline routes events through the analytical components.
type Pipeline struct {
	conf       config.EngineConf
	registry   *detect.Registry
	correlator *correlate.Correlator
	queues     *queuehealth.Service
	pool       *workerPool[*eventWork]
	log        *slog.Logger

	alertMu      sync.Mutex
	recentAlerts []detect.Alert
}

type eventWork struct {
	ev      *event.Event
	resultC chan *Result
}

// New creates a Pipeline using conf and starts the worker pool.
func New(ctx context.Context, conf config.EngineConf, registry *detect.Registry, correlator *correlate.Correlator, queues *queuehealth.Service, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		conf:       conf,
		registry:   registry,
		correlator: correlator,
		queues:     queues,
		log:        log.With(slog.String("component", "pipeline")),
	}
	queues.OnIncident(func(inc queuehealth.Incident) {
		metrics.IncidentsRecorded.WithLabelValues(inc.Type).Inc()
	})

	p.pool = newWorkerPool[*eventWork](ctx, conf.EventWorkers, conf.QueueDepth, func(ctx context.Context, w *eventWork) {
		res := p.processEvent(w.ev)
		if w.resultC != nil {
			w.resultC <- res
		}
	})
	return p
}

// ProcessSync processes an event synchronously and returns the result.
// Returns an error if the queue is full or the event times out.
func (p *Pipeline) ProcessSync(ctx context.Context, ev *event.Event) (*Result, error) {
	resultC := make(chan *Result, 1)
	w := &eventWork{ev: ev, resultC: resultC}

	timeout := time.Duration(p.conf.EventTimeoutMs) * time.Millisecond
	if !p.pool.Submit(w) {
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("event queue full (capacity %d)", p.conf.QueueDepth)
	}
	metrics.EventsEnqueued.Inc()

	select {
	case res := <-resultC:
		return res, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("event processing timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues an event for background processing. Returns false if the queue is full.
func (p *Pipeline) ProcessAsync(ev *event.Event) bool {
	w := &eventWork{ev: ev}
	if !p.pool.Submit(w) {
		metrics.EventsDropped.Inc()
		return false
	}
	metrics.EventsEnqueued.Inc()
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (p *Pipeline) QueueUtilization() float64 {
	if p.pool.QueueCap() == 0 {
		return 0
	}
	return float64(p.pool.QueueLen()) / float64(p.pool.QueueCap())
}

// Registry exposes the detector registry for serving-layer reads.
func (p *Pipeline) Registry() *detect.Registry { return p.registry }

// Correlator exposes the correlator for serving-layer reads.
func (p *Pipeline) Correlator() *correlate.Correlator { return p.correlator }

// Queues exposes the queue-health service for serving-layer reads.
func (p *Pipeline) Queues() *queuehealth.Service { return p.queues }

func (p *Pipeline) processEvent(ev *event.Event) *Result {
	start := time.Now()

	result := &Result{
		Dataset:   ev.Dataset,
		StationID: ev.StationID,
		Alerts:    p.registry.Process(ev),
	}

	switch ev.Dataset {
	case event.DatasetPOS, event.DatasetRFID, event.DatasetVision:
		result.Correlations, result.Suspicious = p.correlator.Register(ev)
	case event.DatasetQueue:
		report := p.queues.IngestEvent(ev)
		result.QueueHealth = &report
	}

	result.DurationMs = time.Since(start).Milliseconds()

	if len(result.Alerts) > 0 {
		p.alertMu.Lock()
		p.recentAlerts = append(p.recentAlerts, result.Alerts...)
		if len(p.recentAlerts) > alertHistoryLimit {
			p.recentAlerts = append(p.recentAlerts[:0], p.recentAlerts[len(p.recentAlerts)-alertHistoryLimit:]...)
		}
		p.alertMu.Unlock()
	}

	metrics.EventsProcessed.Inc()
	metrics.EventProcessingDuration.Observe(float64(result.DurationMs))
	for _, a := range result.Alerts {
		metrics.AlertsEmitted.WithLabelValues(a.Type).Inc()
	}
	metrics.CorrelationsEmitted.Add(float64(len(result.Correlations)))
	metrics.SuspiciousEmitted.Add(float64(len(result.Suspicious)))
	metrics.QueueUtilization.Set(p.QueueUtilization())

	return result
}

// RecentAlerts returns up to limit of the most recent detector alerts,
// oldest first. limit <= 0 returns everything retained.
func (p *Pipeline) RecentAlerts(limit int) []detect.Alert {
	p.alertMu.Lock()
	defer p.alertMu.Unlock()
	if limit <= 0 || limit > len(p.recentAlerts) {
		limit = len(p.recentAlerts)
	}
	out := make([]detect.Alert, limit)
	copy(out, p.recentAlerts[len(p.recentAlerts)-limit:])
	return out
}

// ResetAll clears every component's analytical state.
func (p *Pipeline) ResetAll() {
	p.registry.ResetAll()
	p.correlator.Reset()
	p.queues.Reset()
	p.alertMu.Lock()
	p.recentAlerts = nil
	p.alertMu.Unlock()
	p.log.Info("analytical state reset")
}

// Shutdown drains the pool gracefully.
func (p *Pipeline) Shutdown() {
	p.pool.Drain()
}
