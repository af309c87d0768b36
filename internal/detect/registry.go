package detect

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/storeops/lanewatch/internal/event"
)

// Detector is the common contract all detector state machines implement.
// Detect must never panic on malformed input; missing fields simply
// suppress emission for that event. Reset clears all keyed state.
type Detector interface {
	Name() string
	Detect(ev *event.Event) []Alert
	Reset()
}

// Registry owns a set of detectors and serializes access to them.
// Concurrent ingestion sources call Process; a single mutex is enough
// because detector critical sections are short and never block on I/O.
type Registry struct {
	mu        sync.Mutex
	detectors []Detector
	log       *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log.With(slog.String("component", "detect"))}
}

// Register appends a detector. Not safe to call concurrently with Process.
func (r *Registry) Register(d Detector) {
	r.detectors = append(r.detectors, d)
}

// Detectors returns the registered detector names.
func (r *Registry) Detectors() []string {
	names := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		names[i] = d.Name()
	}
	return names
}

// Process runs every detector against the event and merges their alerts.
// A failure in one detector is isolated: it is logged and its alert list
// treated as empty, the remaining detectors still run.
func (r *Registry) Process(ev *event.Event) []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	var alerts []Alert
	for _, d := range r.detectors {
		out, err := r.runOne(d, ev)
		if err != nil {
			r.log.Error("detector failed", "detector", d.Name(), "dataset", ev.Dataset, "err", err)
			continue
		}
		alerts = append(alerts, out...)
	}
	return alerts
}

// ResetAll clears every detector's state (used between batch runs and tests).
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.detectors {
		d.Reset()
	}
}

func (r *Registry) runOne(d Detector, ev *event.Event) (alerts []Alert, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			alerts = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return d.Detect(ev), nil
}
