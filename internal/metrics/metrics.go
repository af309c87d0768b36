package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanewatch_events_enqueued_total",
		Help: "Total number of events placed on the processing queue.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanewatch_events_processed_total",
		Help: "Total number of events fully processed by the pipeline.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanewatch_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	FramesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanewatch_frames_ingested_total",
		Help: "Total number of stream frames read, labelled by source.",
	}, []string{"source"})

	FramesMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanewatch_frames_malformed_total",
		Help: "Total number of frames skipped as malformed, labelled by source.",
	}, []string{"source"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanewatch_alerts_emitted_total",
		Help: "Total number of detector alerts, labelled by alert type.",
	}, []string{"type"})

	CorrelationsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanewatch_correlations_emitted_total",
		Help: "Total number of corroborated POS correlations.",
	})

	SuspiciousEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanewatch_suspicious_emitted_total",
		Help: "Total number of suspicious-transaction findings.",
	})

	IncidentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanewatch_incidents_recorded_total",
		Help: "Total number of queue incidents, labelled by incident type.",
	}, []string{"type"})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lanewatch_event_processing_duration_ms",
		Help:    "End-to-end event processing latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lanewatch_queue_utilization_ratio",
		Help: "Current event queue utilization (0–1).",
	})
)
