// Package api is the HTTP serving layer: ingestion endpoints plus
// pull-based dashboards over the pipeline's analytical state.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storeops/lanewatch/internal/config"
	"github.com/storeops/lanewatch/internal/insight"
	"github.com/storeops/lanewatch/internal/metrics"
	"github.com/storeops/lanewatch/internal/normalize"
	"github.com/storeops/lanewatch/internal/pipeline"
)

const maxBodyBytes = 4 << 20

// Handler holds all HTTP handler dependencies.
type Handler struct {
	pipe     *pipeline.Pipeline
	loader   *config.Loader
	batchMax int
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(pipe *pipeline.Pipeline, loader *config.Loader, batchMax int) http.Handler {
	if batchMax < 1 {
		batchMax = 100
	}
	h := &Handler{pipe: pipe, loader: loader, batchMax: batchMax, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/dashboard", h.dashboard)
	h.mux.HandleFunc("GET /v1/alerts", h.alerts)
	h.mux.HandleFunc("GET /v1/correlations", h.correlations)
	h.mux.HandleFunc("GET /v1/queue-health", h.queueHealth)
	h.mux.HandleFunc("GET /v1/insights", h.insights)
	h.mux.HandleFunc("POST /v1/reset", h.reset)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/events — synchronous single-frame ingestion. Accepts both
// the stream-envelope and the raw-payload frame shapes.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %s", err))
		return
	}
	ev, err := normalize.Line(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.pipe.ProcessSync(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/events/batch — async batch ingestion. Malformed frames are
// counted as rejected without failing the batch.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var frames []json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&frames); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(frames) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one frame")
		return
	}
	if len(frames) > h.batchMax {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(frames), h.batchMax))
		return
	}

	jobID := uuid.New().String()
	queued := 0
	malformed := 0
	for _, raw := range frames {
		ev, err := normalize.Line(raw)
		if err != nil {
			malformed++
			continue
		}
		if h.pipe.ProcessAsync(ev) {
			queued++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":    jobID,
		"total":     len(frames),
		"queued":    queued,
		"malformed": malformed,
		"rejected":  len(frames) - queued - malformed,
	})
}

// GET /v1/dashboard — queue dashboard, correlation summary, recent alerts.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queues":       h.pipe.Queues().DashboardPayload(),
		"correlations": h.pipe.Correlator().BuildSummary(),
		"alerts":       h.pipe.RecentAlerts(50),
	})
}

// GET /v1/alerts — recent detector alerts, oldest first.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.pipe.RecentAlerts(0)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// GET /v1/correlations — correlation summary over the sliding window.
func (h *Handler) correlations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipe.Correlator().BuildSummary())
}

// GET /v1/queue-health?station_id=SCC1 — one station's health report.
func (h *Handler) queueHealth(w http.ResponseWriter, r *http.Request) {
	station := r.URL.Query().Get("station_id")
	if station == "" {
		writeError(w, http.StatusBadRequest, "station_id query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, h.pipe.Queues().Health(station))
}

// GET /v1/insights — KPIs plus staffing and kiosk recommendations.
func (h *Handler) insights(w http.ResponseWriter, r *http.Request) {
	snaps := h.pipe.Queues().AllSnapshots()
	observations := make([]insight.Observation, 0, len(snaps))
	for _, snap := range snaps {
		observations = append(observations, insight.Observation{
			Timestamp:     snap.Timestamp,
			StationID:     snap.StationID,
			CustomerCount: snap.CustomerCount,
			DwellSeconds:  snap.AvgDwellTime,
		})
	}
	report := insight.Generate(insight.ComputeKPIs(observations), h.pipe.RecentAlerts(0))
	writeJSON(w, http.StatusOK, report)
}

// POST /v1/reset — clear all analytical state (demo/replay support).
func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	h.pipe.ResetAll()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// POST /v1/config/reload — re-read the config file from disk.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"version":  cfg.Version,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the event queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.pipe.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
