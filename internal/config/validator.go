package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations whose thresholds cannot work at
// runtime. Defaults are assumed to have been applied already.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Engine.EventWorkers < 1 {
		errs = append(errs, "engine.event_workers must be >= 1")
	}
	if cfg.Engine.QueueDepth < 1 {
		errs = append(errs, "engine.queue_depth must be >= 1")
	}
	if cfg.Engine.EventTimeoutMs < 1 {
		errs = append(errs, "engine.event_timeout_ms must be >= 1")
	}
	if cfg.Correlator.WindowSeconds < 1 {
		errs = append(errs, "correlator.window_seconds must be >= 1")
	}
	if cfg.Correlator.MaxHistory < 1 {
		errs = append(errs, "correlator.max_history must be >= 1")
	}
	if cfg.QueueHealth.TargetPerStation < 1 {
		errs = append(errs, "queue_health.target_per_station must be >= 1")
	}
	if cfg.QueueHealth.HistoryLength < 2 {
		errs = append(errs, "queue_health.history_length must be >= 2")
	}
	if cfg.QueueHealth.IncidentHistory < 1 {
		errs = append(errs, "queue_health.incident_history must be >= 1")
	}
	if cfg.Detect.QueueSpikeTarget < 1 {
		errs = append(errs, "detect.queue_spike_target must be >= 1")
	}
	if cfg.Server.BatchMaxEvents < 1 {
		errs = append(errs, "server.batch_max_events must be >= 1")
	}
	if cfg.Ingest.TCP.BackoffCapMs < cfg.Ingest.TCP.BackoffBaseMs {
		errs = append(errs, "ingest.tcp.backoff_cap_ms must be >= backoff_base_ms")
	}
	if cfg.Ingest.TCP.MaxRetries < 0 {
		errs = append(errs, "ingest.tcp.max_retries must be >= 0")
	}
	if len(cfg.Ingest.Kafka.Brokers) > 0 && cfg.Ingest.Kafka.Topic == "" {
		errs = append(errs, "ingest.kafka.topic is required when brokers are set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
