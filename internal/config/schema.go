package config

// Config is the top-level YAML structure.
type Config struct {
	Version     string          `yaml:"version"`
	Server      ServerConf      `yaml:"server"`
	Engine      EngineConf      `yaml:"engine"`
	Correlator  CorrelatorConf  `yaml:"correlator"`
	QueueHealth QueueHealthConf `yaml:"queue_health"`
	Detect      DetectConf      `yaml:"detect"`
	Ingest      IngestConf      `yaml:"ingest"`
	Catalog     CatalogConf     `yaml:"catalog"`
}

// ServerConf holds HTTP serving settings.
type ServerConf struct {
	ListenAddr     string `yaml:"listen_addr"`
	BatchMaxEvents int    `yaml:"batch_max_events"`
}

// EngineConf holds tunable concurrency settings for the pipeline.
type EngineConf struct {
	EventWorkers   int `yaml:"event_workers"`
	QueueDepth     int `yaml:"queue_depth"`
	EventTimeoutMs int `yaml:"event_timeout_ms"`
}

// CorrelatorConf tunes the multi-stream correlator.
type CorrelatorConf struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxHistory    int `yaml:"max_history"`
}

// QueueHealthConf tunes queue scoring and incident detection.
type QueueHealthConf struct {
	TargetPerStation int `yaml:"target_per_station"`
	HistoryLength    int `yaml:"history_length"`
	IncidentHistory  int `yaml:"incident_history"`
}

// DetectConf tunes individual detectors.
type DetectConf struct {
	QueueSpikeTarget int `yaml:"queue_spike_target"`
}

// IngestConf configures the streaming sources. A source with an empty
// address/broker list is disabled.
type IngestConf struct {
	TCP   TCPConf   `yaml:"tcp"`
	Kafka KafkaConf `yaml:"kafka"`
	// Strict propagates malformed-frame errors instead of skipping.
	Strict bool `yaml:"strict"`
}

// TCPConf configures the JSONL stream source.
type TCPConf struct {
	Addr             string `yaml:"addr"`
	BackoffBaseMs    int    `yaml:"backoff_base_ms"`
	BackoffCapMs     int    `yaml:"backoff_cap_ms"`
	MaxRetries       int    `yaml:"max_retries"` // 0 = unlimited
	DialTimeoutMs    int    `yaml:"dial_timeout_ms"`
	MaxLineSizeBytes int    `yaml:"max_line_size_bytes"`
}

// KafkaConf configures the Kafka frame source.
type KafkaConf struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// CatalogConf points at the product reference data.
type CatalogConf struct {
	ProductsCSV string `yaml:"products_csv"`
}
