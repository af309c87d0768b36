package detect

import "time"

// Alert is one anomaly finding emitted by a detector.
type Alert struct {
	Type              string         `json:"type"`
	StationID         string         `json:"station_id,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	Confidence        float64        `json:"confidence"`
	Evidence          map[string]any `json:"evidence"`
	RecommendedAction string         `json:"recommended_action,omitempty"`
}

// Alert type names, shared with the serving layer.
const (
	TypeBarcodeSwitching     = "barcode_switching"
	TypeScannerAvoidance     = "scanner_avoidance"
	TypeWeightDiscrepancy    = "weight_discrepancy"
	TypeInventoryDiscrepancy = "inventory_discrepancy"
	TypeSystemError          = "system_error"
	TypeQueueSpike           = "queue_spike"
	TypeExtendedWait         = "extended_wait"
)
