package event

import (
	"errors"
	"fmt"
	"time"
)

// Dataset is the canonical stream identifier an event belongs to.
type Dataset string

const (
	DatasetPOS       Dataset = "pos_transactions"
	DatasetRFID      Dataset = "rfid_readings"
	DatasetVision    Dataset = "product_recognition"
	DatasetQueue     Dataset = "queue_monitoring"
	DatasetInventory Dataset = "inventory_snapshots"
)

// Sentinel errors for the normalization boundary.
var (
	ErrUnknownDataset      = errors.New("unknown dataset alias")
	ErrMalformedTimestamp  = errors.New("malformed timestamp")
	ErrMissingEventPayload = errors.New("frame missing event payload")
)

// aliases maps every accepted dataset spelling (simulator names included)
// to its canonical dataset. Every alias maps to exactly one dataset.
var aliases = map[string]Dataset{
	"pos_transactions":       DatasetPOS,
	"POS_Transactions":       DatasetPOS,
	"rfid_readings":          DatasetRFID,
	"RFID_data":              DatasetRFID,
	"product_recognition":    DatasetVision,
	"Product_recognism":      DatasetVision,
	"queue_monitoring":       DatasetQueue,
	"Queue_monitor":          DatasetQueue,
	"inventory_snapshots":    DatasetInventory,
	"Current_inventory_data": DatasetInventory,
}

// Canonical resolves a dataset alias to its canonical Dataset.
// Unknown aliases are a hard error, not a guess.
func Canonical(alias string) (Dataset, error) {
	if ds, ok := aliases[alias]; ok {
		return ds, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDataset, alias)
}

// Datasets returns the canonical dataset set in stable order.
func Datasets() []Dataset {
	return []Dataset{DatasetPOS, DatasetRFID, DatasetVision, DatasetQueue, DatasetInventory}
}

// Event is the canonical representation of one ingested frame.
// It is immutable once produced by the normalizer.
type Event struct {
	Dataset   Dataset        `json:"dataset"`
	Timestamp time.Time      `json:"timestamp"`
	StationID string         `json:"station_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Payload   map[string]any `json:"payload"`
	Sequence  int64          `json:"sequence,omitempty"` // -1 when the frame carried none
}

// timestamp layouts accepted from the simulator and dataset files, tried in order.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601-ish timestamp value. A trailing "Z"
// means UTC; naive timestamps are taken as UTC.
func ParseTimestamp(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range tsLayouts {
			if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, v)
	default:
		return time.Time{}, fmt.Errorf("%w: %v (%T)", ErrMalformedTimestamp, value, value)
	}
}
