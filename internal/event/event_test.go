package event

import (
	"errors"
	"testing"
	"time"
)

func TestCanonical(t *testing.T) {
	cases := []struct {
		alias string
		want  Dataset
	}{
		{"pos_transactions", DatasetPOS},
		{"POS_Transactions", DatasetPOS},
		{"rfid_readings", DatasetRFID},
		{"RFID_data", DatasetRFID},
		{"product_recognition", DatasetVision},
		{"Product_recognism", DatasetVision},
		{"queue_monitoring", DatasetQueue},
		{"Queue_monitor", DatasetQueue},
		{"inventory_snapshots", DatasetInventory},
		{"Current_inventory_data", DatasetInventory},
	}
	for _, tc := range cases {
		t.Run(tc.alias, func(t *testing.T) {
			got, err := Canonical(tc.alias)
			if err != nil {
				t.Fatalf("Canonical(%q) error: %v", tc.alias, err)
			}
			if got != tc.want {
				t.Errorf("Canonical(%q) = %q, want %q", tc.alias, got, tc.want)
			}
		})
	}
}

func TestCanonical_Unknown(t *testing.T) {
	for _, alias := range []string{"", "pos", "POS_TRANSACTIONS", "telemetry"} {
		if _, err := Canonical(alias); !errors.Is(err, ErrUnknownDataset) {
			t.Errorf("Canonical(%q) error = %v, want ErrUnknownDataset", alias, err)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  time.Time
	}{
		{"rfc3339 z", "2025-08-13T16:00:01Z", time.Date(2025, 8, 13, 16, 0, 1, 0, time.UTC)},
		{"rfc3339 offset", "2025-08-13T16:00:01+00:00", time.Date(2025, 8, 13, 16, 0, 1, 0, time.UTC)},
		{"naive", "2025-08-13T16:00:01", time.Date(2025, 8, 13, 16, 0, 1, 0, time.UTC)},
		{"space separated", "2025-08-13 16:00:01", time.Date(2025, 8, 13, 16, 0, 1, 0, time.UTC)},
		{"millis", "2025-08-13T16:00:01.250Z", time.Date(2025, 8, 13, 16, 0, 1, 250_000_000, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.value)
			if err != nil {
				t.Fatalf("ParseTimestamp(%v) error: %v", tc.value, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("ParseTimestamp(%v) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

func TestParseTimestamp_Malformed(t *testing.T) {
	for _, value := range []any{nil, 42, "yesterday", "", "13/08/2025"} {
		if _, err := ParseTimestamp(value); !errors.Is(err, ErrMalformedTimestamp) {
			t.Errorf("ParseTimestamp(%v) error = %v, want ErrMalformedTimestamp", value, err)
		}
	}
}
