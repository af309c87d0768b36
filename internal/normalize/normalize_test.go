package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/storeops/lanewatch/internal/event"
)

func TestPayload_POS(t *testing.T) {
	ev, err := Payload("POS_Transactions", map[string]any{
		"timestamp":  "2025-08-13T16:00:01Z",
		"station_id": "SCC1",
		"status":     "Active",
		"data": map[string]any{
			"customer_id": "C056",
			"sku":         "PRD_F_14",
			"price":       12.5,
			"weight_g":    "150",
		},
	})
	if err != nil {
		t.Fatalf("Payload error: %v", err)
	}
	if ev.Dataset != event.DatasetPOS {
		t.Errorf("dataset = %q, want pos_transactions", ev.Dataset)
	}
	if ev.StationID != "SCC1" || ev.Status != "Active" {
		t.Errorf("envelope fields = %q/%q", ev.StationID, ev.Status)
	}
	if ev.Sequence != -1 {
		t.Errorf("sequence = %d, want -1", ev.Sequence)
	}

	f := POS(ev)
	if f.SKU != "PRD_F_14" || f.CustomerID != "C056" {
		t.Errorf("POS fields = %+v", f)
	}
	if !f.HasWeight || f.WeightGrams != 150 {
		t.Errorf("weight = %v (has=%v), want 150", f.WeightGrams, f.HasWeight)
	}
}

func TestPayload_Errors(t *testing.T) {
	cases := []struct {
		name    string
		alias   string
		payload map[string]any
		wantErr error
	}{
		{
			name:    "unknown alias",
			alias:   "telemetry",
			payload: map[string]any{"timestamp": "2025-08-13T16:00:01Z"},
			wantErr: event.ErrUnknownDataset,
		},
		{
			name:    "missing timestamp",
			alias:   "pos_transactions",
			payload: map[string]any{"station_id": "SCC1"},
			wantErr: event.ErrMalformedTimestamp,
		},
		{
			name:    "garbage timestamp",
			alias:   "rfid_readings",
			payload: map[string]any{"timestamp": "not-a-time"},
			wantErr: event.ErrMalformedTimestamp,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Payload(tc.alias, tc.payload); !errors.Is(err, tc.wantErr) {
				t.Errorf("Payload error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestFrame(t *testing.T) {
	ev, err := Frame(map[string]any{
		"dataset":   "RFID_data",
		"sequence":  float64(812),
		"timestamp": "2025-08-13T16:00:03Z",
		"event": map[string]any{
			"station_id": "SCC1",
			"data": map[string]any{
				"epc":      "E280116060000000000017A3",
				"sku":      "PRD_X_01",
				"location": "out_of_store",
			},
		},
	})
	if err != nil {
		t.Fatalf("Frame error: %v", err)
	}
	if ev.Dataset != event.DatasetRFID {
		t.Errorf("dataset = %q", ev.Dataset)
	}
	if ev.Sequence != 812 {
		t.Errorf("sequence = %d, want 812", ev.Sequence)
	}
	if want := time.Date(2025, 8, 13, 16, 0, 3, 0, time.UTC); !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want envelope timestamp %v", ev.Timestamp, want)
	}

	f := RFID(ev)
	if f.EPC != "E280116060000000000017A3" || f.SKU != "PRD_X_01" {
		t.Errorf("RFID fields = %+v", f)
	}
	if f.Location != "OUT_OF_STORE" {
		t.Errorf("location = %q, want upper-cased", f.Location)
	}
}

func TestFrame_MissingEvent(t *testing.T) {
	_, err := Frame(map[string]any{"dataset": "pos_transactions", "timestamp": "2025-08-13T16:00:01Z"})
	if !errors.Is(err, event.ErrMissingEventPayload) {
		t.Errorf("Frame error = %v, want ErrMissingEventPayload", err)
	}
}

func TestLine(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{
			name: "stream envelope",
			raw:  `{"dataset":"Queue_monitor","sequence":7,"timestamp":"2025-08-13T16:00:05Z","event":{"station_id":"SCC1","data":{"customer_count":4,"average_dwell_time":75.5}}}`,
			ok:   true,
		},
		{
			name: "raw payload",
			raw:  `{"dataset":"queue_monitoring","timestamp":"2025-08-13T16:00:05Z","station_id":"SCC1","data":{"customers":"6","avg_wait":130}}`,
			ok:   true,
		},
		{name: "not json", raw: `{{{`, ok: false},
		{name: "no dataset", raw: `{"timestamp":"2025-08-13T16:00:05Z"}`, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Line([]byte(tc.raw))
			if tc.ok != (err == nil) {
				t.Fatalf("Line error = %v, want ok=%v", err, tc.ok)
			}
			if err != nil {
				return
			}
			q := Queue(ev)
			if !q.HasCount || !q.HasDwell {
				t.Errorf("queue fields not resolved: %+v", q)
			}
		})
	}
}

func TestQueue_FieldFallbacks(t *testing.T) {
	ev := &event.Event{Payload: map[string]any{"customers": float64(6), "avg_wait": float64(130)}}
	q := Queue(ev)
	if q.CustomerCount != 6 || q.DwellSeconds != 130 {
		t.Errorf("fallback fields = %+v", q)
	}
}

func TestInventoryCounts(t *testing.T) {
	ev := &event.Event{Payload: map[string]any{
		"PRD_A_01": float64(120),
		"PRD_A_02": "80",
		"PRD_A_03": "n/a",
	}}
	counts := InventoryCounts(ev)
	if counts["PRD_A_01"] != 120 || counts["PRD_A_02"] != 80 {
		t.Errorf("counts = %v", counts)
	}
	if _, ok := counts["PRD_A_03"]; ok {
		t.Errorf("uncoercible quantity should be skipped, got %v", counts)
	}
}

func TestExtractSKU(t *testing.T) {
	cases := []struct {
		payload map[string]any
		want    string
	}{
		{map[string]any{"sku": " PRD_F_14 "}, "PRD_F_14"},
		{map[string]any{"predicted_product": "PRD_A_03"}, "PRD_A_03"},
		{map[string]any{"product_id": "PRD_Z_09"}, "PRD_Z_09"},
		{map[string]any{"sku": ""}, ""},
		{map[string]any{}, ""},
	}
	for _, tc := range cases {
		if got := ExtractSKU(&event.Event{Payload: tc.payload}); got != tc.want {
			t.Errorf("ExtractSKU(%v) = %q, want %q", tc.payload, got, tc.want)
		}
	}
}
