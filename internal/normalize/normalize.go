// Package normalize maps raw heterogeneous payloads into canonical events.
//
// Two frame shapes are accepted: raw dataset payloads
// {timestamp, station_id, status, data:{...}} and stream envelopes
// {dataset, sequence, timestamp, event:{...}}. All field-name fallbacks
// (customer_count vs customers, weight_g vs weight, ...) are resolved
// here so downstream components see one canonical name.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/storeops/lanewatch/internal/event"
)

// Payload normalizes a raw payload belonging to a dataset alias.
// It is a pure function: no shared state, the frame is dropped on error.
func Payload(alias string, payload map[string]any) (*event.Event, error) {
	ds, err := event.Canonical(alias)
	if err != nil {
		return nil, err
	}

	ts, err := event.ParseTimestamp(payload["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", alias, err)
	}

	ev := &event.Event{
		Dataset:   ds,
		Timestamp: ts,
		StationID: stringField(payload, "station_id"),
		Status:    stringField(payload, "status"),
		Payload:   dataMap(payload),
		Sequence:  -1,
	}
	return ev, nil
}

// Frame normalizes a stream envelope: {dataset, sequence, timestamp, event:{...}}.
// The envelope timestamp wins over the inner payload timestamp when both exist.
func Frame(frame map[string]any) (*event.Event, error) {
	alias, _ := frame["dataset"].(string)
	if alias == "" {
		return nil, fmt.Errorf("stream frame: %w: missing dataset", event.ErrUnknownDataset)
	}
	inner, ok := frame["event"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("stream frame %q: %w", alias, event.ErrMissingEventPayload)
	}

	if _, has := inner["timestamp"]; !has {
		if ts, ok := frame["timestamp"]; ok {
			inner = cloneWith(inner, "timestamp", ts)
		}
	}

	ev, err := Payload(alias, inner)
	if err != nil {
		return nil, err
	}
	if seq, ok := intField(frame, "sequence"); ok {
		ev.Sequence = seq
	}
	return ev, nil
}

// Line decodes a newline-delimited JSON frame and normalizes it.
// It accepts both the stream-envelope and the raw-payload shapes.
func Line(raw []byte) (*event.Event, error) {
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if _, ok := frame["event"]; ok {
		return Frame(frame)
	}
	alias, _ := frame["dataset"].(string)
	if alias == "" {
		return nil, fmt.Errorf("frame: %w: missing dataset", event.ErrUnknownDataset)
	}
	return Payload(alias, frame)
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func intField(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// dataMap returns the nested data payload, falling back to the whole
// payload minus envelope keys when no data object is present.
func dataMap(payload map[string]any) map[string]any {
	if data, ok := payload["data"].(map[string]any); ok {
		return data
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case "timestamp", "station_id", "status":
		default:
			out[k] = v
		}
	}
	return out
}

func cloneWith(m map[string]any, key string, val any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = val
	return out
}
