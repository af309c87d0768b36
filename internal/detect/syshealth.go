package detect

import (
	"fmt"
	"strings"
	"time"

	"github.com/storeops/lanewatch/internal/event"
)

const healthCooldown = 3 * time.Minute

var errorKeywords = []string{"error", "offline", "crash", "failure", "fault"}

// benignStatuses never count as errors even if a keyword would match.
var benignStatuses = map[string]struct{}{
	"active": {}, "ok": {}, "ready": {}, "online": {},
}

type healthKey struct {
	dataset event.Dataset
	station string
}

type healthState struct {
	lastAlert time.Time
	recovered bool
}

// SystemHealth watches status strings and error codes on every stream
// and raises system_error alerts, with a per-(dataset, station) cooldown.
// A non-error status marks the key recovered so it can alert again once
// the cooldown has elapsed.
type SystemHealth struct {
	states map[healthKey]*healthState
}

func NewSystemHealth() *SystemHealth {
	return &SystemHealth{states: make(map[healthKey]*healthState)}
}

func (d *SystemHealth) Name() string { return "system_health" }

func (d *SystemHealth) Reset() {
	d.states = make(map[healthKey]*healthState)
}

func (d *SystemHealth) Detect(ev *event.Event) []Alert {
	status := strings.TrimSpace(ev.Status)
	if status == "" {
		if s, ok := ev.Payload["status"].(string); ok {
			status = strings.TrimSpace(s)
		}
	}

	var errorCode string
	for _, key := range []string{"error_code", "scan_error", "scan_status", "scanner_state"} {
		raw, ok := ev.Payload[key]
		if !ok {
			continue
		}
		errorCode = stringify(raw)
		if strings.HasPrefix(strings.ToLower(errorCode), "ok") {
			errorCode = ""
			break
		}
		if status == "" {
			status = "error"
		}
		break
	}

	key := healthKey{dataset: ev.Dataset, station: ev.StationID}
	state, ok := d.states[key]
	if !ok {
		state = &healthState{recovered: true}
		d.states[key] = state
	}

	if status == "" {
		state.recovered = true
		return nil
	}
	if !isErrorStatus(status) && errorCode == "" {
		state.recovered = true
		return nil
	}

	now := ev.Timestamp
	if !state.lastAlert.IsZero() && now.Sub(state.lastAlert) < healthCooldown {
		return nil
	}
	state.lastAlert = now
	state.recovered = false

	evidence := map[string]any{
		"dataset": string(ev.Dataset),
		"status":  status,
	}
	if errorCode != "" {
		evidence["error_code"] = errorCode
	}
	return []Alert{{
		Type:              TypeSystemError,
		StationID:         ev.StationID,
		Timestamp:         now,
		Confidence:        0.85,
		Evidence:          evidence,
		RecommendedAction: "Dispatch technician to inspect scanner and restart service pipeline.",
	}}
}

func isErrorStatus(status string) bool {
	lowered := strings.ToLower(status)
	if _, benign := benignStatuses[lowered]; benign {
		return false
	}
	for _, kw := range errorKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
