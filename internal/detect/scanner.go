package detect

import (
	"time"

	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/normalize"
)

const (
	recentScanWindow  = 25 * time.Second
	rfidTTL           = 60 * time.Second
	avoidanceCooldown = 30 * time.Second
)

// suspiciousLocations are RFID read locations an unsold item should not reach.
var suspiciousLocations = map[string]struct{}{
	"EXIT_GATE":           {},
	"EXIT_LANE":           {},
	"CUSTOMER_EXIT":       {},
	"OUT_OF_STORE":        {},
	"BAGGING_AREA_BREACH": {},
	"UNKNOWN":             {},
}

// highRiskLocations raise the alert confidence from 0.75 to 0.9.
var highRiskLocations = map[string]struct{}{
	"CUSTOMER_EXIT": {},
	"OUT_OF_STORE":  {},
}

type rfidObservation struct {
	sku      string
	location string
	seenAt   time.Time
}

// ScannerAvoidance flags RFID reads at suspicious locations that are
// not corroborated by a recent POS scan of the same SKU.
type ScannerAvoidance struct {
	lastScanBySKU map[string]time.Time       // SKU -> last POS scan
	rfidByEPC     map[string]rfidObservation // EPC -> last observation
	lastAlert     map[string]time.Time       // EPC -> cooldown anchor
}

func NewScannerAvoidance() *ScannerAvoidance {
	d := &ScannerAvoidance{}
	d.Reset()
	return d
}

func (d *ScannerAvoidance) Name() string { return "scanner_avoidance" }

func (d *ScannerAvoidance) Reset() {
	d.lastScanBySKU = make(map[string]time.Time)
	d.rfidByEPC = make(map[string]rfidObservation)
	d.lastAlert = make(map[string]time.Time)
}

func (d *ScannerAvoidance) Detect(ev *event.Event) []Alert {
	now := ev.Timestamp
	d.expire(now)

	if ev.Dataset == event.DatasetPOS {
		if pos := normalize.POS(ev); pos.SKU != "" {
			d.lastScanBySKU[pos.SKU] = now
		}
		return nil
	}
	if ev.Dataset != event.DatasetRFID {
		return nil
	}

	r := normalize.RFID(ev)
	if r.EPC == "" || r.Location == "" {
		return nil
	}
	obs := rfidObservation{sku: r.SKU, location: r.Location, seenAt: now}
	d.rfidByEPC[r.EPC] = obs

	if _, suspicious := suspiciousLocations[obs.location]; !suspicious {
		return nil
	}

	var lastScan time.Time
	if obs.sku != "" {
		lastScan = d.lastScanBySKU[obs.sku]
	}
	if !lastScan.IsZero() && now.Sub(lastScan) <= recentScanWindow {
		return nil
	}
	if last, ok := d.lastAlert[r.EPC]; ok && now.Sub(last) <= avoidanceCooldown {
		return nil
	}
	d.lastAlert[r.EPC] = now

	confidence := 0.75
	if _, high := highRiskLocations[obs.location]; high {
		confidence = 0.9
	}

	evidence := map[string]any{
		"epc":      r.EPC,
		"sku":      obs.sku,
		"location": obs.location,
	}
	if !lastScan.IsZero() {
		evidence["last_pos_scan_ts"] = lastScan
	}

	station := ev.StationID
	if station == "" {
		station = "unknown"
	}
	return []Alert{{
		Type:              TypeScannerAvoidance,
		StationID:         station,
		Timestamp:         now,
		Confidence:        confidence,
		Evidence:          evidence,
		RecommendedAction: "Intercept the customer at the exit and verify the item against the receipt.",
	}}
}

func (d *ScannerAvoidance) expire(now time.Time) {
	for sku, ts := range d.lastScanBySKU {
		if now.Sub(ts) > recentScanWindow {
			delete(d.lastScanBySKU, sku)
		}
	}
	for epc, obs := range d.rfidByEPC {
		if now.Sub(obs.seenAt) > rfidTTL {
			delete(d.rfidByEPC, epc)
		}
	}
	for epc, ts := range d.lastAlert {
		if now.Sub(ts) > avoidanceCooldown {
			delete(d.lastAlert, epc)
		}
	}
}
