// Package correlate time-aligns RFID, POS, and computer-vision
// observations per checkout station to confirm or flag transactions.
package correlate

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/normalize"
)

const (
	// DefaultWindow is the sliding correlation window.
	DefaultWindow = 30 * time.Second
	// DefaultMaxHistory bounds the recent correlation/suspicious buffers.
	DefaultMaxHistory = 600

	correlationThreshold   = 0.6
	lowConfidenceThreshold = 0.5

	// Dedup keys older than this many windows are evicted; beyond that
	// age no windowed data can re-derive the same emission, so the
	// at-most-once invariant is preserved while memory stays bounded.
	dedupRetentionWindows = 20
)

type streamKind int

const (
	streamOther streamKind = iota
	streamRFID
	streamPOS
	streamVision
)

type observation struct {
	kind      streamKind
	stationID string
	at        time.Time
	ev        *event.Event
}

type dedupKey struct {
	station string
	sku     string
	second  int64 // POS timestamp truncated to the second
}

// Correlation is a confirmed checkout: POS corroborated by RFID and/or vision.
type Correlation struct {
	EventType     string         `json:"event_type"`
	StationID     string         `json:"station_id"`
	Timestamp     time.Time      `json:"timestamp"`
	SKU           string         `json:"sku"`
	Confidence    float64        `json:"confidence"`
	RFIDMatches   int            `json:"rfid_matches"`
	VisionMatches int            `json:"vision_matches"`
	TimeAlignment float64        `json:"time_alignment"`
	POSPayload    map[string]any `json:"pos_payload"`
}

// Suspicious is a checkout flagged with one or more reasons.
type Suspicious struct {
	EventType  string         `json:"event_type"`
	StationID  string         `json:"station_id"`
	Timestamp  time.Time      `json:"timestamp"`
	SKU        string         `json:"sku"`
	Reasons    []string       `json:"reasons"`
	Confidence float64        `json:"confidence"`
	POSPayload map[string]any `json:"pos_payload"`
}

// Summary is the pull-based snapshot served to dashboards.
type Summary struct {
	WindowSeconds      int           `json:"window_seconds"`
	RecentCorrelations []Correlation `json:"recent_correlations"`
	RecentSuspicious   []Suspicious  `json:"recent_suspicious"`
	TopCorrelatedSKUs  []KeyCount    `json:"top_correlated_skus"`
	StationsUnderWatch []KeyCount    `json:"stations_under_watch"`
}

// KeyCount is one (key, count) aggregate entry.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Correlator joins the three streams over a sliding window. All state
// is owned by the instance; a single mutex serializes concurrent
// ingestion sources.
type Correlator struct {
	mu      sync.Mutex
	window  time.Duration
	maxHist int

	events []observation // time-ordered by arrival, pruned eagerly

	correlated []Correlation // ring buffer, most-recent maxHist
	suspicious []Suspicious

	seenCorrelations map[dedupKey]time.Time
	seenSuspicious   map[dedupKey]time.Time
}

// New creates a Correlator. Non-positive arguments use the defaults.
func New(window time.Duration, maxHistory int) *Correlator {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	c := &Correlator{window: window, maxHist: maxHistory}
	c.reset()
	return c
}

func (c *Correlator) reset() {
	c.events = nil
	c.correlated = nil
	c.suspicious = nil
	c.seenCorrelations = make(map[dedupKey]time.Time)
	c.seenSuspicious = make(map[dedupKey]time.Time)
}

// Reset clears all windows, histories, and dedup state.
func (c *Correlator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Window returns the correlation window duration.
func (c *Correlator) Window() time.Duration { return c.window }

// Register records a canonical event and returns any newly derived
// correlations and suspicious findings.
func (c *Correlator) Register(ev *event.Event) ([]Correlation, []Suspicious) {
	c.mu.Lock()
	defer c.mu.Unlock()

	station := ev.StationID
	if station == "" {
		station = "UNKNOWN"
	}
	obs := observation{kind: kindOf(ev.Dataset), stationID: station, at: ev.Timestamp, ev: ev}
	c.events = append(c.events, obs)
	c.prune(ev.Timestamp)

	correlations, suspicious := c.evaluateStation(station)
	for _, corr := range correlations {
		c.correlated = appendBounded(c.correlated, corr, c.maxHist)
	}
	for _, susp := range suspicious {
		c.suspicious = appendBounded(c.suspicious, susp, c.maxHist)
	}
	return correlations, suspicious
}

func kindOf(ds event.Dataset) streamKind {
	switch ds {
	case event.DatasetRFID:
		return streamRFID
	case event.DatasetPOS:
		return streamPOS
	case event.DatasetVision:
		return streamVision
	}
	return streamOther
}

func (c *Correlator) prune(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.events) && c.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.events = append(c.events[:0], c.events[i:]...)
	}

	dedupCutoff := now.Add(-time.Duration(dedupRetentionWindows) * c.window)
	for key, ts := range c.seenCorrelations {
		if ts.Before(dedupCutoff) {
			delete(c.seenCorrelations, key)
		}
	}
	for key, ts := range c.seenSuspicious {
		if ts.Before(dedupCutoff) {
			delete(c.seenSuspicious, key)
		}
	}
}

func (c *Correlator) evaluateStation(station string) ([]Correlation, []Suspicious) {
	var rfid, pos, vision []observation
	for _, obs := range c.events {
		if obs.stationID != station {
			continue
		}
		switch obs.kind {
		case streamRFID:
			rfid = append(rfid, obs)
		case streamPOS:
			pos = append(pos, obs)
		case streamVision:
			vision = append(vision, obs)
		}
	}

	var correlations []Correlation
	var suspicious []Suspicious
	for _, posObs := range pos {
		corr, susp := c.assessPOS(station, posObs, rfid, vision)
		correlations = append(correlations, corr...)
		suspicious = append(suspicious, susp...)
	}
	return correlations, suspicious
}

func (c *Correlator) assessPOS(station string, posObs observation, rfid, vision []observation) ([]Correlation, []Suspicious) {
	sku := normalize.ExtractSKU(posObs.ev)
	if sku == "" {
		return nil, nil
	}

	var rfidMatches, visionMatches []observation
	for _, obs := range rfid {
		if normalize.ExtractSKU(obs.ev) == sku {
			rfidMatches = append(rfidMatches, obs)
		}
	}
	for _, obs := range vision {
		if normalize.ExtractSKU(obs.ev) == sku {
			visionMatches = append(visionMatches, obs)
		}
	}

	alignment := c.timeAlignment(posObs.at, append(rfidMatches, visionMatches...))
	confidence := confidenceScore(len(rfidMatches) > 0, len(visionMatches) > 0, alignment)

	var correlations []Correlation
	key := dedupKey{station: station, sku: sku, second: posObs.at.Truncate(time.Second).Unix()}
	if confidence >= correlationThreshold {
		if _, seen := c.seenCorrelations[key]; !seen {
			c.seenCorrelations[key] = posObs.at
			correlations = append(correlations, Correlation{
				EventType:     "correlated_checkout",
				StationID:     station,
				Timestamp:     posObs.at,
				SKU:           sku,
				Confidence:    round2(confidence),
				RFIDMatches:   len(rfidMatches),
				VisionMatches: len(visionMatches),
				TimeAlignment: round2(alignment),
				POSPayload:    posObs.ev.Payload,
			})
		}
	}

	suspicious := c.assessSuspicion(station, sku, posObs, rfidMatches, vision, visionMatches, confidence, key)
	return correlations, suspicious
}

func (c *Correlator) assessSuspicion(
	station, sku string,
	posObs observation,
	rfidMatches, visionEvents, visionMatches []observation,
	confidence float64,
	key dedupKey,
) []Suspicious {
	var reasons []string
	if len(rfidMatches) == 0 {
		reasons = append(reasons, "Missing RFID")
	}
	if len(visionMatches) == 0 {
		reasons = append(reasons, "Missing Vision")
	}

	visionPredictions := make(map[string]struct{})
	for _, obs := range visionEvents {
		if candidate := normalize.ExtractSKU(obs.ev); candidate != "" {
			visionPredictions[candidate] = struct{}{}
		}
	}
	if len(visionPredictions) > 0 {
		if _, ok := visionPredictions[sku]; !ok {
			reasons = append(reasons, "Vision mismatch")
		}
	}

	rfidSKUs := make(map[string]struct{})
	for _, obs := range rfidMatches {
		if candidate := normalize.ExtractSKU(obs.ev); candidate != "" {
			rfidSKUs[candidate] = struct{}{}
		}
	}
	if len(rfidMatches) > 0 {
		if _, ok := rfidSKUs[sku]; !ok {
			reasons = append(reasons, "RFID mismatch")
		}
	}

	if confidence < lowConfidenceThreshold {
		reasons = append(reasons, "Low confidence correlation")
	}

	if len(reasons) == 0 {
		return nil
	}
	if _, seen := c.seenSuspicious[key]; seen {
		return nil
	}
	c.seenSuspicious[key] = posObs.at

	return []Suspicious{{
		EventType:  "suspicious_checkout",
		StationID:  station,
		Timestamp:  posObs.at,
		SKU:        sku,
		Reasons:    reasons,
		Confidence: round2(confidence),
		POSPayload: posObs.ev.Payload,
	}}
}

// timeAlignment is max(0, 1 - minDiff/W), 0 when there are no matches.
func (c *Correlator) timeAlignment(pivot time.Time, matches []observation) float64 {
	if len(matches) == 0 {
		return 0
	}
	minDiff := math.Inf(1)
	for _, obs := range matches {
		if d := math.Abs(pivot.Sub(obs.at).Seconds()); d < minDiff {
			minDiff = d
		}
	}
	windowSec := math.Max(c.window.Seconds(), 1)
	return math.Max(0, 1-minDiff/windowSec)
}

// confidenceScore layers evidence on a POS foundation of 0.35,
// capped at 1.0.
func confidenceScore(hasRFID, hasVision bool, alignment float64) float64 {
	score := 0.35
	if hasRFID {
		score += 0.35
	}
	if hasVision {
		score += 0.22
	}
	score += math.Min(0.08, alignment*0.1)
	return math.Min(score, 1.0)
}

// RecentCorrelations returns the most recent correlations, oldest first.
func (c *Correlator) RecentCorrelations(limit int) []Correlation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tail(c.correlated, limit)
}

// RecentSuspicious returns the most recent suspicious findings, oldest first.
func (c *Correlator) RecentSuspicious(limit int) []Suspicious {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tail(c.suspicious, limit)
}

// BuildSummary snapshots the correlator for serving. Aggregates are
// recomputed over the bounded history buffers, so counts decay as old
// entries roll off.
func (c *Correlator) BuildSummary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	skuCounts := make(map[string]int, len(c.correlated))
	for _, corr := range c.correlated {
		skuCounts[corr.SKU]++
	}
	stationCounts := make(map[string]int, len(c.suspicious))
	for _, susp := range c.suspicious {
		stationCounts[susp.StationID]++
	}

	return Summary{
		WindowSeconds:      int(c.window.Seconds()),
		RecentCorrelations: tail(c.correlated, 10),
		RecentSuspicious:   tail(c.suspicious, 10),
		TopCorrelatedSKUs:  topN(skuCounts, 5),
		StationsUnderWatch: topN(stationCounts, 5),
	}
}

func appendBounded[T any](buf []T, item T, maxLen int) []T {
	buf = append(buf, item)
	if len(buf) > maxLen {
		buf = append(buf[:0], buf[len(buf)-maxLen:]...)
	}
	return buf
}

func tail[T any](buf []T, limit int) []T {
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}
	out := make([]T, limit)
	copy(out, buf[len(buf)-limit:])
	return out
}

func topN(counts map[string]int, n int) []KeyCount {
	entries := make([]KeyCount, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, KeyCount{Key: k, Count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
