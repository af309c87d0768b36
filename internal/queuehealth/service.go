// Package queuehealth scores per-station queue risk and raises
// discrete operational incidents.
package queuehealth

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/normalize"
)

// Defaults mirror the store-operations targets the thresholds derive from.
const (
	DefaultTargetPerStation = 6
	DefaultHistoryLength    = 60
	DefaultIncidentHistory  = 200

	dwellWarningSeconds  = 240.0
	dwellCriticalSeconds = 480.0

	trendWindow            = 12
	stagnationThresholdMin = 2.0
	surgeRatioThreshold    = 0.6
)

// Snapshot is one queue observation retained in per-station history.
type Snapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	StationID      string    `json:"station_id"`
	CustomerCount  int       `json:"customer_count"`
	AvgDwellTime   float64   `json:"average_dwell_time"`
	Status         string    `json:"status"`
	ServiceRate    float64   `json:"service_rate"` // customers per minute
	DeltaCustomers int       `json:"delta_customers"`
}

// HealthAlert is a scoring-level flag included in a HealthReport.
type HealthAlert struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// HealthReport is the current composite health of one station.
type HealthReport struct {
	StationID     string        `json:"station_id"`
	HealthScore   float64       `json:"health_score"`
	Status        string        `json:"status"`
	Alerts        []HealthAlert `json:"alerts"`
	CustomerCount int           `json:"customer_count"`
	AvgDwellTime  float64       `json:"average_dwell_time"`
	ServiceRate   float64       `json:"service_rate"`
	Trend         float64       `json:"trend"`
	Volatility    float64       `json:"volatility"`
	Timestamp     time.Time     `json:"timestamp"`
	History       []Snapshot    `json:"history,omitempty"`
}

// Incident is a discrete queue event appended to the global history.
// Never mutated after creation.
type Incident struct {
	IncidentID string         `json:"incident_id"`
	StationID  string         `json:"station_id"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Priority   string         `json:"priority"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata"`
}

// Staffing is the station allocation recommendation.
type Staffing struct {
	Recommendation   string  `json:"recommendation"`
	ActiveStations   int     `json:"active_stations"`
	RequiredStations int     `json:"required_stations"`
	TotalCustomers   int     `json:"total_customers"`
	TargetPerStation int     `json:"target_per_station"`
	EfficiencyRatio  float64 `json:"efficiency_ratio"`
}

// Dashboard is the pull-based serving payload.
type Dashboard struct {
	Timestamp          time.Time      `json:"timestamp"`
	OverallHealthScore float64        `json:"overall_health_score"`
	Stations           []HealthReport `json:"stations"`
	Staffing           Staffing       `json:"staffing"`
	Incidents          []Incident     `json:"incidents"`
}

// Service owns per-station queue history and the incident log.
// A single mutex serializes concurrent ingestion sources.
type Service struct {
	mu sync.Mutex

	target        int
	historyLen    int
	histories     map[string][]Snapshot
	incidents     []Incident
	incidentLimit int

	dwellWarning  float64
	dwellCritical float64
	queueWarning  int
	queueCritical int

	onIncident func(Incident)
}

// NewService creates the engine. Non-positive arguments use defaults.
func NewService(targetPerStation, historyLength, incidentHistory int) *Service {
	if targetPerStation < 1 {
		targetPerStation = DefaultTargetPerStation
	}
	if historyLength < 1 {
		historyLength = DefaultHistoryLength
	}
	if incidentHistory < 1 {
		incidentHistory = DefaultIncidentHistory
	}
	return &Service{
		target:        targetPerStation,
		historyLen:    historyLength,
		histories:     make(map[string][]Snapshot),
		incidentLimit: incidentHistory,
		dwellWarning:  dwellWarningSeconds,
		dwellCritical: dwellCriticalSeconds,
		queueWarning:  targetPerStation + 2,
		queueCritical: targetPerStation * 2,
	}
}

// Target returns the target customers-per-station.
func (s *Service) Target() int { return s.target }

// OnIncident registers a callback invoked for every new incident. The
// callback runs with the service lock held and must not call back in.
func (s *Service) OnIncident(fn func(Incident)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIncident = fn
}

// Reset drops all station history and incidents.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = make(map[string][]Snapshot)
	s.incidents = nil
}

// IngestEvent records a canonical queue-monitoring event.
func (s *Service) IngestEvent(ev *event.Event) HealthReport {
	q := normalize.Queue(ev)
	return s.Ingest(ev.StationID, ev.Timestamp, q.CustomerCount, q.DwellSeconds, ev.Status, nil)
}

// Ingest records one observation and returns the station's updated
// health. serviceRate may be nil, in which case it is derived from
// consecutive snapshots.
func (s *Service) Ingest(stationID string, ts time.Time, customerCount int, dwellSeconds float64, status string, serviceRate *float64) HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stationID == "" {
		stationID = "UNK"
	}
	if status == "" {
		status = "active"
	}

	history := s.histories[stationID]
	var previous *Snapshot
	if len(history) > 0 {
		previous = &history[len(history)-1]
	}

	delta := 0
	if previous != nil {
		delta = customerCount - previous.CustomerCount
	}

	rate := 0.0
	switch {
	case serviceRate != nil:
		rate = *serviceRate
	case previous != nil:
		elapsed := math.Max(ts.Sub(previous.Timestamp).Seconds(), 1)
		serviced := previous.CustomerCount - customerCount
		if serviced < 0 {
			serviced = 0
		}
		rate = float64(serviced) * 60 / elapsed
	}

	snap := Snapshot{
		Timestamp:      ts,
		StationID:      stationID,
		CustomerCount:  customerCount,
		AvgDwellTime:   dwellSeconds,
		Status:         status,
		ServiceRate:    rate,
		DeltaCustomers: delta,
	}
	history = append(history, snap)
	if len(history) > s.historyLen {
		history = append(history[:0], history[len(history)-s.historyLen:]...)
	}
	s.histories[stationID] = history

	for _, inc := range s.detectIncidents(stationID) {
		s.incidents = append(s.incidents, inc)
		if len(s.incidents) > s.incidentLimit {
			s.incidents = append(s.incidents[:0], s.incidents[len(s.incidents)-s.incidentLimit:]...)
		}
		if s.onIncident != nil {
			s.onIncident(inc)
		}
	}

	return s.healthLocked(stationID)
}

// Health returns the current health report for a station.
func (s *Service) Health(stationID string) HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthLocked(stationID)
}

func (s *Service) healthLocked(stationID string) HealthReport {
	history := s.histories[stationID]
	if len(history) == 0 {
		return HealthReport{
			StationID:   stationID,
			HealthScore: 100,
			Status:      "unknown",
			Timestamp:   time.Now().UTC(),
		}
	}

	latest := history[len(history)-1]
	score := 100.0
	var alerts []HealthAlert

	switch {
	case latest.AvgDwellTime >= s.dwellCritical:
		score -= 45
		alerts = append(alerts, HealthAlert{
			Type:     "dwell_time_critical",
			Message:  fmt.Sprintf("%s wait %ds exceeds SLA", stationID, int(latest.AvgDwellTime)),
			Priority: "high",
		})
	case latest.AvgDwellTime >= s.dwellWarning:
		score -= 25
		alerts = append(alerts, HealthAlert{
			Type:     "dwell_time_warning",
			Message:  fmt.Sprintf("%s wait trending high (%ds)", stationID, int(latest.AvgDwellTime)),
			Priority: "medium",
		})
	}

	switch {
	case latest.CustomerCount >= s.queueCritical:
		score -= 30
		alerts = append(alerts, HealthAlert{
			Type:     "queue_congestion",
			Message:  fmt.Sprintf("%s queue critical (%d)", stationID, latest.CustomerCount),
			Priority: "high",
		})
	case latest.CustomerCount >= s.queueWarning:
		score -= 18
		alerts = append(alerts, HealthAlert{
			Type:     "queue_building",
			Message:  fmt.Sprintf("%s queue building (%d)", stationID, latest.CustomerCount),
			Priority: "medium",
		})
	}

	if latest.CustomerCount > 0 && latest.ServiceRate < 1 {
		score -= 12
		alerts = append(alerts, HealthAlert{
			Type:     "service_rate_low",
			Message:  fmt.Sprintf("%s serving %.1f/min", stationID, latest.ServiceRate),
			Priority: "medium",
		})
	}

	trend := calcTrend(history)
	if trend > 0.35 {
		score -= 8
		alerts = append(alerts, HealthAlert{
			Type:     "queue_growth",
			Message:  fmt.Sprintf("%s queue growing %.0f%%", stationID, trend*100),
			Priority: "medium",
		})
	} else if trend < -0.4 {
		score += 3
	}

	volatility := calcVolatility(history)
	if volatility > 0.5 {
		score -= 4
	}

	score = math.Max(0, math.Min(score, 100))

	report := HealthReport{
		StationID:     stationID,
		HealthScore:   math.Round(score*10) / 10,
		Status:        scoreToStatus(score),
		Alerts:        alerts,
		CustomerCount: latest.CustomerCount,
		AvgDwellTime:  math.Round(latest.AvgDwellTime*10) / 10,
		ServiceRate:   math.Round(latest.ServiceRate*100) / 100,
		Trend:         math.Round(trend*1000) / 1000,
		Volatility:    math.Round(volatility*1000) / 1000,
		Timestamp:     latest.Timestamp,
	}
	if n := len(history); n > 0 {
		start := n - 5
		if start < 0 {
			start = 0
		}
		report.History = append([]Snapshot(nil), history[start:]...)
	}
	return report
}

// StaffAllocation recommends how many stations should be open given the
// latest snapshot of every station.
func (s *Service) StaffAllocation() Staffing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staffAllocationLocked()
}

func (s *Service) staffAllocationLocked() Staffing {
	total := 0
	active := 0
	for _, history := range s.histories {
		if len(history) == 0 {
			continue
		}
		total += history[len(history)-1].CustomerCount
		active++
	}
	if active < 1 {
		active = 1
	}
	required := int(math.Ceil(float64(total) / float64(s.target)))
	if required < 1 {
		required = 1
	}

	var recommendation string
	switch {
	case required > active:
		recommendation = fmt.Sprintf("Open %d additional station(s)", required-active)
	case required < active:
		recommendation = fmt.Sprintf("Idle %d station(s) if demand stays low", active-required)
	default:
		recommendation = "Maintain current staffing"
	}

	return Staffing{
		Recommendation:   recommendation,
		ActiveStations:   active,
		RequiredStations: required,
		TotalCustomers:   total,
		TargetPerStation: s.target,
		EfficiencyRatio:  math.Round(float64(total)/float64(active)*100) / 100,
	}
}

// RecentIncidents returns the most recent incidents, oldest first.
func (s *Service) RecentIncidents(limit int) []Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentIncidentsLocked(limit)
}

func (s *Service) recentIncidentsLocked(limit int) []Incident {
	if limit <= 0 || limit > len(s.incidents) {
		limit = len(s.incidents)
	}
	out := make([]Incident, limit)
	copy(out, s.incidents[len(s.incidents)-limit:])
	return out
}

// AllSnapshots returns a copy of every retained queue observation
// across all stations, in no particular order.
func (s *Service) AllSnapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Snapshot
	for _, history := range s.histories {
		out = append(out, history...)
	}
	return out
}

// DashboardPayload snapshots every station plus staffing and incidents.
func (s *Service) DashboardPayload() Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()

	stations := make([]string, 0, len(s.histories))
	for station := range s.histories {
		stations = append(stations, station)
	}
	sort.Strings(stations)

	var cards []HealthReport
	var sum float64
	for _, station := range stations {
		card := s.healthLocked(station)
		if card.Status == "unknown" {
			continue
		}
		cards = append(cards, card)
		sum += card.HealthScore
	}
	overall := 100.0
	if len(cards) > 0 {
		overall = math.Round(sum/float64(len(cards))*10) / 10
	}

	return Dashboard{
		Timestamp:          time.Now().UTC(),
		OverallHealthScore: overall,
		Stations:           cards,
		Staffing:           s.staffAllocationLocked(),
		Incidents:          s.recentIncidentsLocked(10),
	}
}

// ---------------------------------------------------------------------
// Incident detection
// ---------------------------------------------------------------------

func (s *Service) detectIncidents(stationID string) []Incident {
	history := s.histories[stationID]
	if len(history) < 2 {
		return nil
	}
	latest := history[len(history)-1]
	previous := history[len(history)-2]
	var incidents []Incident

	if previous.CustomerCount > 0 {
		surge := float64(latest.CustomerCount-previous.CustomerCount) / float64(previous.CustomerCount)
		if surge >= surgeRatioThreshold && latest.CustomerCount >= s.queueWarning {
			incidents = append(incidents, s.newIncident(stationID, "queue_surge", "Queue surge detected", "high", map[string]any{
				"from":  previous.CustomerCount,
				"to":    latest.CustomerCount,
				"ratio": math.Round(surge*100) / 100,
			}))
		}
	}

	if stagnant := stagnationMinutes(history); stagnant >= stagnationThresholdMin && latest.CustomerCount >= s.queueWarning {
		incidents = append(incidents, s.newIncident(stationID, "stalled_checkout",
			fmt.Sprintf("Queue stagnant for %.1f minutes", stagnant), "high", map[string]any{
				"customer_count": latest.CustomerCount,
				"service_rate":   math.Round(latest.ServiceRate*100) / 100,
			}))
	}

	if latest.CustomerCount == 0 && previous.CustomerCount >= s.target {
		incidents = append(incidents, s.newIncident(stationID, "queue_cleared", "Queue cleared suddenly", "low", map[string]any{
			"previous_customer_count": previous.CustomerCount,
		}))
	}

	if latest.AvgDwellTime >= s.dwellCritical {
		incidents = append(incidents, s.newIncident(stationID, "extreme_wait", "Extreme wait time recorded", "critical", map[string]any{
			"dwell_time": latest.AvgDwellTime,
		}))
	}

	return incidents
}

func (s *Service) newIncident(stationID, incidentType, message, priority string, metadata map[string]any) Incident {
	return Incident{
		IncidentID: uuid.New().String(),
		StationID:  stationID,
		Type:       incidentType,
		Message:    message,
		Priority:   priority,
		Timestamp:  time.Now().UTC(),
		Metadata:   metadata,
	}
}

// ---------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------

func scoreToStatus(score float64) string {
	switch {
	case score >= 85:
		return "optimal"
	case score >= 70:
		return "stable"
	case score >= 50:
		return "at-risk"
	default:
		return "critical"
	}
}

// calcTrend is the relative queue-length change over the trend window.
func calcTrend(history []Snapshot) float64 {
	window := lastN(history, trendWindow)
	if len(window) < 2 {
		return 0
	}
	start := window[0].CustomerCount
	end := window[len(window)-1].CustomerCount
	if start == 0 && end == 0 {
		return 0
	}
	if start == 0 {
		return 1
	}
	return float64(end-start) / float64(start)
}

// calcVolatility is the coefficient of variation of recent counts,
// capped at 1.
func calcVolatility(history []Snapshot) float64 {
	window := lastN(history, trendWindow)
	if len(window) < 3 {
		return 0
	}
	var sum float64
	for _, snap := range window {
		sum += float64(snap.CustomerCount)
	}
	mean := sum / float64(len(window))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, snap := range window {
		d := float64(snap.CustomerCount) - mean
		variance += d * d
	}
	variance /= float64(len(window))
	return math.Min(1, math.Sqrt(variance)/mean)
}

// stagnationMinutes walks the history backward while the count stays
// constant and returns the stagnant span in minutes.
func stagnationMinutes(history []Snapshot) float64 {
	if len(history) < 2 {
		return 0
	}
	newest := history[len(history)-1]
	oldest := newest
	for i := len(history) - 2; i >= 0; i-- {
		if history[i].CustomerCount != newest.CustomerCount {
			break
		}
		oldest = history[i]
	}
	if oldest.Timestamp.Equal(newest.Timestamp) {
		return 0
	}
	return math.Max(newest.Timestamp.Sub(oldest.Timestamp).Minutes(), 0)
}

func lastN(history []Snapshot, n int) []Snapshot {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
