package queuehealth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

func TestHealth_NoData(t *testing.T) {
	s := NewService(0, 0, 0)
	report := s.Health("SCC1")
	assert.Equal(t, 100.0, report.HealthScore)
	assert.Equal(t, "unknown", report.Status)
}

func TestHealth_OptimalStation(t *testing.T) {
	s := NewService(6, 0, 0)
	rate := 2.5
	report := s.Ingest("SCC1", t0, 2, 45, "active", &rate)
	assert.Equal(t, 100.0, report.HealthScore)
	assert.Equal(t, "optimal", report.Status)
	assert.Empty(t, report.Alerts)
}

func TestHealth_SurgeScenario(t *testing.T) {
	s := NewService(4, 0, 0)

	s.Ingest("SCC1", t0, 4, 120, "active", nil)
	report := s.Ingest("SCC1", t0.Add(time.Minute), 9, 250, "active", nil)

	assert.Less(t, report.HealthScore, 50.0)
	assert.Equal(t, "critical", report.Status)

	types := make([]string, 0, len(report.Alerts))
	for _, a := range report.Alerts {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, "queue_congestion")
	assert.Contains(t, types, "queue_growth")

	incidents := s.RecentIncidents(10)
	require.NotEmpty(t, incidents)
	found := false
	for _, inc := range incidents {
		if inc.Type == "queue_surge" {
			found = true
			assert.Equal(t, "high", inc.Priority)
			assert.Equal(t, 4, inc.Metadata["from"])
			assert.Equal(t, 9, inc.Metadata["to"])
			assert.NotEmpty(t, inc.IncidentID)
		}
	}
	assert.True(t, found, "queue_surge incident expected")
}

func TestHealth_ScoreClamped(t *testing.T) {
	s := NewService(2, 0, 0)

	// Pile every penalty on: extreme dwell, critical queue, zero service
	// rate, sharp growth. Score must stay within [0, 100].
	s.Ingest("SCC1", t0, 1, 500, "active", nil)
	for i := 1; i <= 6; i++ {
		report := s.Ingest("SCC1", t0.Add(time.Duration(i)*30*time.Second), 4*i, 600, "active", nil)
		assert.GreaterOrEqual(t, report.HealthScore, 0.0)
		assert.LessOrEqual(t, report.HealthScore, 100.0)
		assert.Equal(t, scoreToStatus(report.HealthScore), report.Status)
	}
}

func TestStatusBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{100, "optimal"}, {85, "optimal"},
		{84.9, "stable"}, {70, "stable"},
		{69.9, "at-risk"}, {50, "at-risk"},
		{49.9, "critical"}, {0, "critical"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, scoreToStatus(tc.score), "score %v", tc.score)
	}
}

func TestServiceRateDerivation(t *testing.T) {
	s := NewService(6, 0, 0)

	s.Ingest("SCC1", t0, 8, 60, "active", nil)
	report := s.Ingest("SCC1", t0.Add(time.Minute), 5, 60, "active", nil)

	// 3 customers serviced in 60s = 3/min.
	assert.InDelta(t, 3.0, report.ServiceRate, 1e-9)

	history := s.histories["SCC1"]
	assert.Equal(t, -3, history[len(history)-1].DeltaCustomers)
}

func TestIncident_StalledCheckout(t *testing.T) {
	s := NewService(4, 0, 0)

	// Count pinned above the warning threshold for over two minutes.
	for i := 0; i <= 5; i++ {
		s.Ingest("SCC1", t0.Add(time.Duration(i)*30*time.Second), 7, 100, "active", nil)
	}
	var found *Incident
	for _, inc := range s.RecentIncidents(0) {
		if inc.Type == "stalled_checkout" {
			inc := inc
			found = &inc
			break
		}
	}
	require.NotNil(t, found, "stalled_checkout incident expected")
	assert.Equal(t, 7, found.Metadata["customer_count"])
}

func TestIncident_QueueClearedAndExtremeWait(t *testing.T) {
	s := NewService(4, 0, 0)

	s.Ingest("SCC1", t0, 6, 100, "active", nil)
	s.Ingest("SCC1", t0.Add(30*time.Second), 0, 50, "active", nil)
	s.Ingest("SCC2", t0, 2, 100, "active", nil)
	s.Ingest("SCC2", t0.Add(30*time.Second), 3, 490, "active", nil)

	var types []string
	for _, inc := range s.RecentIncidents(0) {
		types = append(types, inc.Type)
	}
	assert.Contains(t, types, "queue_cleared")
	assert.Contains(t, types, "extreme_wait")
}

func TestIncidentHistoryBounded(t *testing.T) {
	s := NewService(4, 0, 5)

	for i := 0; i < 30; i++ {
		at := t0.Add(time.Duration(i) * time.Minute)
		s.Ingest("SCC1", at, 4, 500, "active", nil) // extreme_wait every sample after the first
	}
	assert.LessOrEqual(t, len(s.RecentIncidents(0)), 5)
}

func TestStaffAllocation(t *testing.T) {
	s := NewService(6, 0, 0)

	s.Ingest("SCC1", t0, 10, 60, "active", nil)
	s.Ingest("SCC2", t0, 9, 60, "active", nil)

	staffing := s.StaffAllocation()
	assert.Equal(t, 2, staffing.ActiveStations)
	assert.Equal(t, 19, staffing.TotalCustomers)
	assert.Equal(t, 4, staffing.RequiredStations) // ceil(19/6)
	assert.Equal(t, "Open 2 additional station(s)", staffing.Recommendation)

	// Demand falls away: recommend idling.
	s.Ingest("SCC1", t0.Add(time.Minute), 1, 30, "active", nil)
	s.Ingest("SCC2", t0.Add(time.Minute), 0, 0, "active", nil)
	staffing = s.StaffAllocation()
	assert.Equal(t, 1, staffing.RequiredStations)
	assert.Equal(t, "Idle 1 station(s) if demand stays low", staffing.Recommendation)
}

func TestDashboardPayload(t *testing.T) {
	s := NewService(6, 0, 0)

	s.Ingest("SCC1", t0, 2, 40, "active", nil)
	s.Ingest("SCC2", t0, 10, 100, "active", nil)
	s.Ingest("SCC2", t0.Add(30*time.Second), 12, 500, "active", nil)

	dash := s.DashboardPayload()
	require.Len(t, dash.Stations, 2)
	assert.Equal(t, "SCC1", dash.Stations[0].StationID)
	assert.Greater(t, dash.Stations[0].HealthScore, dash.Stations[1].HealthScore)
	assert.InDelta(t,
		(dash.Stations[0].HealthScore+dash.Stations[1].HealthScore)/2,
		dash.OverallHealthScore, 0.05)
	assert.NotEmpty(t, dash.Incidents) // extreme_wait on SCC2
}

func TestReset(t *testing.T) {
	s := NewService(4, 0, 0)
	s.Ingest("SCC1", t0, 9, 500, "active", nil)
	s.Ingest("SCC1", t0.Add(time.Second), 9, 500, "active", nil)
	require.NotEmpty(t, s.RecentIncidents(0))

	s.Reset()
	assert.Empty(t, s.RecentIncidents(0))
	assert.Equal(t, "unknown", s.Health("SCC1").Status)
}
