// Package insight turns queue observations and detector findings into
// operational KPIs and staffing recommendations.
package insight

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/storeops/lanewatch/internal/detect"
)

const (
	// Coverage targets the recommendations are derived from.
	customersPerAssociateHour = 45
	customersPerKiosk         = 6

	// Average dwell beyond this is considered over SLA.
	maxWaitSeconds = 120
)

// Observation is one queue reading fed into KPI computation.
type Observation struct {
	Timestamp     time.Time
	StationID     string
	CustomerCount int
	DwellSeconds  float64
}

// StationKPIs aggregates the observations of a single station.
type StationKPIs struct {
	AvgQueueLength       float64 `json:"avg_queue_length"`
	PeakQueueLength      int     `json:"peak_queue_length"`
	AvgWaitSeconds       float64 `json:"avg_wait_seconds"`
	PeakWaitSeconds      float64 `json:"peak_wait_seconds"`
	AvgArrivalRatePerMin float64 `json:"avg_arrival_rate_per_min"`
	Observations         int     `json:"observations"`
}

// KPIs holds store-wide aggregates plus the per-station breakdown.
// Observations == 0 means no queue data was available.
type KPIs struct {
	StationKPIs          map[string]StationKPIs `json:"station_kpis"`
	AvgQueueLength       float64                `json:"avg_queue_length"`
	PeakQueueLength      int                    `json:"peak_queue_length"`
	AvgWaitSeconds       float64                `json:"avg_wait_seconds"`
	PeakWaitSeconds      float64                `json:"peak_wait_seconds"`
	AvgArrivalRatePerMin float64                `json:"avg_arrival_rate_per_min"`
	Observations         int                    `json:"observations"`
}

// Staffing is the associate forecast. RecommendedAssociates of zero
// means no forecast could be made.
type Staffing struct {
	RecommendedAssociates int    `json:"recommended_associates"`
	Basis                 string `json:"basis"`
}

// KioskPlan recommends how many self-checkout kiosks to keep open.
type KioskPlan struct {
	RecommendedKiosks int    `json:"recommended_kiosks"`
	Basis             string `json:"basis"`
}

// Report is the full insight payload served to operators.
type Report struct {
	KPIs               KPIs      `json:"kpis"`
	Staffing           Staffing  `json:"staffing"`
	KioskPlan          KioskPlan `json:"kiosk_plan"`
	AdditionalInsights []string  `json:"additional_insights"`
}

// ComputeKPIs aggregates queue observations per station and store-wide.
// Arrival rate counts only positive customer-count deltas over the
// elapsed span of each station's observations.
func ComputeKPIs(observations []Observation) KPIs {
	kpis := KPIs{StationKPIs: make(map[string]StationKPIs)}
	if len(observations) == 0 {
		return kpis
	}

	byStation := make(map[string][]Observation)
	for _, obs := range observations {
		byStation[obs.StationID] = append(byStation[obs.StationID], obs)
	}

	var (
		countSum, waitSum, rateSum float64
		total                      int
	)
	for station, obs := range byStation {
		sort.Slice(obs, func(i, j int) bool { return obs[i].Timestamp.Before(obs[j].Timestamp) })

		sk := StationKPIs{Observations: len(obs)}
		var stationCountSum, stationWaitSum float64
		arrivals := 0
		for i, o := range obs {
			stationCountSum += float64(o.CustomerCount)
			stationWaitSum += o.DwellSeconds
			if o.CustomerCount > sk.PeakQueueLength {
				sk.PeakQueueLength = o.CustomerCount
			}
			if o.DwellSeconds > sk.PeakWaitSeconds {
				sk.PeakWaitSeconds = o.DwellSeconds
			}
			if i > 0 {
				if delta := o.CustomerCount - obs[i-1].CustomerCount; delta > 0 {
					arrivals += delta
				}
			}
		}
		sk.AvgQueueLength = stationCountSum / float64(len(obs))
		sk.AvgWaitSeconds = stationWaitSum / float64(len(obs))
		if elapsed := obs[len(obs)-1].Timestamp.Sub(obs[0].Timestamp).Minutes(); elapsed > 0 {
			sk.AvgArrivalRatePerMin = float64(arrivals) / elapsed
		}
		kpis.StationKPIs[station] = sk

		countSum += stationCountSum
		waitSum += stationWaitSum
		rateSum += sk.AvgArrivalRatePerMin
		total += len(obs)
		if sk.PeakQueueLength > kpis.PeakQueueLength {
			kpis.PeakQueueLength = sk.PeakQueueLength
		}
		if sk.PeakWaitSeconds > kpis.PeakWaitSeconds {
			kpis.PeakWaitSeconds = sk.PeakWaitSeconds
		}
	}

	kpis.Observations = total
	kpis.AvgQueueLength = countSum / float64(total)
	kpis.AvgWaitSeconds = waitSum / float64(total)
	kpis.AvgArrivalRatePerMin = rateSum
	return kpis
}

// Generate combines KPIs with detector findings into an insight report.
func Generate(kpis KPIs, alerts []detect.Alert) Report {
	return Report{
		KPIs:               kpis,
		Staffing:           forecastStaffing(kpis),
		KioskPlan:          recommendKiosks(kpis),
		AdditionalInsights: deriveInsights(kpis, alerts),
	}
}

func forecastStaffing(kpis KPIs) Staffing {
	if kpis.Observations == 0 || kpis.AvgWaitSeconds <= 0 {
		return Staffing{Basis: "Insufficient queue data to forecast staffing."}
	}
	customersPerHour := kpis.AvgArrivalRatePerMin * 60
	associates := int(math.Ceil(customersPerHour / customersPerAssociateHour))
	if associates < 1 {
		associates = 1
	}
	return Staffing{
		RecommendedAssociates: associates,
		Basis: fmt.Sprintf("Average arrival rate %.2f customers/min with wait %.0fs.",
			kpis.AvgArrivalRatePerMin, kpis.AvgWaitSeconds),
	}
}

func recommendKiosks(kpis KPIs) KioskPlan {
	if kpis.Observations == 0 {
		return KioskPlan{Basis: "No queue length data available."}
	}
	load := math.Max(kpis.AvgQueueLength, float64(kpis.PeakQueueLength))
	kiosks := int(math.Ceil(load / customersPerKiosk))
	if kiosks < 1 {
		kiosks = 1
	}
	return KioskPlan{
		RecommendedKiosks: kiosks,
		Basis: fmt.Sprintf("Maintain ~%d customers per kiosk; avg queue %.1f (peak %d).",
			customersPerKiosk, kpis.AvgQueueLength, kpis.PeakQueueLength),
	}
}

func deriveInsights(kpis KPIs, alerts []detect.Alert) []string {
	var insights []string

	if kpis.AvgWaitSeconds > maxWaitSeconds {
		insights = append(insights,
			"Extend associate coverage at self-checkout during peak windows to cut dwell times below two minutes.")
	}

	for _, a := range alerts {
		if a.Type == detect.TypeSystemError {
			insights = append(insights,
				"Schedule preventive maintenance for scanners reporting frequent errors.")
			break
		}
	}

	for _, a := range alerts {
		if a.Type == detect.TypeInventoryDiscrepancy {
			insights = append(insights, fmt.Sprintf(
				"Inventory mismatch detected for SKU %v; investigate shrink and reconcile counts.",
				a.Evidence["sku"]))
			break
		}
	}

	if len(insights) == 0 {
		insights = append(insights,
			"Operations running within targets. Continue monitoring real-time dashboards for anomalies.")
	}
	return insights
}
