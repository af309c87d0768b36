package detect

import (
	"math"
	"time"

	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/normalize"
)

const (
	defaultQueueTarget = 6
	maxWaitSeconds     = 120.0
	queueWindow        = 5 * time.Minute
	minWaitSamples     = 3
	queueCooldown      = 2 * time.Minute
)

type sample struct {
	at    time.Time
	value float64
}

// QueueSpike keeps a rolling window of queue-length and dwell-time
// samples per station and raises queue_spike / extended_wait alerts.
type QueueSpike struct {
	target    int
	queues    map[string][]sample // station -> queue-length samples
	waits     map[string][]sample // station -> dwell samples
	lastQueue map[string]time.Time
	lastWait  map[string]time.Time
}

// NewQueueSpike creates the detector. target <= 0 uses the default of 6
// customers per station.
func NewQueueSpike(target int) *QueueSpike {
	if target <= 0 {
		target = defaultQueueTarget
	}
	d := &QueueSpike{target: target}
	d.Reset()
	return d
}

func (d *QueueSpike) Name() string { return "queue_spike" }

func (d *QueueSpike) Reset() {
	d.queues = make(map[string][]sample)
	d.waits = make(map[string][]sample)
	d.lastQueue = make(map[string]time.Time)
	d.lastWait = make(map[string]time.Time)
}

func (d *QueueSpike) Detect(ev *event.Event) []Alert {
	if ev.Dataset != event.DatasetQueue {
		return nil
	}
	station := ev.StationID
	if station == "" {
		station = "unknown"
	}
	now := ev.Timestamp
	q := normalize.Queue(ev)

	var alerts []Alert
	if q.HasCount {
		alerts = append(alerts, d.processQueueLength(station, now, q.CustomerCount)...)
	}
	if q.HasDwell {
		alerts = append(alerts, d.processWaitTime(station, now, q.DwellSeconds)...)
	}
	return alerts
}

func (d *QueueSpike) processQueueLength(station string, now time.Time, length int) []Alert {
	d.queues[station] = trimWindow(append(d.queues[station], sample{at: now, value: float64(length)}), now)

	if length < d.target {
		return nil
	}
	if last, ok := d.lastQueue[station]; ok && now.Sub(last) < queueCooldown {
		return nil
	}
	d.lastQueue[station] = now

	series := d.queues[station]
	var sum float64
	for _, s := range series {
		sum += s.value
	}
	return []Alert{{
		Type:       TypeQueueSpike,
		StationID:  station,
		Timestamp:  now,
		Confidence: math.Min(0.95, 0.6+float64(length-d.target)*0.08),
		Evidence: map[string]any{
			"current_queue":  length,
			"recent_average": round2(sum / float64(len(series))),
			"target_queue":   d.target,
		},
		RecommendedAction: "Open an additional kiosk or direct staff assistance to self-checkout lane.",
	}}
}

func (d *QueueSpike) processWaitTime(station string, now time.Time, dwell float64) []Alert {
	d.waits[station] = trimWindow(append(d.waits[station], sample{at: now, value: dwell}), now)

	series := d.waits[station]
	if len(series) < minWaitSamples {
		return nil
	}
	var sum float64
	for _, s := range series {
		sum += s.value
	}
	avg := sum / float64(len(series))
	if avg < maxWaitSeconds {
		return nil
	}
	if last, ok := d.lastWait[station]; ok && now.Sub(last) < queueCooldown {
		return nil
	}
	d.lastWait[station] = now

	return []Alert{{
		Type:       TypeExtendedWait,
		StationID:  station,
		Timestamp:  now,
		Confidence: math.Min(0.99, 0.7+(avg-maxWaitSeconds)/180),
		Evidence: map[string]any{
			"recent_average_wait_s": math.Round(avg*10) / 10,
			"threshold_s":           maxWaitSeconds,
			"observations":          len(series),
		},
		RecommendedAction: "Reassign associates to assist with bagging or open more kiosks to reduce dwell time.",
	}}
}

func trimWindow(series []sample, now time.Time) []sample {
	cut := 0
	for cut < len(series) && now.Sub(series[cut].at) > queueWindow {
		cut++
	}
	return series[cut:]
}
