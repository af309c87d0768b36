package detect

import (
	"math"
	"strings"
	"time"

	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/normalize"
)

const (
	visionConfidenceThreshold = 0.65
	predictionTTL             = 20 * time.Second
)

type visionPrediction struct {
	sku      string
	accuracy float64
	seenAt   time.Time
}

// BarcodeSwitching fuses high-confidence vision predictions with POS
// scans. A POS scan whose SKU differs from the live prediction cached
// for the same station is flagged; the prediction is consumed either
// way so one prediction yields at most one alert.
type BarcodeSwitching struct {
	predictions map[string]visionPrediction // station -> latest prediction
}

func NewBarcodeSwitching() *BarcodeSwitching {
	return &BarcodeSwitching{predictions: make(map[string]visionPrediction)}
}

func (d *BarcodeSwitching) Name() string { return "barcode_switching" }

func (d *BarcodeSwitching) Reset() {
	d.predictions = make(map[string]visionPrediction)
}

func (d *BarcodeSwitching) Detect(ev *event.Event) []Alert {
	if ev.StationID == "" {
		return nil
	}
	now := ev.Timestamp

	if ev.Dataset == event.DatasetVision {
		v := normalize.Vision(ev)
		if v.PredictedProduct != "" && v.HasAccuracy && v.Accuracy >= visionConfidenceThreshold {
			d.predictions[ev.StationID] = visionPrediction{sku: v.PredictedProduct, accuracy: v.Accuracy, seenAt: now}
		}
		return nil
	}

	d.expire(now)

	if ev.Dataset != event.DatasetPOS {
		return nil
	}
	pos := normalize.POS(ev)
	if pos.SKU == "" {
		return nil
	}
	pred, ok := d.predictions[ev.StationID]
	if !ok {
		return nil
	}
	// Consume the prediction whether it matches or not.
	delete(d.predictions, ev.StationID)

	if skusMatch(pred.sku, pos.SKU) {
		return nil
	}
	return []Alert{{
		Type:       TypeBarcodeSwitching,
		StationID:  ev.StationID,
		Timestamp:  now,
		Confidence: round2(math.Min(0.99, pred.accuracy)),
		Evidence: map[string]any{
			"predicted_product":  pred.sku,
			"predicted_accuracy": pred.accuracy,
			"scanned_sku":        pos.SKU,
			"product_name":       pos.ProductName,
		},
		RecommendedAction: "Review the transaction and verify the item against the scanned barcode.",
	}}
}

func (d *BarcodeSwitching) expire(now time.Time) {
	for station, pred := range d.predictions {
		if now.Sub(pred.seenAt) > predictionTTL {
			delete(d.predictions, station)
		}
	}
}

func skusMatch(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
