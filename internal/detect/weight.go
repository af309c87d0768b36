package detect

import (
	"math"

	"github.com/storeops/lanewatch/internal/catalog"
	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/normalize"
)

const (
	weightAbsToleranceGrams = 8.0
	weightRelTolerance      = 0.08
)

type weightKey struct {
	station string
	tsMilli int64
	sku     string
}

// WeightDiscrepancy compares the POS-reported weight against the
// catalog-expected weight. One alert per transaction: the dedup key is
// (station, millisecond timestamp, sku).
type WeightDiscrepancy struct {
	catalog *catalog.Catalog
	flagged map[weightKey]struct{}
}

func NewWeightDiscrepancy(cat *catalog.Catalog) *WeightDiscrepancy {
	return &WeightDiscrepancy{catalog: cat, flagged: make(map[weightKey]struct{})}
}

func (d *WeightDiscrepancy) Name() string { return "weight_discrepancy" }

func (d *WeightDiscrepancy) Reset() {
	d.flagged = make(map[weightKey]struct{})
}

func (d *WeightDiscrepancy) Detect(ev *event.Event) []Alert {
	if ev.Dataset != event.DatasetPOS {
		return nil
	}
	pos := normalize.POS(ev)
	if pos.SKU == "" || !pos.HasWeight {
		return nil
	}
	product, ok := d.catalog.Lookup(pos.SKU)
	if !ok || !product.HasWeight {
		return nil
	}

	expected := product.WeightGrams
	diff := math.Abs(pos.WeightGrams - expected)
	tolerance := math.Max(weightAbsToleranceGrams, expected*weightRelTolerance)
	if diff <= tolerance {
		return nil
	}

	key := weightKey{station: ev.StationID, tsMilli: ev.Timestamp.UnixMilli(), sku: pos.SKU}
	if _, seen := d.flagged[key]; seen {
		return nil
	}
	d.flagged[key] = struct{}{}

	deviation := 0.0
	if expected > 0 {
		deviation = diff / expected
	}
	return []Alert{{
		Type:       TypeWeightDiscrepancy,
		StationID:  ev.StationID,
		Timestamp:  ev.Timestamp,
		Confidence: round2(math.Min(0.99, 0.6+deviation)),
		Evidence: map[string]any{
			"sku":               pos.SKU,
			"product_name":      product.Name,
			"measured_weight_g": pos.WeightGrams,
			"expected_weight_g": expected,
			"difference_g":      round2(diff),
			"price":             product.Price,
		},
		RecommendedAction: "Re-weigh the item and check for tag swapping before releasing the transaction.",
	}}
}
