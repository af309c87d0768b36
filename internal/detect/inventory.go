package detect

import (
	"math"
	"sort"
	"time"

	"github.com/storeops/lanewatch/internal/catalog"
	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/normalize"
)

const (
	inventoryAbsThreshold = 8
	inventoryRelThreshold = 0.12
	inventoryCooldown     = 10 * time.Minute
)

// InventoryDiscrepancy compares inventory-snapshot quantities against
// catalog-expected levels, with a per-SKU cooldown.
type InventoryDiscrepancy struct {
	catalog   *catalog.Catalog
	lastAlert map[string]time.Time // SKU -> last alert
}

func NewInventoryDiscrepancy(cat *catalog.Catalog) *InventoryDiscrepancy {
	return &InventoryDiscrepancy{catalog: cat, lastAlert: make(map[string]time.Time)}
}

func (d *InventoryDiscrepancy) Name() string { return "inventory_discrepancy" }

func (d *InventoryDiscrepancy) Reset() {
	d.lastAlert = make(map[string]time.Time)
}

func (d *InventoryDiscrepancy) Detect(ev *event.Event) []Alert {
	if ev.Dataset != event.DatasetInventory {
		return nil
	}
	observed := normalize.InventoryCounts(ev)
	if len(observed) == 0 {
		return nil
	}
	now := ev.Timestamp

	// Deterministic alert order for a given snapshot.
	skus := make([]string, 0, len(observed))
	for sku := range observed {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	var alerts []Alert
	for _, sku := range skus {
		expected, ok := d.catalog.ExpectedQuantity(sku)
		if !ok {
			continue
		}
		diff := observed[sku] - expected
		threshold := max(inventoryAbsThreshold, int(float64(expected)*inventoryRelThreshold))
		if abs(diff) < threshold {
			continue
		}
		if last, seen := d.lastAlert[sku]; seen && now.Sub(last) < inventoryCooldown {
			continue
		}
		d.lastAlert[sku] = now

		denom := expected
		if denom < 1 {
			denom = 1
		}
		alerts = append(alerts, Alert{
			Type:       TypeInventoryDiscrepancy,
			StationID:  ev.StationID,
			Timestamp:  now,
			Confidence: round2(math.Min(0.99, 0.6+float64(abs(diff))/float64(denom))),
			Evidence: map[string]any{
				"sku":               sku,
				"expected_quantity": expected,
				"observed_quantity": observed[sku],
				"difference":        diff,
			},
			RecommendedAction: "Audit shelf and backroom counts for SKU and reconcile with POS adjustments.",
		})
	}
	return alerts
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
