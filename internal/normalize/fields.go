package normalize

import (
	"strconv"
	"strings"

	"github.com/storeops/lanewatch/internal/event"
)

// POSFields are the canonical attributes of a POS transaction payload.
type POSFields struct {
	SKU         string
	CustomerID  string
	ProductName string
	Price       float64
	WeightGrams float64
	HasWeight   bool
}

// RFIDFields are the canonical attributes of an RFID reading payload.
type RFIDFields struct {
	EPC      string
	SKU      string
	Location string
}

// VisionFields are the canonical attributes of a product-recognition payload.
type VisionFields struct {
	PredictedProduct string
	Accuracy         float64
	HasAccuracy      bool
}

// QueueFields are the canonical attributes of a queue-monitoring payload.
type QueueFields struct {
	CustomerCount int
	HasCount      bool
	DwellSeconds  float64
	HasDwell      bool
}

// POS extracts POS attributes with defensive coercion. Missing or
// uncoercible fields are reported through the Has* flags and zero values.
func POS(ev *event.Event) POSFields {
	f := POSFields{
		SKU:         strings.TrimSpace(stringField(ev.Payload, "sku")),
		CustomerID:  stringField(ev.Payload, "customer_id"),
		ProductName: stringField(ev.Payload, "product_name"),
	}
	f.Price, _ = floatField(ev.Payload, "price")
	f.WeightGrams, f.HasWeight = floatField(ev.Payload, "weight_g")
	if !f.HasWeight {
		f.WeightGrams, f.HasWeight = floatField(ev.Payload, "weight")
	}
	return f
}

// RFID extracts RFID attributes. Location is upper-cased, to match the
// suspicious-location table.
func RFID(ev *event.Event) RFIDFields {
	return RFIDFields{
		EPC:      stringField(ev.Payload, "epc"),
		SKU:      strings.TrimSpace(stringField(ev.Payload, "sku")),
		Location: strings.ToUpper(strings.TrimSpace(stringField(ev.Payload, "location"))),
	}
}

// Vision extracts product-recognition attributes.
func Vision(ev *event.Event) VisionFields {
	f := VisionFields{
		PredictedProduct: strings.TrimSpace(stringField(ev.Payload, "predicted_product")),
	}
	f.Accuracy, f.HasAccuracy = floatField(ev.Payload, "accuracy")
	return f
}

// Queue extracts queue telemetry, resolving the simulator's alternate
// field names (customers, avg_wait).
func Queue(ev *event.Event) QueueFields {
	var f QueueFields
	if n, ok := intPayloadField(ev.Payload, "customer_count", "customers"); ok {
		f.CustomerCount, f.HasCount = n, true
	}
	if d, ok := floatFields(ev.Payload, "average_dwell_time", "avg_wait"); ok {
		f.DwellSeconds, f.HasDwell = d, true
	}
	return f
}

// InventoryCounts extracts the SKU -> quantity map from an inventory
// snapshot payload. Uncoercible quantities are skipped.
func InventoryCounts(ev *event.Event) map[string]int {
	counts := make(map[string]int, len(ev.Payload))
	for sku, raw := range ev.Payload {
		if qty, ok := coerceInt(raw); ok {
			counts[sku] = qty
		}
	}
	return counts
}

// ExtractSKU returns the best SKU-like identifier in a payload, used by
// the correlator across all three streams.
func ExtractSKU(ev *event.Event) string {
	for _, key := range []string{"sku", "predicted_product", "product_id"} {
		if s := strings.TrimSpace(stringField(ev.Payload, key)); s != "" {
			return s
		}
	}
	return ""
}

func floatField(m map[string]any, key string) (float64, bool) {
	return coerceFloat(m[key])
}

func floatFields(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if _, ok := m[key]; ok {
			return coerceFloat(m[key])
		}
	}
	return 0, false
}

func intPayloadField(m map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		if raw, ok := m[key]; ok {
			return coerceInt(raw)
		}
	}
	return 0, false
}

func coerceFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func coerceInt(raw any) (int, bool) {
	if f, ok := coerceFloat(raw); ok {
		return int(f), true
	}
	return 0, false
}
