// Package catalog loads the product lookup tables used by detectors.
// A nil *Catalog is valid everywhere and means "catalog unavailable":
// detectors that need it simply skip, they never fail.
package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Product is one catalog row.
type Product struct {
	SKU         string
	Name        string
	Price       float64
	WeightGrams float64
	HasWeight   bool
	Barcode     string
	Quantity    int
	HasQuantity bool
}

// Catalog is an immutable SKU lookup table.
type Catalog struct {
	products map[string]Product
}

// LoadCSV reads a product catalog from a CSV file with a header row.
// Recognized columns: SKU, product_name, price, weight, barcode, quantity.
func LoadCSV(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("catalog %s: empty file", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "\uFEFF"))] = i
	}
	idx := func(name string) int {
		if i, ok := col[name]; ok {
			return i
		}
		return -1
	}
	if idx("sku") < 0 {
		return nil, fmt.Errorf("catalog %s: missing SKU column", path)
	}

	products := make(map[string]Product, len(rows)-1)
	for _, row := range rows[1:] {
		sku := cell(row, idx("sku"))
		if sku == "" {
			continue
		}
		p := Product{
			SKU:     sku,
			Name:    cell(row, idx("product_name")),
			Barcode: cell(row, idx("barcode")),
		}
		p.Price, _ = parseFloat(cell(row, idx("price")))
		p.WeightGrams, p.HasWeight = parseFloat(cell(row, idx("weight")))
		if qty, ok := parseFloat(cell(row, idx("quantity"))); ok {
			p.Quantity, p.HasQuantity = int(qty), true
		}
		products[sku] = p
	}
	return &Catalog{products: products}, nil
}

// New builds a catalog from already-loaded products (used by tests and
// callers that do not read CSV files).
func New(products []Product) *Catalog {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.SKU] = p
	}
	return &Catalog{products: m}
}

// Lookup returns the product for a SKU. Safe on a nil catalog.
func (c *Catalog) Lookup(sku string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	p, ok := c.products[sku]
	return p, ok
}

// ExpectedQuantity returns the expected stock level for a SKU.
// Safe on a nil catalog.
func (c *Catalog) ExpectedQuantity(sku string) (int, bool) {
	if c == nil {
		return 0, false
	}
	p, ok := c.products[sku]
	if !ok || !p.HasQuantity {
		return 0, false
	}
	return p.Quantity, true
}

// Len returns the number of catalog entries. Safe on a nil catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
