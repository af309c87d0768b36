package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products_list.csv")
	data := "SKU,product_name,barcode,price,weight,quantity\n" +
		"PRD_F_14,Organic Bananas,8901234567890,3.99,150,120\n" +
		"PRD_A_03,Premium Coffee,8901234567891,24.50,500,40\n" +
		"PRD_N_05,Mystery Item,,9.99,,\n" +
		",skipped row,,,,\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV error: %v", err)
	}
	if cat.Len() != 3 {
		t.Fatalf("Len = %d, want 3", cat.Len())
	}

	p, ok := cat.Lookup("PRD_F_14")
	if !ok {
		t.Fatal("PRD_F_14 not found")
	}
	if p.Name != "Organic Bananas" || p.Price != 3.99 {
		t.Errorf("product = %+v", p)
	}
	if !p.HasWeight || p.WeightGrams != 150 {
		t.Errorf("weight = %v (has=%v)", p.WeightGrams, p.HasWeight)
	}

	if qty, ok := cat.ExpectedQuantity("PRD_A_03"); !ok || qty != 40 {
		t.Errorf("ExpectedQuantity = %d (ok=%v), want 40", qty, ok)
	}
	if _, ok := cat.ExpectedQuantity("PRD_N_05"); ok {
		t.Error("PRD_N_05 has no quantity, want ok=false")
	}
}

func TestLoadCSV_BOMHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products_list.csv")
	data := "\uFEFFSKU,product_name,barcode,price,weight,quantity\n" +
		"PRD_F_14,Organic Bananas,8901234567890,3.99,150,120\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV error: %v", err)
	}
	// Exports from spreadsheet tools prefix the first column name with
	// a byte order mark; the SKU column must still resolve.
	if _, ok := cat.Lookup("PRD_F_14"); !ok {
		t.Error("PRD_F_14 not found under a BOM-prefixed header")
	}
}

func TestNilCatalog(t *testing.T) {
	var cat *Catalog
	if _, ok := cat.Lookup("PRD_F_14"); ok {
		t.Error("nil catalog Lookup should report not found")
	}
	if _, ok := cat.ExpectedQuantity("PRD_F_14"); ok {
		t.Error("nil catalog ExpectedQuantity should report not found")
	}
	if cat.Len() != 0 {
		t.Error("nil catalog Len should be 0")
	}
}

func TestLoadCSV_Missing(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
