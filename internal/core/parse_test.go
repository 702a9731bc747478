package core

import (
	"errors"
	"testing"
)

func assertSelection(t *testing.T, got Selection, want map[string]OptionValue) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("selection = %v, want %d fields %v", got, len(want), want)
	}
	for field, value := range want {
		if bound, ok := got[field]; !ok || !bound.Equal(value) {
			t.Fatalf("selection[%s] = %v (%t), want %v", field, bound, ok, value)
		}
	}
}

func TestParseSKU(t *testing.T) {
	catalog := testCatalog()

	tests := []struct {
		name        string
		sku         string
		wantProduct int64
		wantSel     map[string]OptionValue
	}{
		{
			name:        "full sku",
			sku:         "T01D-2436-BF-ND-LO-NA",
			wantProduct: 100,
			wantSel: map[string]OptionValue{
				"size":         One(5),
				"frame_color":  One(10),
				"driver":       One(3),
				"light_output": One(1),
				"accessories":  Many(),
			},
		},
		{
			name:        "longest base prefix wins",
			sku:         "T01DR-3036",
			wantProduct: 101,
			wantSel:     map[string]OptionValue{"size": One(6)},
		},
		{
			name:        "case-insensitive matching",
			sku:         "t01d-2436-bf",
			wantProduct: 100,
			wantSel: map[string]OptionValue{
				"size":        One(5),
				"frame_color": One(10),
			},
		},
		{
			name:        "unknown fragment skipped",
			sku:         "T01D-2436-XYZ-ND",
			wantProduct: 100,
			wantSel: map[string]OptionValue{
				"size":   One(5),
				"driver": One(3),
			},
		},
		{
			name:        "out-of-order fragment binds an earlier segment",
			sku:         "T01D-ND-2436",
			wantProduct: 100,
			wantSel: map[string]OptionValue{
				"size":   One(5),
				"driver": One(3),
			},
		},
		{
			name:        "repeated multi fragments accumulate in order",
			sku:         "T01D-2436-NL-DEF",
			wantProduct: 100,
			wantSel: map[string]OptionValue{
				"size":        One(5),
				"accessories": Many(21, 20),
			},
		},
		{
			name:        "base only",
			sku:         "RND2",
			wantProduct: 102,
			wantSel:     map[string]OptionValue{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, err := ParseSKU(catalog, test.sku)
			if err != nil {
				t.Fatalf("ParseSKU(%q) error: %v", test.sku, err)
			}
			if result.ProductID != test.wantProduct {
				t.Fatalf("ProductID = %d, want %d", result.ProductID, test.wantProduct)
			}
			assertSelection(t, result.Selection, test.wantSel)
		})
	}
}

func TestParseSKUErrors(t *testing.T) {
	catalog := testCatalog()

	if _, err := ParseSKU(catalog, "  "); err == nil {
		t.Fatal("ParseSKU(blank) = nil, want error")
	}
	_, err := ParseSKU(catalog, "ZZZ9-2436")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("ParseSKU(unknown base) = %v, want ErrProductNotFound", err)
	}
}

func TestParseSKURoundTrip(t *testing.T) {
	catalog := testCatalog()
	product := mustProduct(t, catalog, 100)
	selection := map[string]OptionValue{
		"size":         One(5),
		"frame_color":  One(11),
		"driver":       One(5),
		"light_output": One(2),
		"accessories":  Many(21, 20),
	}

	assembled := AssembleSKU(catalog, product, stateWith(selection))
	if len(assembled.Missing) != 0 {
		t.Fatalf("Missing = %v", assembled.Missing)
	}

	parsed, err := ParseSKU(catalog, assembled.SKU)
	if err != nil {
		t.Fatalf("ParseSKU(%q) error: %v", assembled.SKU, err)
	}
	if parsed.ProductID != product.ID {
		t.Fatalf("ProductID = %d, want %d", parsed.ProductID, product.ID)
	}
	assertSelection(t, parsed.Selection, selection)
}
