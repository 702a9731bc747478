package core

import (
	"fmt"
	"strings"
)

// ParseResult is the selection recovered from a SKU string.
type ParseResult struct {
	ProductID int64
	Selection Selection
}

// ParseSKU is the inverse of AssembleSKU: it recovers the product and the
// selection encoded in a SKU string against the same catalog snapshot.
//
// Matching is case-insensitive and exact per segment. The product is inferred
// by the longest base fragment that prefixes the SKU, so an ambiguous core
// fragment resolves to the most specific product. Segments that match no
// known option are silently ignored rather than rejected; SKUs from older
// catalog revisions should still parse as far as they can.
func ParseSKU(catalog *Catalog, sku string) (ParseResult, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return ParseResult{}, fmt.Errorf("parse sku: empty input")
	}

	product := matchProductByPrefix(catalog, sku)
	if product == nil {
		return ParseResult{}, fmt.Errorf("parse sku %q: %w", sku, ErrProductNotFound)
	}

	separator := catalog.SKUSeparator()
	rest := strings.TrimPrefix(sku[len(product.BaseSKU):], separator)

	result := ParseResult{
		ProductID: product.ID,
		Selection: make(Selection),
	}
	if rest == "" {
		return result, nil
	}

	segs := orderedSegments(catalog)
	idx := 0
	for _, token := range strings.Split(rest, separator) {
		if token == "" {
			continue
		}
		if next, ok := matchSegment(catalog, segs, idx, token, result.Selection); ok {
			idx = next
			continue
		}
		// Unknown fragment: skip it and keep going.
	}
	return result, nil
}

// matchProductByPrefix returns the product whose base fragment is the longest
// case-insensitive prefix of sku.
func matchProductByPrefix(catalog *Catalog, sku string) *Product {
	var best *Product
	for i := range catalog.Products {
		p := &catalog.Products[i]
		base := p.BaseSKU
		if base == "" || len(base) > len(sku) {
			continue
		}
		if !strings.EqualFold(sku[:len(base)], base) {
			continue
		}
		if best == nil || len(base) > len(best.BaseSKU) {
			best = p
		}
	}
	return best
}

// matchSegment tries to bind token to a segment, preferring segments at or
// after position idx so assembly order guides disambiguation, then falling
// back to any unbound segment. It returns the next search position.
func matchSegment(catalog *Catalog, segs []Segment, idx int, token string, selection Selection) (int, bool) {
	for j := idx; j < len(segs); j++ {
		if next, ok := bindToken(catalog, segs[j], j, token, selection); ok {
			return next, true
		}
	}
	for j := 0; j < idx; j++ {
		col, ok := catalog.Collection(segs[j].Collection)
		if !ok {
			continue
		}
		if _, bound := selection[col.Field]; bound && !col.MultiSelect {
			continue
		}
		if next, ok := bindToken(catalog, segs[j], idx, token, selection); ok {
			return next, true
		}
	}
	return idx, false
}

func bindToken(catalog *Catalog, seg Segment, j int, token string, selection Selection) (int, bool) {
	col, ok := catalog.Collection(seg.Collection)
	if !ok {
		return 0, false
	}

	if col.MultiSelect && col.NoneSKUCode != "" && strings.EqualFold(token, col.NoneSKUCode) {
		selection[col.Field] = Many()
		return j + 1, true
	}

	for _, opt := range col.Options {
		if opt.SKUCode == "" || !strings.EqualFold(opt.SKUCode, token) {
			continue
		}
		if col.MultiSelect {
			var ids []int64
			if existing, bound := selection[col.Field]; bound {
				ids = existing.IDs()
			}
			selection[col.Field] = Many(append(ids, opt.ID)...)
			// Stay on this segment: the order-of-selection fallback emits
			// one fragment per selected accessory.
			return j, true
		}
		selection[col.Field] = One(opt.ID)
		return j + 1, true
	}
	return 0, false
}
