package core

import (
	"slices"
	"strings"
)

// SKUResult is the outcome of assembling a SKU. Missing lists fields whose
// selected option has no SKU code; when it is non-empty the assembled string
// must be treated as incomplete by the caller.
type SKUResult struct {
	SKU     string
	Missing []string
}

// AssembleSKU concatenates the product's base fragment with one fragment per
// segment-order entry, in position order, joined by the catalog separator.
//
// Per segment: a rule-provided SKU override substitutes verbatim; otherwise
// the selected option's stored code is used with its case preserved exactly.
// Segments with no selection and no override are skipped outright, never
// padded with a placeholder. Collections whose code is pre-baked into the
// base fragment are excluded from assembly.
//
// The multi-select collection resolves specially: no selection assembles to
// the catalog's designated none fragment, one selection to that option's
// code, and several selections to each code in order of selection unless a
// rule supplied a combined override.
func AssembleSKU(catalog *Catalog, product *Product, state *State) SKUResult {
	result := SKUResult{}
	fragments := []string{product.BaseSKU}

	for _, seg := range orderedSegments(catalog) {
		col, ok := catalog.Collection(seg.Collection)
		if !ok || col.InBaseSKU {
			continue
		}

		if override, ok := state.SKUOverrides[col.Field]; ok {
			fragments = append(fragments, override)
			continue
		}

		value, selected := state.Get(col.Field)
		if col.MultiSelect {
			fragments = appendMultiFragments(fragments, col, value, selected, &result)
			continue
		}

		if !selected {
			continue
		}
		opt, ok := col.Option(value.ID())
		if !ok || opt.SKUCode == "" {
			result.Missing = append(result.Missing, col.Field)
			continue
		}
		fragments = append(fragments, opt.SKUCode)
	}

	result.SKU = joinFragments(fragments, catalog.SKUSeparator())
	return result
}

func appendMultiFragments(fragments []string, col *Collection, value OptionValue, selected bool, result *SKUResult) []string {
	if !selected || value.Empty() {
		// An empty multi-select always canonicalizes to the none fragment.
		if col.NoneSKUCode != "" {
			fragments = append(fragments, col.NoneSKUCode)
		}
		return fragments
	}

	// Several selections without a combining rule fall back to order of
	// selection; the assembler does not invent an ordering of its own.
	for _, id := range value.IDs() {
		opt, ok := col.Option(id)
		if !ok || opt.SKUCode == "" {
			result.Missing = append(result.Missing, col.Field)
			continue
		}
		fragments = append(fragments, opt.SKUCode)
	}
	return fragments
}

// IsComplete reports whether every single-select segment of the assembly
// order has either a selection or a rule-provided override. Multi-select and
// pre-baked segments never block completeness: an empty multi-select is a
// valid "none" configuration.
func IsComplete(catalog *Catalog, product *Product, state *State) bool {
	for _, seg := range orderedSegments(catalog) {
		col, ok := catalog.Collection(seg.Collection)
		if !ok || col.InBaseSKU || col.MultiSelect {
			continue
		}
		if _, ok := state.SKUOverrides[col.Field]; ok {
			continue
		}
		if _, ok := state.Get(col.Field); !ok {
			return false
		}
	}
	return true
}

// orderedSegments returns the non-product segments sorted by position.
func orderedSegments(catalog *Catalog) []Segment {
	segs := make([]Segment, 0, len(catalog.Segments))
	for _, seg := range catalog.Segments {
		if seg.Position == 0 || seg.Collection == ProductsSegment {
			continue
		}
		segs = append(segs, seg)
	}
	slices.SortFunc(segs, func(a, b Segment) int {
		return a.Position - b.Position
	})
	return segs
}

func joinFragments(fragments []string, separator string) string {
	nonEmpty := make([]string, 0, len(fragments))
	for _, frag := range fragments {
		if frag != "" {
			nonEmpty = append(nonEmpty, frag)
		}
	}
	return strings.Join(nonEmpty, separator)
}
