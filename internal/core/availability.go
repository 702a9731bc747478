package core

import "slices"

// AvailabilityOptions controls optional resolver behavior.
type AvailabilityOptions struct {
	// DynamicNarrowing restricts allowed options to the values actually
	// present among catalog products consistent with the current selection,
	// pivoting on the anchor attribute. Without it, availability is purely
	// defaults plus overrides.
	DynamicNarrowing bool
}

// Availability is the result of one availability pass.
//
// Allowed holds the selectable option ids per collection. Disabled holds ids
// that stay visible but cannot be selected because dynamic narrowing ruled
// them out; options hidden by a product override appear in neither. Cleared
// lists selected fields whose value is no longer allowed: the resolver never
// mutates the state itself, it signals the orchestrator to clear and re-run.
type Availability struct {
	Allowed  map[string][]int64
	Disabled Disabled
	Cleared  []string
	NoMatch  bool
}

// ResolveAvailability computes the selectable option set per collection for
// one product: product-line defaults, replaced per collection by product
// overrides, then optionally narrowed to the values present among candidate
// products matching the selection. The anchor collection is never narrowed.
func ResolveAvailability(catalog *Catalog, product *Product, state *State, opts AvailabilityOptions) Availability {
	avail := Availability{
		Allowed:  make(map[string][]int64),
		Disabled: make(Disabled),
	}

	// Defaults seed the visible set; overrides replace it outright. An
	// override hides every non-override option for this product.
	for i := range catalog.Collections {
		col := &catalog.Collections[i]
		visible := col.ActiveIDs()
		if defaults, ok := catalog.Line.Defaults[col.Name]; ok {
			visible = intersectOrdered(visible, defaults)
		}
		if override, ok := product.Overrides[col.Name]; ok {
			// The override set replaces the allowed set exactly, inactive
			// options included.
			visible = orderedByCollection(col, override)
		}
		avail.Allowed[col.Name] = visible
	}

	if opts.DynamicNarrowing {
		narrowDynamic(catalog, state, &avail)
	}

	markCleared(catalog, state, &avail)
	return avail
}

// narrowDynamic recomputes each narrowable collection's allowed set from the
// attribute values present among candidate products. Narrowed-out options
// move to the disabled table so they render greyed out, not hidden. The
// anchor attribute's own collection is exempt so the buyer can always switch.
func narrowDynamic(catalog *Catalog, state *State, avail *Availability) {
	anchor, ok := catalog.AnchorCollection()
	if !ok {
		return
	}
	if _, selected := state.Get(anchor.Field); !selected {
		return
	}

	attrFields := storedAttributeFields(catalog)

	if len(candidates(catalog, state, attrFields, "")) == 0 {
		// Zero inventory for this combination is a reportable state, not an
		// error, and not a license to fall back to unfiltered data.
		avail.NoMatch = true
		return
	}

	for i := range catalog.Collections {
		col := &catalog.Collections[i]
		if col.Anchor {
			continue
		}
		if _, stored := attrFields[col.Field]; !stored {
			continue
		}

		// A collection's own selection must not narrow itself, or the first
		// pick would lock every alternative out.
		matches := candidates(catalog, state, attrFields, col.Field)
		present := make(map[int64]struct{}, len(matches))
		for _, p := range matches {
			if id, ok := p.Attributes[col.Field]; ok {
				present[id] = struct{}{}
			}
		}

		visible := avail.Allowed[col.Name]
		allowed := make([]int64, 0, len(visible))
		for _, id := range visible {
			if _, ok := present[id]; ok {
				allowed = append(allowed, id)
			} else {
				avail.Disabled.Add(col.Name, id)
			}
		}
		avail.Allowed[col.Name] = allowed
	}
}

// candidates returns the products whose stored attributes match every
// selected attribute field except excludeField.
func candidates(catalog *Catalog, state *State, attrFields map[string]struct{}, excludeField string) []*Product {
	var out []*Product
	for i := range catalog.Products {
		p := &catalog.Products[i]
		if productMatches(p, state, attrFields, excludeField) {
			out = append(out, p)
		}
	}
	return out
}

func productMatches(p *Product, state *State, attrFields map[string]struct{}, excludeField string) bool {
	for field, value := range state.Values {
		if field == excludeField {
			continue
		}
		if _, stored := attrFields[field]; !stored {
			continue
		}
		if value.Empty() {
			continue
		}
		id, ok := p.Attributes[field]
		if !ok || !value.Contains(id) {
			return false
		}
	}
	return true
}

// storedAttributeFields returns the fields any product stores an attribute
// value for; only those participate in candidate matching.
func storedAttributeFields(catalog *Catalog) map[string]struct{} {
	fields := make(map[string]struct{})
	for i := range catalog.Products {
		for field := range catalog.Products[i].Attributes {
			fields[field] = struct{}{}
		}
	}
	return fields
}

// markCleared flags every selected field whose value fell out of the allowed
// set, so the orchestrator can auto-clear it instead of leaving a stale
// selection behind.
func markCleared(catalog *Catalog, state *State, avail *Availability) {
	for _, field := range state.Fields() {
		col, ok := catalog.CollectionForField(field)
		if !ok {
			continue
		}
		allowed, ok := avail.Allowed[col.Name]
		if !ok {
			continue
		}
		value := state.Values[field]
		if value.Empty() {
			continue
		}
		for _, id := range value.IDs() {
			if !slices.Contains(allowed, id) {
				avail.Cleared = append(avail.Cleared, field)
				break
			}
		}
	}
}

// intersectOrdered keeps the members of ordered that also appear in subset,
// preserving ordered's ordering.
func intersectOrdered(ordered, subset []int64) []int64 {
	out := make([]int64, 0, len(subset))
	for _, id := range ordered {
		if slices.Contains(subset, id) {
			out = append(out, id)
		}
	}
	return out
}

// orderedByCollection returns ids sorted by the collection's option sort
// order. Ids without a matching option row keep their input order at the end.
func orderedByCollection(col *Collection, ids []int64) []int64 {
	known := make([]Option, 0, len(ids))
	var unknown []int64
	for _, id := range ids {
		if opt, ok := col.Option(id); ok {
			known = append(known, opt)
		} else {
			unknown = append(unknown, id)
		}
	}
	slices.SortStableFunc(known, func(a, b Option) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return int(a.ID - b.ID)
	})
	out := make([]int64, 0, len(ids))
	for _, opt := range known {
		out = append(out, opt.ID)
	}
	return append(out, unknown...)
}
