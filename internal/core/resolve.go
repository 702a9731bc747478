package core

import (
	"fmt"
	"slices"
)

// ResolveOptions controls one resolution pass.
type ResolveOptions struct {
	// DynamicNarrowing enables inventory-backed narrowing of allowed options
	// (see AvailabilityOptions).
	DynamicNarrowing bool
}

// Result is the externally visible outcome of resolving a configuration.
type Result struct {
	ProductID int64 `json:"product_id"`

	// Allowed holds the selectable option ids per collection; Disabled the
	// ids that render greyed out because a rule forced another value, a
	// preset locked the field, or dynamic narrowing ruled them out. Options
	// hidden by overrides appear in neither.
	Allowed  map[string][]int64 `json:"allowed"`
	Disabled map[string][]int64 `json:"disabled,omitempty"`

	// Forced maps fields to values locked by product presets or rules.
	Forced map[string]OptionValue `json:"forced,omitempty"`
	// AppliedRules lists the ids of the rules whose conditions matched, in
	// application order, from the final pass of the auto-clear loop.
	AppliedRules []int64 `json:"applied_rules,omitempty"`
	// Cleared lists fields whose prior selection was auto-cleared because it
	// fell out of the allowed set.
	Cleared []string `json:"cleared,omitempty"`

	// Selection is the effective post-rule selection.
	Selection    Selection         `json:"selection"`
	SKUOverrides map[string]string `json:"sku_overrides,omitempty"`
	ImageRefs    []string          `json:"image_refs,omitempty"`

	NoMatch  bool   `json:"no_match,omitempty"`
	Complete bool   `json:"complete"`
	SKU      string `json:"sku,omitempty"`
}

// Resolve is the single orchestrated entry point of the core. For one
// product and a partial selection it computes what remains selectable, what
// rules forced or disabled, and the canonical SKU once the configuration is
// complete.
//
// The pass ordering matters and is fixed: lock product presets, run the rule
// engine to the final selection, resolve availability against the post-rule
// state, auto-clear any selection the availability pass invalidated and
// re-run, then assemble the SKU. Availability computed on the pre-rule
// selection would be stale.
func Resolve(catalog *Catalog, productID int64, selection Selection, opts ResolveOptions) (Result, error) {
	product, ok := catalog.Product(productID)
	if !ok {
		return Result{}, fmt.Errorf("resolve product %d: %w", productID, ErrProductNotFound)
	}

	base := sanitizeSelection(catalog, selection)
	availOpts := AvailabilityOptions{DynamicNarrowing: opts.DynamicNarrowing}

	var (
		work       *State
		outcome    RuleOutcome
		avail      Availability
		presets    Disabled
		forced     map[string]OptionValue
		allCleared []string
	)

	// Auto-clearing a field changes what the rules and the resolver see, so
	// the whole pipeline re-runs until the selection is stable. Each round
	// removes at least one field, which bounds the loop.
	for range len(base) + 1 {
		work = StateFromSelection(base)
		presets = make(Disabled)
		forced = make(map[string]OptionValue)
		applyPresets(catalog, product, work, presets, forced)

		outcome = ApplyRules(catalog, work)
		avail = ResolveAvailability(catalog, product, work, availOpts)

		cleared := clearableFields(avail.Cleared, base, forced, outcome.Forced)
		if len(cleared) == 0 {
			break
		}
		for _, field := range cleared {
			delete(base, field)
			allCleared = append(allCleared, field)
		}
	}

	for field, value := range outcome.Forced {
		forced[field] = value
	}

	disabled := make(Disabled)
	disabled.Merge(presets)
	disabled.Merge(outcome.Disabled)
	disabled.Merge(avail.Disabled)

	result := Result{
		ProductID:    product.ID,
		Allowed:      subtractDisabled(avail.Allowed, disabled),
		Disabled:     disabledIDs(disabled),
		Forced:       forced,
		AppliedRules: outcome.Applied,
		Cleared:      sortedUnique(allCleared),
		Selection:    work.Selection(),
		SKUOverrides: work.SKUOverrides,
		ImageRefs:    work.ImageRefs,
		NoMatch:      avail.NoMatch,
	}

	if IsComplete(catalog, product, work) && !avail.NoMatch {
		assembled := AssembleSKU(catalog, product, work)
		result.SKU = assembled.SKU
		// A selected option without a stored fragment leaves a hole in the
		// SKU; the configuration cannot be treated as purchasable.
		result.Complete = len(assembled.Missing) == 0
	}
	return result, nil
}

// sanitizeSelection drops fields that are not part of the catalog and
// coerces each value to the arity of its collection.
func sanitizeSelection(catalog *Catalog, selection Selection) Selection {
	out := make(Selection, len(selection))
	for field, value := range selection {
		col, ok := catalog.CollectionForField(field)
		if !ok {
			continue
		}
		if col.MultiSelect && !value.Multi() {
			value = Many(value.ID())
		}
		if !col.MultiSelect && value.Multi() {
			if len(value.IDs()) != 1 {
				continue
			}
			value = One(value.IDs()[0])
		}
		out[field] = value
	}
	return out
}

// applyPresets locks the product's fixed attribute values: they overwrite
// any user selection and disable their alternatives the same way a rule
// would.
func applyPresets(catalog *Catalog, product *Product, state *State, disabled Disabled, forced map[string]OptionValue) {
	fields := make([]string, 0, len(product.Presets))
	for field := range product.Presets {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	for _, field := range fields {
		value := One(product.Presets[field])
		state.Set(field, value)
		forced[field] = value
		disableAlternatives(catalog, field, value, disabled)
	}
}

// clearableFields filters the resolver's clear signals down to fields the
// caller actually selected. A preset or rule-forced value that falls outside
// the allowed set is a catalog data problem; clearing it here would make the
// loop chase its own tail.
func clearableFields(cleared []string, base Selection, presetForced, ruleForced map[string]OptionValue) []string {
	out := make([]string, 0, len(cleared))
	for _, field := range cleared {
		if _, ok := base[field]; !ok {
			continue
		}
		if _, ok := presetForced[field]; ok {
			continue
		}
		if _, ok := ruleForced[field]; ok {
			continue
		}
		out = append(out, field)
	}
	return out
}

func subtractDisabled(allowed map[string][]int64, disabled Disabled) map[string][]int64 {
	out := make(map[string][]int64, len(allowed))
	for collection, ids := range allowed {
		kept := make([]int64, 0, len(ids))
		for _, id := range ids {
			if !disabled.Has(collection, id) {
				kept = append(kept, id)
			}
		}
		out[collection] = kept
	}
	return out
}

func disabledIDs(disabled Disabled) map[string][]int64 {
	if len(disabled) == 0 {
		return nil
	}
	out := make(map[string][]int64, len(disabled))
	for collection := range disabled {
		out[collection] = disabled.IDs(collection)
	}
	return out
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	slices.Sort(values)
	return slices.Compact(values)
}
