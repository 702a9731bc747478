package core

import "slices"

// RuleOutcome is what one rule-engine pass produced: the disabled side table,
// the values rules forced, and which rules fired, in application order.
type RuleOutcome struct {
	Disabled Disabled
	Forced   map[string]OptionValue
	Applied  []int64
}

// SortRules returns the rules in application order: numeric priorities
// ascending first, then all nil-priority rules, ties broken by id ascending.
// The input slice is not modified.
func SortRules(rules []Rule) []Rule {
	sorted := slices.Clone(rules)
	slices.SortStableFunc(sorted, func(a, b Rule) int {
		switch {
		case a.Priority == nil && b.Priority == nil:
			return compareInt64(a.ID, b.ID)
		case a.Priority == nil:
			return 1
		case b.Priority == nil:
			return -1
		case *a.Priority != *b.Priority:
			return *a.Priority - *b.Priority
		default:
			return compareInt64(a.ID, b.ID)
		}
	})
	return sorted
}

// ApplyRules runs the catalog's rules exactly once in priority order against
// state, mutating it in place. Each rule's condition sees the state as left
// by every rule before it; a rule can therefore never observe the effect of a
// lower-priority rule. This single-pass ordering is deliberate and must not
// be replaced with fixed-point iteration.
func ApplyRules(catalog *Catalog, state *State) RuleOutcome {
	outcome := RuleOutcome{
		Disabled: make(Disabled),
		Forced:   make(map[string]OptionValue),
	}

	for _, rule := range SortRules(catalog.Rules) {
		if !EvaluateCondition(rule.When, state) {
			continue
		}
		outcome.Applied = append(outcome.Applied, rule.ID)
		for _, action := range rule.Then {
			applyAction(catalog, state, action, &outcome)
		}
	}
	return outcome
}

func applyAction(catalog *Catalog, state *State, action Action, outcome *RuleOutcome) {
	switch a := action.(type) {
	case SetValue:
		state.Set(a.Field, a.Value)
		outcome.Forced[a.Field] = a.Value
		disableAlternatives(catalog, a.Field, a.Value, outcome.Disabled)
	case SetSKUOverride:
		state.SKUOverrides[a.Field] = a.Code
	case SetImageRef:
		state.ImageRefs = append(state.ImageRefs, a.Refs...)
	}
}

// disableAlternatives marks every option of the field's collection other than
// the forced value as disabled. Forced values disable alternatives, never
// hide them. The anchor collection is exempt: it stays switchable.
func disableAlternatives(catalog *Catalog, field string, value OptionValue, disabled Disabled) {
	col, ok := catalog.CollectionForField(field)
	if !ok || col.Anchor {
		return
	}
	for _, opt := range col.Options {
		if !value.Contains(opt.ID) {
			disabled.Add(col.Name, opt.ID)
		}
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
