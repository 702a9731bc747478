package core

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Operator is a field comparison operator in a rule condition.
type Operator string

const (
	OpEq    Operator = "_eq"
	OpNeq   Operator = "_neq"
	OpIn    Operator = "_in"
	OpNin   Operator = "_nin"
	OpEmpty Operator = "_empty"
)

const (
	keyAnd = "_and"
	keyOr  = "_or"
)

// Condition is a parsed rule condition: a comparison leaf or an and/or
// combinator over sub-conditions. The set of implementations is closed.
type Condition interface {
	condNode()
}

// Compare matches one field of the working state against option ids, or
// checks it for emptiness when Op is OpEmpty.
type Compare struct {
	Field string
	Op    Operator
	// Args holds the comparison ids: exactly one for _eq/_neq, one or more
	// for _in/_nin, none for _empty.
	Args []int64
	// WantEmpty is the boolean argument of _empty.
	WantEmpty bool
}

// AllOf matches when every sub-condition matches.
type AllOf struct {
	Conditions []Condition
}

// AnyOf matches when at least one sub-condition matches.
type AnyOf struct {
	Conditions []Condition
}

func (Compare) condNode() {}
func (AllOf) condNode()   {}
func (AnyOf) condNode()   {}

// EvaluateCondition evaluates a condition against the working state. It is
// side-effect free and may be called any number of times.
//
// A field missing from the state does not match _eq/_in, does match
// _neq/_nin, and counts as empty for _empty.
func EvaluateCondition(cond Condition, state *State) bool {
	switch c := cond.(type) {
	case Compare:
		return evaluateCompare(c, state)
	case AllOf:
		for _, sub := range c.Conditions {
			if !EvaluateCondition(sub, state) {
				return false
			}
		}
		return true
	case AnyOf:
		for _, sub := range c.Conditions {
			if EvaluateCondition(sub, state) {
				return true
			}
		}
		return false
	default:
		// The variant set is closed; an unknown node can only come from a
		// caller constructing conditions by hand.
		return false
	}
}

func evaluateCompare(c Compare, state *State) bool {
	value, ok := state.Get(c.Field)

	switch c.Op {
	case OpEmpty:
		empty := !ok || value.Empty()
		return empty == c.WantEmpty
	case OpEq:
		return ok && len(c.Args) == 1 && value.Contains(c.Args[0])
	case OpNeq:
		return !(ok && len(c.Args) == 1 && value.Contains(c.Args[0]))
	case OpIn:
		if !ok {
			return false
		}
		for _, arg := range c.Args {
			if value.Contains(arg) {
				return true
			}
		}
		return false
	case OpNin:
		if !ok {
			return true
		}
		for _, arg := range c.Args {
			if value.Contains(arg) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ParseCondition parses the declarative if_this JSON form into a condition
// tree. The form is Hasura-like:
//
//	{"driver": {"_in": [4, 5]}}
//	{"_and": [{"size": {"_eq": 7}}, {"finish": {"_neq": 2}}]}
//
// Multiple fields, or multiple operators on one field, combine as an implicit
// _and. Malformed nodes (null comparison values, unknown operators, non-array
// _in arguments) are catalog data errors reported at load time.
func ParseCondition(raw json.RawMessage) (Condition, error) {
	if len(raw) == 0 {
		return nil, catalogErrorf("condition is empty")
	}

	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, catalogErrorf("condition is not an object: %v", err)
	}
	return parseConditionNode(node)
}

func parseConditionNode(node map[string]json.RawMessage) (Condition, error) {
	if len(node) == 0 {
		return nil, catalogErrorf("condition object is empty")
	}

	conds := make([]Condition, 0, len(node))
	for _, key := range sortedKeys(node) {
		value := node[key]
		switch key {
		case keyAnd, keyOr:
			subs, err := parseConditionList(key, value)
			if err != nil {
				return nil, err
			}
			if key == keyAnd {
				conds = append(conds, AllOf{Conditions: subs})
			} else {
				conds = append(conds, AnyOf{Conditions: subs})
			}
		default:
			fieldConds, err := parseFieldComparisons(key, value)
			if err != nil {
				return nil, err
			}
			conds = append(conds, fieldConds...)
		}
	}

	if len(conds) == 1 {
		return conds[0], nil
	}
	return AllOf{Conditions: conds}, nil
}

func parseConditionList(key string, raw json.RawMessage) ([]Condition, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, catalogErrorf("%s must be an array of conditions: %v", key, err)
	}
	if len(items) == 0 {
		return nil, catalogErrorf("%s must not be empty", key)
	}

	subs := make([]Condition, 0, len(items))
	for _, item := range items {
		sub, err := parseConditionNode(item)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func parseFieldComparisons(field string, raw json.RawMessage) ([]Condition, error) {
	var ops map[string]json.RawMessage
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, catalogErrorf("field %q comparison is not an object: %v", field, err)
	}
	if len(ops) == 0 {
		return nil, catalogErrorf("field %q has no operators", field)
	}

	conds := make([]Condition, 0, len(ops))
	for _, opKey := range sortedKeys(ops) {
		arg := ops[opKey]
		if isJSONNull(arg) {
			return nil, catalogErrorf("field %q: %s: null is not a valid comparison value", field, opKey)
		}

		switch Operator(opKey) {
		case OpEq, OpNeq:
			id, err := parseID(arg)
			if err != nil {
				return nil, catalogErrorf("field %q: %s: %v", field, opKey, err)
			}
			conds = append(conds, Compare{Field: field, Op: Operator(opKey), Args: []int64{id}})
		case OpIn, OpNin:
			ids, err := parseIDList(arg)
			if err != nil {
				return nil, catalogErrorf("field %q: %s: %v", field, opKey, err)
			}
			conds = append(conds, Compare{Field: field, Op: Operator(opKey), Args: ids})
		case OpEmpty:
			var want bool
			if err := json.Unmarshal(arg, &want); err != nil {
				return nil, catalogErrorf("field %q: _empty takes a boolean: %v", field, err)
			}
			conds = append(conds, Compare{Field: field, Op: OpEmpty, WantEmpty: want})
		default:
			return nil, catalogErrorf("field %q: unknown operator %q", field, opKey)
		}
	}
	return conds, nil
}

func parseID(raw json.RawMessage) (int64, error) {
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, fmt.Errorf("expected an option id: %w", err)
	}
	return id, nil
}

func parseIDList(raw json.RawMessage) ([]int64, error) {
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("expected an array of option ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("expected a non-empty array of option ids")
	}
	return ids, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
