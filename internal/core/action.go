package core

import "encoding/json"

// Action is one effect of a matched rule. The variant set is closed so the
// rule engine can guarantee exactly what each action touches: SetValue writes
// the working selection and the disabled table, SetSKUOverride writes the SKU
// override table, SetImageRef only threads image references through.
type Action interface {
	actionNode()
}

// SetValue forces a field to a value. Every other option of the field's
// collection is disabled for the pass, never hidden.
type SetValue struct {
	Field string
	Value OptionValue
}

// SetSKUOverride substitutes a literal fragment for the field's normal SKU
// code during assembly. Case is preserved verbatim.
type SetSKUOverride struct {
	Field string
	Code  string
}

// SetImageRef records image references a presentation layer should prefer
// over the product's own images. The core does not resolve them.
type SetImageRef struct {
	Refs []string
}

func (SetValue) actionNode()       {}
func (SetSKUOverride) actionNode() {}
func (SetImageRef) actionNode()    {}

const (
	keyImage = "_image"
	keySKU   = "_sku"
)

// ParseActions parses the declarative then_that JSON form into actions:
//
//	{"light_output": {"_eq": 2}}          set light_output to option 2
//	{"accessories": {"_sku": "DFLR"}}     override the accessories fragment
//	{"_image": ["mirrors/round-led.svg"]} prefer these image references
//
// Keys are processed in sorted order so the action list is deterministic.
// Null values and unknown action operators are catalog data errors.
func ParseActions(raw json.RawMessage) ([]Action, error) {
	if len(raw) == 0 {
		return nil, catalogErrorf("action is empty")
	}

	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, catalogErrorf("action is not an object: %v", err)
	}
	if len(node) == 0 {
		return nil, catalogErrorf("action object is empty")
	}

	actions := make([]Action, 0, len(node))
	for _, key := range sortedKeys(node) {
		value := node[key]
		if isJSONNull(value) {
			return nil, catalogErrorf("action %q: null is not a valid value", key)
		}

		if key == keyImage {
			refs, err := parseImageRefs(value)
			if err != nil {
				return nil, err
			}
			actions = append(actions, SetImageRef{Refs: refs})
			continue
		}

		fieldActions, err := parseFieldAction(key, value)
		if err != nil {
			return nil, err
		}
		actions = append(actions, fieldActions...)
	}
	return actions, nil
}

func parseFieldAction(field string, raw json.RawMessage) ([]Action, error) {
	var ops map[string]json.RawMessage
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, catalogErrorf("action on field %q is not an object: %v", field, err)
	}
	if len(ops) == 0 {
		return nil, catalogErrorf("action on field %q has no operators", field)
	}

	actions := make([]Action, 0, len(ops))
	for _, opKey := range sortedKeys(ops) {
		arg := ops[opKey]
		if isJSONNull(arg) {
			return nil, catalogErrorf("action %q: %s: null is not a valid value", field, opKey)
		}

		switch opKey {
		case string(OpEq):
			var value OptionValue
			if err := json.Unmarshal(arg, &value); err != nil {
				return nil, catalogErrorf("action %q: _eq: %v", field, err)
			}
			actions = append(actions, SetValue{Field: field, Value: value})
		case keySKU:
			var code string
			if err := json.Unmarshal(arg, &code); err != nil {
				return nil, catalogErrorf("action %q: _sku takes a string: %v", field, err)
			}
			if code == "" {
				return nil, catalogErrorf("action %q: _sku must not be empty", field)
			}
			actions = append(actions, SetSKUOverride{Field: field, Code: code})
		default:
			return nil, catalogErrorf("action %q: unknown operator %q", field, opKey)
		}
	}
	return actions, nil
}

func parseImageRefs(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}

	var refs []string
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, catalogErrorf("_image takes a string or an array of strings: %v", err)
	}
	if len(refs) == 0 {
		return nil, catalogErrorf("_image must not be empty")
	}
	return refs, nil
}
