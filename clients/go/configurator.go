// Package configurator provides client interfaces and domain types for the
// configurator product-configuration service.
//
// Use the sub-packages to create transport-specific clients:
//
//	import cfghttp "github.com/glassline/configurator/clients/go/http"
package configurator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrStaleResolution is returned when a resolve response carries a sequence
// number older than one the client has already observed. Callers issuing
// concurrent resolves should discard the result and keep the state they
// already hold.
var ErrStaleResolution = errors.New("configurator: stale resolution")

// Resolver resolves a partial selection against a product's catalog.
type Resolver interface {
	Resolve(ctx context.Context, productID int64, selections Selection) (Resolution, error)
}

// SKUParser recovers the product and selection encoded in a SKU string.
type SKUParser interface {
	ParseSKU(ctx context.Context, sku string) (ParsedSKU, error)
}

// CandidateLister lists the products of a line, optionally narrowed by
// stored attribute values.
type CandidateLister interface {
	ListProducts(ctx context.Context, lineID int64, filter map[string]int64) ([]Product, error)
}

// OptionValue is the value selected for one attribute field: a single option
// id for ordinary fields, or an ordered set of ids for multi-select fields.
type OptionValue struct {
	ids   []int64
	multi bool
}

// One returns a single-select value.
func One(id int64) OptionValue {
	return OptionValue{ids: []int64{id}}
}

// Many returns a multi-select value holding the given ids in order.
// Duplicates are dropped, keeping the first occurrence.
func Many(ids ...int64) OptionValue {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return OptionValue{ids: out, multi: true}
}

// Multi reports whether the value is a multi-select set.
func (v OptionValue) Multi() bool { return v.multi }

// IDs returns all selected ids in selection order.
func (v OptionValue) IDs() []int64 { return slices.Clone(v.ids) }

// ID returns the single selected id, or 0 if the value does not hold
// exactly one id.
func (v OptionValue) ID() int64 {
	if len(v.ids) == 1 {
		return v.ids[0]
	}
	return 0
}

// Equal reports whether two values select the same ids in the same order.
func (v OptionValue) Equal(other OptionValue) bool {
	return v.multi == other.multi && slices.Equal(v.ids, other.ids)
}

// MarshalJSON encodes a single id as a JSON number and a multi-select set as
// a JSON array, matching the server's flat wire format for selections.
func (v OptionValue) MarshalJSON() ([]byte, error) {
	if v.multi {
		return json.Marshal(v.ids)
	}
	return json.Marshal(v.ID())
}

// UnmarshalJSON accepts either a JSON number or an array of numbers.
func (v *OptionValue) UnmarshalJSON(data []byte) error {
	var single int64
	if err := json.Unmarshal(data, &single); err == nil {
		*v = One(single)
		return nil
	}

	var set []int64
	if err := json.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("configurator: option value must be an id or an array of ids: %w", err)
	}
	*v = Many(set...)
	return nil
}

// Selection is a partial configuration: a flat mapping from attribute field
// name to the selected option value.
type Selection map[string]OptionValue

// Resolution is the outcome of resolving a configuration.
type Resolution struct {
	// Sequence is the server-assigned monotonic resolution number. HTTP
	// clients use it to drop responses that arrive out of order.
	Sequence  uint64 `json:"sequence"`
	ProductID int64  `json:"product_id"`

	// Allowed holds the selectable option ids per collection; Disabled the
	// ids that render greyed out. Options hidden by product overrides
	// appear in neither.
	Allowed  map[string][]int64 `json:"allowed"`
	Disabled map[string][]int64 `json:"disabled,omitempty"`

	// Forced maps fields to values locked by product presets or rules.
	Forced map[string]OptionValue `json:"forced,omitempty"`
	// AppliedRules lists the ids of the rules that matched, in application
	// order.
	AppliedRules []int64 `json:"applied_rules,omitempty"`
	// Cleared lists fields whose prior selection was auto-cleared because
	// it fell out of the allowed set.
	Cleared []string `json:"cleared,omitempty"`

	// Selection is the effective post-rule selection.
	Selection    Selection         `json:"selection"`
	SKUOverrides map[string]string `json:"sku_overrides,omitempty"`
	ImageRefs    []string          `json:"image_refs,omitempty"`

	NoMatch  bool   `json:"no_match,omitempty"`
	Complete bool   `json:"complete"`
	SKU      string `json:"sku,omitempty"`
}

// ParsedSKU is the product and selection recovered from a SKU string.
type ParsedSKU struct {
	ProductID int64     `json:"product_id"`
	Selection Selection `json:"selections"`
}

// Product is one catalog product matching a candidate query.
type Product struct {
	ID         int64            `json:"id"`
	LineID     int64            `json:"line_id"`
	Name       string           `json:"name"`
	BaseSKU    string           `json:"base_sku"`
	Attributes map[string]int64 `json:"attributes,omitempty"`
}
