package core

import (
	"encoding/json"
	"fmt"
	"slices"
)

// OptionValue is the value selected for one attribute field: a single option
// id for ordinary fields, or an ordered set of ids for multi-select fields.
// The set preserves insertion order because SKU assembly falls back to
// order-of-selection when no combining rule exists.
type OptionValue struct {
	id    int64
	ids   []int64
	multi bool
}

// One returns a single-select value.
func One(id int64) OptionValue {
	return OptionValue{id: id}
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

// ID returns the single selected id. For multi-select values it returns the
// sole member, or 0 if the set does not have exactly one member.
func (v OptionValue) ID() int64 {
	if !v.multi {
		return v.id
	}
	if len(v.ids) == 1 {
		return v.ids[0]
	}
	return 0
}

// IDs returns all selected ids in selection order.
func (v OptionValue) IDs() []int64 {
	if v.multi {
		return slices.Clone(v.ids)
	}
	return []int64{v.id}
}

// Empty reports whether the value selects nothing. Only a multi-select value
// can be empty; single-select values always carry one id.
func (v OptionValue) Empty() bool {
	return v.multi && len(v.ids) == 0
}

// Contains reports whether id is among the selected ids.
func (v OptionValue) Contains(id int64) bool {
	if v.multi {
		return slices.Contains(v.ids, id)
	}
	return v.id == id
}

// Equal reports whether two values select the same ids in the same order.
func (v OptionValue) Equal(other OptionValue) bool {
	if v.multi != other.multi {
		return false
	}
	if v.multi {
		return slices.Equal(v.ids, other.ids)
	}
	return v.id == other.id
}

// MarshalJSON encodes a single id as a JSON number and a multi-select set as
// a JSON array, matching the flat wire format for selections.
func (v OptionValue) MarshalJSON() ([]byte, error) {
	if v.multi {
		return json.Marshal(v.ids)
	}
	return json.Marshal(v.id)
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
		return fmt.Errorf("option value must be an id or an array of ids: %w", err)
	}
	*v = Many(set...)
	return nil
}

// Selection is the transport representation of a partial configuration: a
// flat mapping from attribute field name to the selected option value.
type Selection map[string]OptionValue

// Clone returns a copy of the selection.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for field, value := range s {
		out[field] = value
	}
	return out
}

// State is the working configuration the rule engine mutates during a
// resolution pass. The availability resolver and SKU assembler only read it.
type State struct {
	Values       map[string]OptionValue
	SKUOverrides map[string]string
	ImageRefs    []string
}

// NewState creates an empty working state.
func NewState() *State {
	return &State{
		Values:       make(map[string]OptionValue),
		SKUOverrides: make(map[string]string),
	}
}

// StateFromSelection seeds a working state from a transport selection.
func StateFromSelection(selection Selection) *State {
	state := NewState()
	for field, value := range selection {
		state.Values[field] = value
	}
	return state
}

// Clone returns a deep copy so a resolution pass can mutate freely without
// touching the caller's selection.
func (s *State) Clone() *State {
	out := &State{
		Values:       make(map[string]OptionValue, len(s.Values)),
		SKUOverrides: make(map[string]string, len(s.SKUOverrides)),
		ImageRefs:    slices.Clone(s.ImageRefs),
	}
	for field, value := range s.Values {
		out.Values[field] = value
	}
	for field, code := range s.SKUOverrides {
		out.SKUOverrides[field] = code
	}
	return out
}

// Get returns the value selected for field, if any.
func (s *State) Get(field string) (OptionValue, bool) {
	value, ok := s.Values[field]
	return value, ok
}

// Set records a value for field.
func (s *State) Set(field string, value OptionValue) {
	s.Values[field] = value
}

// Delete removes the selection for field.
func (s *State) Delete(field string) {
	delete(s.Values, field)
}

// Fields returns the selected field names in sorted order.
func (s *State) Fields() []string {
	fields := make([]string, 0, len(s.Values))
	for field := range s.Values {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	return fields
}

// Selection converts the state's values back to the transport form.
func (s *State) Selection() Selection {
	out := make(Selection, len(s.Values))
	for field, value := range s.Values {
		out[field] = value
	}
	return out
}

// Disabled is the side table of option ids that must render as disabled, not
// hidden, keyed by collection name.
type Disabled map[string]map[int64]struct{}

// Add marks an option id as disabled within a collection.
func (d Disabled) Add(collection string, id int64) {
	set, ok := d[collection]
	if !ok {
		set = make(map[int64]struct{})
		d[collection] = set
	}
	set[id] = struct{}{}
}

// Has reports whether an option id is disabled within a collection.
func (d Disabled) Has(collection string, id int64) bool {
	_, ok := d[collection][id]
	return ok
}

// IDs returns the disabled ids for a collection in ascending order.
func (d Disabled) IDs(collection string) []int64 {
	set := d[collection]
	if len(set) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Merge folds another disabled table into this one.
func (d Disabled) Merge(other Disabled) {
	for collection, set := range other {
		for id := range set {
			d.Add(collection, id)
		}
	}
}

// Option is one selectable row within an attribute collection.
type Option struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SKUCode   string `json:"sku_code"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sort_order"`

	// Collection-specific columns; zero when not applicable.
	HexValue string `json:"hex_value,omitempty"`
	WidthMM  int    `json:"width_mm,omitempty"`
	HeightMM int    `json:"height_mm,omitempty"`
}

// Collection is a named set of selectable options, e.g. "frame_colors".
type Collection struct {
	Name  string `json:"name"`
	Field string `json:"field"`

	// MultiSelect marks the one collection whose field holds a set of ids.
	MultiSelect bool `json:"multi_select"`
	// Anchor marks the attribute dynamic narrowing pivots on. Its own options
	// are never narrowed or disabled, so the buyer can switch at any time.
	Anchor bool `json:"anchor"`
	// NoneSKUCode is the fragment an empty multi-select assembles to.
	NoneSKUCode string `json:"none_sku_code,omitempty"`
	// InBaseSKU excludes the collection from assembly because its code is
	// already baked into the product's base fragment.
	InBaseSKU bool `json:"in_base_sku"`

	Options []Option `json:"options"`
}

// Option returns the option with the given id, if present.
func (c *Collection) Option(id int64) (Option, bool) {
	for _, opt := range c.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// ActiveIDs returns the ids of all active options sorted by sort order, then
// id.
func (c *Collection) ActiveIDs() []int64 {
	opts := make([]Option, 0, len(c.Options))
	for _, opt := range c.Options {
		if opt.Active {
			opts = append(opts, opt)
		}
	}
	slices.SortStableFunc(opts, func(a, b Option) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return int(a.ID - b.ID)
	})
	ids := make([]int64, len(opts))
	for i, opt := range opts {
		ids[i] = opt.ID
	}
	return ids
}

// Product is one purchasable catalog row within a product line.
type Product struct {
	ID      int64  `json:"id"`
	LineID  int64  `json:"line_id"`
	Name    string `json:"name"`
	BaseSKU string `json:"base_sku"`

	// Presets are attribute values fixed by the product itself (e.g. a fixed
	// light direction). They are locked before rules run.
	Presets map[string]int64 `json:"presets,omitempty"`
	// Overrides replace, not extend, the allowed option set per collection.
	Overrides map[string][]int64 `json:"overrides,omitempty"`
	// Attributes are the stored attribute foreign keys this row was built
	// with, used for inventory-backed narrowing and candidate matching.
	Attributes map[string]int64 `json:"attributes,omitempty"`
}

// ProductLine groups products and carries the baseline allowed option sets.
type ProductLine struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// Defaults is the baseline allowed set per collection, applied to every
	// product in the line absent overrides.
	Defaults map[string][]int64 `json:"defaults,omitempty"`
}

// Rule is one declarative business rule: when the condition matches the
// working state, the actions are applied. Rules are catalog data and are
// never mutated by the core.
type Rule struct {
	ID int64 `json:"id"`
	// Priority orders application; nil sorts after every numeric priority.
	Priority *int `json:"priority,omitempty"`
	When     Condition
	Then     []Action
}

// Segment is one entry of the SKU assembly order. Position 0 is always the
// product's own base fragment and is stored with the reserved collection name
// "products".
type Segment struct {
	Position   int    `json:"position"`
	Collection string `json:"collection"`
}

// ProductsSegment is the reserved collection name for position 0.
const ProductsSegment = "products"
