package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultSKUSeparator joins SKU fragments when the catalog does not specify
// its own separator.
const DefaultSKUSeparator = "-"

// ErrProductNotFound is returned when a resolution names a product id that is
// not part of the catalog snapshot.
var ErrProductNotFound = errors.New("product not found")

// CatalogError reports malformed catalog data: a bad rule expression, a
// segment-order entry pointing at an unknown collection, and the like. It is
// fatal at load time and must never be tolerated silently.
type CatalogError struct {
	Msg string
}

func (e *CatalogError) Error() string {
	return "catalog: " + e.Msg
}

func catalogErrorf(format string, args ...any) error {
	return &CatalogError{Msg: fmt.Sprintf(format, args...)}
}

// Catalog is an immutable snapshot of everything one resolution pass needs:
// the product line, its products, the referenced attribute collections, the
// business rules, and the SKU segment order. Load it once, validate it once,
// then treat it as read-only.
type Catalog struct {
	Line        ProductLine  `json:"line"`
	Products    []Product    `json:"products"`
	Collections []Collection `json:"collections"`
	Rules       []Rule       `json:"rules"`
	Segments    []Segment    `json:"segments"`
	Separator   string       `json:"separator,omitempty"`
}

// RawRule is the stored form of a rule before its condition and action JSON
// have been parsed. Repositories hand these to BuildRules.
type RawRule struct {
	ID       int64
	Priority *int
	IfThis   json.RawMessage
	ThenThat json.RawMessage
}

// BuildRules parses stored rule rows into evaluated form. Any malformed
// condition or action aborts the whole load with a CatalogError.
func BuildRules(raws []RawRule) ([]Rule, error) {
	rules := make([]Rule, 0, len(raws))
	for _, raw := range raws {
		when, err := ParseCondition(raw.IfThis)
		if err != nil {
			return nil, catalogErrorf("rule %d: %v", raw.ID, errMessage(err))
		}
		then, err := ParseActions(raw.ThenThat)
		if err != nil {
			return nil, catalogErrorf("rule %d: %v", raw.ID, errMessage(err))
		}
		rules = append(rules, Rule{ID: raw.ID, Priority: raw.Priority, When: when, Then: then})
	}
	return rules, nil
}

func errMessage(err error) string {
	var catErr *CatalogError
	if errors.As(err, &catErr) {
		return catErr.Msg
	}
	return err.Error()
}

// SKUSeparator returns the configured fragment separator or the default.
func (c *Catalog) SKUSeparator() string {
	if c.Separator != "" {
		return c.Separator
	}
	return DefaultSKUSeparator
}

// Collection returns the collection with the given name.
func (c *Catalog) Collection(name string) (*Collection, bool) {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			return &c.Collections[i], true
		}
	}
	return nil, false
}

// CollectionForField returns the collection whose selection field is field.
func (c *Catalog) CollectionForField(field string) (*Collection, bool) {
	for i := range c.Collections {
		if c.Collections[i].Field == field {
			return &c.Collections[i], true
		}
	}
	return nil, false
}

// AnchorCollection returns the collection flagged as the narrowing anchor.
func (c *Catalog) AnchorCollection() (*Collection, bool) {
	for i := range c.Collections {
		if c.Collections[i].Anchor {
			return &c.Collections[i], true
		}
	}
	return nil, false
}

// Product returns the product with the given id.
func (c *Catalog) Product(id int64) (*Product, bool) {
	for i := range c.Products {
		if c.Products[i].ID == id {
			return &c.Products[i], true
		}
	}
	return nil, false
}

// Validate checks the snapshot's internal consistency. Every failure is a
// CatalogError; a snapshot that does not validate must not be resolved
// against.
func (c *Catalog) Validate() error {
	seenNames := make(map[string]struct{}, len(c.Collections))
	seenFields := make(map[string]struct{}, len(c.Collections))
	anchors := 0
	for i := range c.Collections {
		col := &c.Collections[i]
		if col.Name == "" || col.Field == "" {
			return catalogErrorf("collection %q: name and field are required", col.Name)
		}
		if col.Name == ProductsSegment {
			return catalogErrorf("collection name %q is reserved", ProductsSegment)
		}
		if _, dup := seenNames[col.Name]; dup {
			return catalogErrorf("duplicate collection %q", col.Name)
		}
		if _, dup := seenFields[col.Field]; dup {
			return catalogErrorf("duplicate field %q", col.Field)
		}
		seenNames[col.Name] = struct{}{}
		seenFields[col.Field] = struct{}{}

		if col.Anchor {
			anchors++
		}
		if col.MultiSelect && !col.InBaseSKU && col.NoneSKUCode == "" {
			return catalogErrorf("multi-select collection %q needs a none fragment", col.Name)
		}

		seenIDs := make(map[int64]struct{}, len(col.Options))
		for _, opt := range col.Options {
			if _, dup := seenIDs[opt.ID]; dup {
				return catalogErrorf("collection %q: duplicate option id %d", col.Name, opt.ID)
			}
			seenIDs[opt.ID] = struct{}{}
		}
	}
	if anchors > 1 {
		return catalogErrorf("at most one anchor collection is allowed, found %d", anchors)
	}

	if err := c.validateSegments(); err != nil {
		return err
	}
	if err := c.validateOptionRefs(); err != nil {
		return err
	}
	return c.validateRules()
}

func (c *Catalog) validateSegments() error {
	positions := make(map[int]struct{}, len(c.Segments))
	for _, seg := range c.Segments {
		if _, dup := positions[seg.Position]; dup {
			return catalogErrorf("duplicate segment position %d", seg.Position)
		}
		positions[seg.Position] = struct{}{}

		if seg.Position == 0 {
			if seg.Collection != ProductsSegment {
				return catalogErrorf("segment position 0 must be %q, got %q", ProductsSegment, seg.Collection)
			}
			continue
		}
		if seg.Collection == ProductsSegment {
			return catalogErrorf("segment position %d: %q is only valid at position 0", seg.Position, ProductsSegment)
		}
		if _, ok := c.Collection(seg.Collection); !ok {
			return catalogErrorf("segment position %d references unknown collection %q", seg.Position, seg.Collection)
		}
	}
	return nil
}

func (c *Catalog) validateOptionRefs() error {
	check := func(owner, collection string, ids []int64) error {
		col, ok := c.Collection(collection)
		if !ok {
			return catalogErrorf("%s references unknown collection %q", owner, collection)
		}
		for _, id := range ids {
			if _, ok := col.Option(id); !ok {
				return catalogErrorf("%s references unknown option %d in %q", owner, id, collection)
			}
		}
		return nil
	}

	for collection, ids := range c.Line.Defaults {
		if err := check(fmt.Sprintf("line %d defaults", c.Line.ID), collection, ids); err != nil {
			return err
		}
	}
	for i := range c.Products {
		p := &c.Products[i]
		for collection, ids := range p.Overrides {
			if err := check(fmt.Sprintf("product %d override", p.ID), collection, ids); err != nil {
				return err
			}
		}
		for field, id := range p.Presets {
			col, ok := c.CollectionForField(field)
			if !ok {
				return catalogErrorf("product %d preset references unknown field %q", p.ID, field)
			}
			if _, ok := col.Option(id); !ok {
				return catalogErrorf("product %d preset references unknown option %d in %q", p.ID, id, col.Name)
			}
		}
	}
	return nil
}

func (c *Catalog) validateRules() error {
	for _, rule := range c.Rules {
		if rule.When == nil {
			return catalogErrorf("rule %d has no condition", rule.ID)
		}
		if len(rule.Then) == 0 {
			return catalogErrorf("rule %d has no actions", rule.ID)
		}
		if err := c.validateConditionFields(rule.ID, rule.When); err != nil {
			return err
		}
		for _, action := range rule.Then {
			switch a := action.(type) {
			case SetValue:
				col, ok := c.CollectionForField(a.Field)
				if !ok {
					return catalogErrorf("rule %d sets unknown field %q", rule.ID, a.Field)
				}
				for _, id := range a.Value.IDs() {
					if _, ok := col.Option(id); !ok {
						return catalogErrorf("rule %d sets unknown option %d in %q", rule.ID, id, col.Name)
					}
				}
			case SetSKUOverride:
				if _, ok := c.CollectionForField(a.Field); !ok {
					return catalogErrorf("rule %d overrides SKU of unknown field %q", rule.ID, a.Field)
				}
			case SetImageRef:
				// Opaque references, nothing to check.
			}
		}
	}
	return nil
}

func (c *Catalog) validateConditionFields(ruleID int64, cond Condition) error {
	switch n := cond.(type) {
	case Compare:
		if _, ok := c.CollectionForField(n.Field); !ok {
			return catalogErrorf("rule %d condition references unknown field %q", ruleID, n.Field)
		}
	case AllOf:
		for _, sub := range n.Conditions {
			if err := c.validateConditionFields(ruleID, sub); err != nil {
				return err
			}
		}
	case AnyOf:
		for _, sub := range n.Conditions {
			if err := c.validateConditionFields(ruleID, sub); err != nil {
				return err
			}
		}
	}
	return nil
}
