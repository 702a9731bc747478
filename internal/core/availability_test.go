package core

import (
	"slices"
	"testing"
)

func mustProduct(t *testing.T, catalog *Catalog, id int64) *Product {
	t.Helper()
	product, ok := catalog.Product(id)
	if !ok {
		t.Fatalf("product %d missing from fixture", id)
	}
	return product
}

func TestResolveAvailabilityDefaults(t *testing.T) {
	catalog := testCatalog()
	state := NewState()

	avail := ResolveAvailability(catalog, mustProduct(t, catalog, 100), state, AvailabilityOptions{})

	want := map[string][]int64{
		"mirror_styles": {1, 2},
		"sizes":         {5, 6, 7},
		"frame_colors":  {10, 11, 12},
		"drivers":       {3, 4, 5},
		"light_outputs": {1, 2, 8},
		"accessories":   {20, 21},
		// No line default for this collection, so every active option shows.
		"frame_thickness": {30, 31},
	}
	for name, ids := range want {
		if got := avail.Allowed[name]; !slices.Equal(got, ids) {
			t.Errorf("Allowed[%s] = %v, want %v", name, got, ids)
		}
	}
	if len(avail.Cleared) != 0 || avail.NoMatch {
		t.Fatalf("Cleared = %v, NoMatch = %t on an empty selection", avail.Cleared, avail.NoMatch)
	}
}

func TestResolveAvailabilityInactiveOptionHidden(t *testing.T) {
	catalog := testCatalog()
	col, _ := catalog.Collection("drivers")
	col.Options[2].Active = false

	avail := ResolveAvailability(catalog, mustProduct(t, catalog, 100), NewState(), AvailabilityOptions{})

	if got := avail.Allowed["drivers"]; !slices.Equal(got, []int64{3, 4}) {
		t.Fatalf("Allowed[drivers] = %v, want [3 4]", got)
	}
	if avail.Disabled.Has("drivers", 5) {
		t.Fatal("inactive options are hidden, not disabled")
	}
}

func TestResolveAvailabilityOverrideReplaces(t *testing.T) {
	catalog := testCatalog()
	// Deactivate 6 to show overrides win over the active flag too.
	col, _ := catalog.Collection("sizes")
	col.Options[1].Active = false
	product := mustProduct(t, catalog, 100)
	product.Overrides = map[string][]int64{"sizes": {6, 5}}

	avail := ResolveAvailability(catalog, product, NewState(), AvailabilityOptions{})

	// Exactly the override ids, in collection sort order.
	if got := avail.Allowed["sizes"]; !slices.Equal(got, []int64{5, 6}) {
		t.Fatalf("Allowed[sizes] = %v, want [5 6]", got)
	}
	// 7 is hidden by the override, not disabled.
	if avail.Disabled.Has("sizes", 7) {
		t.Fatal("override-hidden option leaked into disabled")
	}
}

func TestResolveAvailabilityOverrideClearsStaleSelection(t *testing.T) {
	catalog := testCatalog()
	product := mustProduct(t, catalog, 100)
	product.Overrides = map[string][]int64{"sizes": {5, 6}}
	state := stateWith(map[string]OptionValue{"size": One(7)})

	avail := ResolveAvailability(catalog, product, state, AvailabilityOptions{})

	if !slices.Contains(avail.Cleared, "size") {
		t.Fatalf("Cleared = %v, want size flagged", avail.Cleared)
	}
	// The resolver only signals; clearing is the orchestrator's job.
	if value, ok := state.Get("size"); !ok || !value.Equal(One(7)) {
		t.Fatalf("state mutated: size = %v (%t)", value, ok)
	}
}

func TestResolveAvailabilityDynamicNarrowing(t *testing.T) {
	catalog := testCatalog()
	state := stateWith(map[string]OptionValue{"mirror_style": One(1)})

	avail := ResolveAvailability(catalog, mustProduct(t, catalog, 100), state, AvailabilityOptions{DynamicNarrowing: true})

	// Rectangle products exist in 24x36 and 30x36 only.
	if got := avail.Allowed["sizes"]; !slices.Equal(got, []int64{5, 6}) {
		t.Fatalf("Allowed[sizes] = %v, want [5 6]", got)
	}
	if got := avail.Disabled.IDs("sizes"); !slices.Equal(got, []int64{7}) {
		t.Fatalf("Disabled[sizes] = %v, want [7]", got)
	}
	// The anchor itself is never narrowed.
	if got := avail.Allowed["mirror_styles"]; !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("Allowed[mirror_styles] = %v, want [1 2]", got)
	}
	// Collections no product stores an attribute for stay untouched.
	if got := avail.Allowed["frame_colors"]; !slices.Equal(got, []int64{10, 11, 12}) {
		t.Fatalf("Allowed[frame_colors] = %v, want [10 11 12]", got)
	}
}

func TestResolveAvailabilityNarrowingNeedsAnchor(t *testing.T) {
	catalog := testCatalog()
	state := stateWith(map[string]OptionValue{"size": One(5)})

	avail := ResolveAvailability(catalog, mustProduct(t, catalog, 100), state, AvailabilityOptions{DynamicNarrowing: true})

	if got := avail.Allowed["sizes"]; !slices.Equal(got, []int64{5, 6, 7}) {
		t.Fatalf("Allowed[sizes] = %v, want unnarrowed [5 6 7]", got)
	}
}

func TestResolveAvailabilitySelectionDoesNotNarrowItself(t *testing.T) {
	catalog := testCatalog()
	state := stateWith(map[string]OptionValue{
		"mirror_style": One(1),
		"size":         One(5),
	})

	avail := ResolveAvailability(catalog, mustProduct(t, catalog, 100), state, AvailabilityOptions{DynamicNarrowing: true})

	// Picking 24x36 must not lock out 30x36.
	if got := avail.Allowed["sizes"]; !slices.Equal(got, []int64{5, 6}) {
		t.Fatalf("Allowed[sizes] = %v, want [5 6]", got)
	}
}

func TestResolveAvailabilityNoMatch(t *testing.T) {
	catalog := testCatalog()
	// No round product exists in 24x36.
	state := stateWith(map[string]OptionValue{
		"mirror_style": One(2),
		"size":         One(5),
	})

	avail := ResolveAvailability(catalog, mustProduct(t, catalog, 102), state, AvailabilityOptions{DynamicNarrowing: true})

	if !avail.NoMatch {
		t.Fatal("NoMatch = false, want true")
	}
	// A dead combination reports itself instead of silently widening.
	if got := avail.Allowed["sizes"]; !slices.Equal(got, []int64{5, 6, 7}) {
		t.Fatalf("Allowed[sizes] = %v, want the unnarrowed set", got)
	}
}
