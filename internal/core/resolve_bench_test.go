package core

import "testing"

func BenchmarkResolve_EmptySelection(b *testing.B) {
	catalog := testCatalog()

	b.ResetTimer()
	for b.Loop() {
		if _, err := Resolve(catalog, 100, Selection{}, ResolveOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolve_FullSelection(b *testing.B) {
	catalog := testCatalog()
	catalog.Rules = []Rule{
		{
			ID:   1,
			When: Compare{Field: "driver", Op: OpIn, Args: []int64{4, 5}},
			Then: []Action{SetValue{Field: "light_output", Value: One(2)}},
		},
	}
	selection := Selection{
		"size":         One(5),
		"frame_color":  One(10),
		"driver":       One(4),
		"light_output": One(1),
		"accessories":  Many(20, 21),
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := Resolve(catalog, 100, selection, ResolveOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolve_DynamicNarrowing(b *testing.B) {
	catalog := testCatalog()
	selection := Selection{
		"mirror_style": One(1),
		"size":         One(5),
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := Resolve(catalog, 100, selection, ResolveOptions{DynamicNarrowing: true}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseSKU(b *testing.B) {
	catalog := testCatalog()

	b.ResetTimer()
	for b.Loop() {
		if _, err := ParseSKU(catalog, "T01D-2436-BF-ND-LO-NA"); err != nil {
			b.Fatal(err)
		}
	}
}
