package config

import (
	"strings"
	"testing"
	"time"
)

func FuzzEnvOrDefault(f *testing.F) {
	f.Add("", ":8080")
	f.Add("  :9090  ", ":8080")

	f.Fuzz(func(t *testing.T, value, fallback string) {
		if strings.ContainsRune(value, '\x00') {
			t.Skip()
		}

		const key = "CONFIGURATOR_TEST_ENV_OR_DEFAULT"
		t.Setenv(key, value)

		got := envOrDefault(key, fallback)
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			if got != fallback {
				t.Fatalf("envOrDefault() = %q, want fallback %q", got, fallback)
			}
			return
		}

		if got != trimmed {
			t.Fatalf("envOrDefault() = %q, want trimmed value %q", got, trimmed)
		}
	})
}

func FuzzLoadSnapshotTTL(f *testing.F) {
	f.Add("")
	f.Add("1s")
	f.Add("0s")
	f.Add("-1s")
	f.Add("not-a-duration")

	f.Fuzz(func(t *testing.T, snapshotTTL string) {
		if strings.ContainsRune(snapshotTTL, '\x00') {
			t.Skip()
		}

		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("HTTP_ADDR", "")
		t.Setenv("CACHE_RESYNC_INTERVAL", "")
		t.Setenv("SNAPSHOT_TTL", snapshotTTL)

		cfg, err := Load()
		trimmed := strings.TrimSpace(snapshotTTL)
		if trimmed == "" {
			if err != nil {
				t.Fatalf("Load() error = %v, want nil for empty SNAPSHOT_TTL", err)
			}
			if cfg.SnapshotTTL != defaultSnapshotTTL {
				t.Fatalf("SnapshotTTL = %s, want %s", cfg.SnapshotTTL, defaultSnapshotTTL)
			}
			return
		}

		parsed, parseErr := time.ParseDuration(trimmed)
		if parseErr != nil || parsed <= 0 {
			if err == nil {
				t.Fatalf("Load() error = nil, want non-nil for SNAPSHOT_TTL=%q", snapshotTTL)
			}
			return
		}

		if err != nil {
			t.Fatalf("Load() error = %v, want nil for SNAPSHOT_TTL=%q", err, snapshotTTL)
		}
		if cfg.SnapshotTTL != parsed {
			t.Fatalf("SnapshotTTL = %s, want %s", cfg.SnapshotTTL, parsed)
		}
	})
}
