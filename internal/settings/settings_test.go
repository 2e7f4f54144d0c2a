package settings

import (
	"path/filepath"
	"testing"

	"github.com/anontester/ripweb/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(store.NewSettingsRepo(db))
}

func TestExportReturnsDefaults(t *testing.T) {
	m := newTestManager(t)

	cfg, err := m.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(cfg) != len(Sections) {
		t.Fatalf("Expected %d sections, got %d", len(Sections), len(cfg))
	}
	if cfg["downloads"]["folder"] != "downloads" {
		t.Errorf("Expected default folder, got %v", cfg["downloads"]["folder"])
	}
	if cfg["artwork"]["embed_size"] != "large" {
		t.Errorf("Expected default embed_size, got %v", cfg["artwork"]["embed_size"])
	}
}

func TestUpdatePersistsAndMerges(t *testing.T) {
	m := newTestManager(t)

	cfg, errs, err := m.Update(map[string]map[string]any{
		"downloads": {"concurrency": float64(4)},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("Expected no validation errors, got %v", errs)
	}
	if cfg["downloads"]["concurrency"] != float64(4) {
		t.Errorf("Expected concurrency 4, got %v", cfg["downloads"]["concurrency"])
	}
	// Untouched fields keep their defaults
	if cfg["downloads"]["folder"] != "downloads" {
		t.Errorf("Expected folder untouched, got %v", cfg["downloads"]["folder"])
	}

	// A fresh export reads the persisted value back
	cfg, err = m.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if cfg["downloads"]["concurrency"] != float64(4) {
		t.Errorf("Expected persisted concurrency 4, got %v", cfg["downloads"]["concurrency"])
	}
}

func TestUpdateRejectsInvalid(t *testing.T) {
	m := newTestManager(t)

	cases := []struct {
		name    string
		updates map[string]map[string]any
	}{
		{"unknown section", map[string]map[string]any{"nope": {"x": 1}}},
		{"unknown field", map[string]map[string]any{"downloads": {"nope": 1}}},
		{"wrong type", map[string]map[string]any{"downloads": {"verify_ssl": "yes"}}},
		{"out of range", map[string]map[string]any{"downloads": {"concurrency": float64(99)}}},
		{"not an integer", map[string]map[string]any{"downloads": {"concurrency": 1.5}}},
		{"bad enum", map[string]map[string]any{"artwork": {"embed_size": "huge"}}},
		{"empty required", map[string]map[string]any{"downloads": {"folder": ""}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errs, err := m.Update(tc.updates)
			if err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			if len(errs) == 0 {
				t.Error("Expected a validation error")
			}
		})
	}

	// Nothing was persisted by the rejected updates
	cfg, err := m.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if cfg["downloads"]["concurrency"] != 1 {
		t.Errorf("Expected default concurrency after rejected updates, got %v", cfg["downloads"]["concurrency"])
	}
}

func TestUpdateRejectsWholeBatchOnAnyError(t *testing.T) {
	m := newTestManager(t)

	_, errs, err := m.Update(map[string]map[string]any{
		"downloads": {"concurrency": float64(4)},
		"artwork":   {"embed_size": "huge"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("Expected 1 validation error, got %d", len(errs))
	}

	cfg, _ := m.Export()
	if cfg["downloads"]["concurrency"] != 1 {
		t.Errorf("Expected valid half of batch not applied, got %v", cfg["downloads"]["concurrency"])
	}
}

func TestAppSettingsDefaults(t *testing.T) {
	m := newTestManager(t)

	s := m.LoadAppSettings()
	if s.DefaultSource != "qobuz" {
		t.Errorf("Expected default source qobuz, got %s", s.DefaultSource)
	}
	if s.Port != defaultPort {
		t.Errorf("Expected default port %d, got %d", defaultPort, s.Port)
	}
	if s.DebugLogging {
		t.Error("Expected debug logging off by default")
	}
}

func TestAppSettingsUpdate(t *testing.T) {
	m := newTestManager(t)

	s, err := m.UpdateAppSettings(map[string]any{
		"defaultSource": "tidal",
		"debugLogging":  true,
	})
	if err != nil {
		t.Fatalf("UpdateAppSettings failed: %v", err)
	}
	if s.DefaultSource != "tidal" || !s.DebugLogging {
		t.Errorf("Expected patched settings, got %+v", s)
	}
	// Unpatched fields survive
	if s.Port != defaultPort {
		t.Errorf("Expected port untouched, got %d", s.Port)
	}

	s = m.LoadAppSettings()
	if s.DefaultSource != "tidal" || !s.DebugLogging {
		t.Errorf("Expected persisted settings, got %+v", s)
	}
}

func TestAppSettingsIgnoresInvalidPort(t *testing.T) {
	m := newTestManager(t)

	s, err := m.UpdateAppSettings(map[string]any{"port": float64(-1)})
	if err != nil {
		t.Fatalf("UpdateAppSettings failed: %v", err)
	}
	if s.Port != defaultPort {
		t.Errorf("Expected invalid port ignored, got %d", s.Port)
	}
}
