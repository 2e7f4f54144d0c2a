package settings

import (
	"encoding/json"
	"fmt"

	"github.com/anontester/ripweb/internal/store"
)

const defaultPort = 8500

// AppSettings is the small UI-level preferences blob, persisted as one row.
type AppSettings struct {
	DefaultSource string `json:"defaultSource"`
	DebugLogging  bool   `json:"debugLogging"`
	Port          int    `json:"port"`
}

func defaultAppSettings() AppSettings {
	return AppSettings{
		DefaultSource: "qobuz",
		DebugLogging:  false,
		Port:          defaultPort,
	}
}

// LoadAppSettings reads stored settings merged over defaults. Missing or
// corrupt data falls back to defaults.
func (m *Manager) LoadAppSettings() AppSettings {
	s := defaultAppSettings()
	raw, err := m.repo.Get(store.SettingAppSettings)
	if err != nil || raw == "" {
		return s
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return defaultAppSettings()
	}
	if s.Port <= 0 {
		s.Port = defaultPort
	}
	return s
}

// UpdateAppSettings merges a partial update into the stored settings and
// persists the result.
func (m *Manager) UpdateAppSettings(patch map[string]any) (AppSettings, error) {
	s := m.LoadAppSettings()

	if v, ok := patch["defaultSource"].(string); ok && v != "" {
		s.DefaultSource = v
	}
	if v, ok := patch["debugLogging"].(bool); ok {
		s.DebugLogging = v
	}
	if v, ok := patch["port"]; ok {
		if f, isNum := v.(float64); isNum && int(f) > 0 {
			s.Port = int(f)
		}
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return s, err
	}
	if err := m.repo.Set(store.SettingAppSettings, string(raw)); err != nil {
		return s, fmt.Errorf("failed to persist app settings: %w", err)
	}
	return s, nil
}
