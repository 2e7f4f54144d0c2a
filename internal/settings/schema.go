// Package settings validates and persists the user-editable configuration:
// the provider/download config sections exposed on /api/config and the small
// app-settings blob behind /api/app-settings. Each section has an explicit
// field schema so malformed updates are rejected before anything is written.
package settings

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/anontester/ripweb/internal/store"
)

type FieldKind string

const (
	KindString FieldKind = "string"
	KindBool   FieldKind = "bool"
	KindInt    FieldKind = "int"
)

// FieldSpec describes one config field: its type, bounds, and allowed values.
type FieldSpec struct {
	Kind     FieldKind
	Required bool
	Min      int
	Max      int
	Enum     []string
	Default  any
}

// SectionSpec is the schema of one named config section.
type SectionSpec map[string]FieldSpec

// Sections is the full config schema. Unknown sections or keys in an update
// are rejected rather than silently dropped.
var Sections = map[string]SectionSpec{
	"downloads": {
		"folder":          {Kind: KindString, Required: true, Default: "downloads"},
		"concurrency":     {Kind: KindInt, Min: 1, Max: 16, Default: 1},
		"max_connections": {Kind: KindInt, Min: 1, Max: 12, Default: 6},
		"verify_ssl":      {Kind: KindBool, Default: true},
	},
	"qobuz": {
		"quality":         {Kind: KindInt, Min: 1, Max: 4, Default: 3},
		"email_or_userid": {Kind: KindString, Default: ""},
	},
	"tidal": {
		"quality": {Kind: KindInt, Min: 0, Max: 3, Default: 3},
	},
	"deezer": {
		"quality":        {Kind: KindInt, Min: 0, Max: 2, Default: 2},
		"use_deezloader": {Kind: KindBool, Default: true},
	},
	"database": {
		"downloads_enabled": {Kind: KindBool, Default: true},
	},
	"artwork": {
		"embed":      {Kind: KindBool, Default: true},
		"embed_size": {Kind: KindString, Enum: []string{"thumbnail", "small", "large", "original"}, Default: "large"},
	},
}

// ValidationError reports one rejected field in a config update.
type ValidationError struct {
	Section string `json:"section"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Section, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.Section, e.Field, e.Message)
}

// Validate checks a config update against the section schemas.
func Validate(updates map[string]map[string]any) []ValidationError {
	var errs []ValidationError
	for section, values := range updates {
		spec, ok := Sections[section]
		if !ok {
			errs = append(errs, ValidationError{Section: section, Message: "unknown section"})
			continue
		}
		for key, value := range values {
			fs, ok := spec[key]
			if !ok {
				errs = append(errs, ValidationError{Section: section, Field: key, Message: "unknown field"})
				continue
			}
			if msg := checkField(fs, value); msg != "" {
				errs = append(errs, ValidationError{Section: section, Field: key, Message: msg})
			}
		}
	}
	return errs
}

func checkField(fs FieldSpec, value any) string {
	switch fs.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return "must be a string"
		}
		if fs.Required && s == "" {
			return "cannot be empty"
		}
		if len(fs.Enum) > 0 {
			for _, allowed := range fs.Enum {
				if s == allowed {
					return ""
				}
			}
			return fmt.Sprintf("must be one of %v", fs.Enum)
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}
	case KindInt:
		// JSON numbers decode as float64
		f, ok := value.(float64)
		if !ok {
			if i, isInt := value.(int); isInt {
				f = float64(i)
			} else {
				return "must be a number"
			}
		}
		n := int(f)
		if float64(n) != f {
			return "must be an integer"
		}
		if n < fs.Min || (fs.Max > 0 && n > fs.Max) {
			return fmt.Sprintf("must be between %d and %d", fs.Min, fs.Max)
		}
	}
	return ""
}

// Manager loads, merges, and persists config sections through the settings
// table.
type Manager struct {
	repo *store.SettingsRepo
}

func NewManager(repo *store.SettingsRepo) *Manager {
	return &Manager{repo: repo}
}

// Export returns every section with defaults overlaid by stored values.
func (m *Manager) Export() (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(Sections))
	for section, spec := range Sections {
		values := make(map[string]any, len(spec))
		for key, fs := range spec {
			values[key] = fs.Default
		}

		raw, err := m.repo.Get(store.SettingConfigPrefix + section)
		if err != nil {
			return nil, fmt.Errorf("failed to load config section %s: %w", section, err)
		}
		if raw != "" {
			stored := map[string]any{}
			if err := json.Unmarshal([]byte(raw), &stored); err != nil {
				return nil, fmt.Errorf("corrupt config section %s: %w", section, err)
			}
			for key, value := range stored {
				if _, known := spec[key]; known {
					values[key] = value
				}
			}
		}
		out[section] = values
	}
	return out, nil
}

// Update validates and applies a partial config update, returning the full
// refreshed config on success.
func (m *Manager) Update(updates map[string]map[string]any) (map[string]map[string]any, []ValidationError, error) {
	if errs := Validate(updates); len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool {
			if errs[i].Section != errs[j].Section {
				return errs[i].Section < errs[j].Section
			}
			return errs[i].Field < errs[j].Field
		})
		return nil, errs, nil
	}

	current, err := m.Export()
	if err != nil {
		return nil, nil, err
	}

	for section, values := range updates {
		merged := current[section]
		for key, value := range values {
			merged[key] = value
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return nil, nil, err
		}
		if err := m.repo.Set(store.SettingConfigPrefix+section, string(raw)); err != nil {
			return nil, nil, fmt.Errorf("failed to persist config section %s: %w", section, err)
		}
		current[section] = merged
	}
	return current, nil, nil
}
