package database

import (
	"errors"
	"fmt"

	"golang.org/x/mod/semver"
)

var (
	// ErrVersionTooNew is returned when a file declares a version newer than
	// the running code can read. Such files are never rewritten.
	ErrVersionTooNew = errors.New("version too new")

	// ErrMigrationFailed is returned when a migration step fails or no
	// migration path exists. Nothing is written in that case.
	ErrMigrationFailed = errors.New("migration failed")
)

// Migration upgrades a raw JSON object from one version to the next. Apply
// receives a private copy and returns the next shape; it must not set the
// version field.
type Migration struct {
	From  string
	To    string
	Apply func(raw map[string]any) (map[string]any, error)
}

// Chain is an ordered list of migrations ending at Current
type Chain struct {
	Current    string
	Migrations []Migration
}

// CompareVersions compares two semantic versions without the "v" prefix
func CompareVersions(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}

// ValidVersion reports whether v is a semantic version (without "v")
func ValidVersion(v string) bool {
	return semver.IsValid("v" + v)
}

// VersionOf returns the version field of a raw object. Files written before
// versioning existed have none and are treated as the chain's first version.
func (c Chain) VersionOf(raw map[string]any) string {
	if v, ok := raw["version"].(string); ok && v != "" {
		return v
	}
	if len(c.Migrations) > 0 {
		return c.Migrations[0].From
	}
	return c.Current
}

// Migrate applies every step from the stored version up to Current, one at a
// time and in order. It returns the migrated object and the versions passed
// through. Data already at Current is returned unchanged.
func (c Chain) Migrate(raw map[string]any) (map[string]any, []string, error) {
	version := c.VersionOf(raw)
	if !ValidVersion(version) {
		return nil, nil, fmt.Errorf("%w: invalid version %q", ErrMigrationFailed, version)
	}

	switch cmp := CompareVersions(version, c.Current); {
	case cmp > 0:
		return nil, nil, fmt.Errorf("%w: file is %s, this build reads up to %s", ErrVersionTooNew, version, c.Current)
	case cmp == 0:
		return raw, nil, nil
	}

	current := raw
	var applied []string
	for CompareVersions(version, c.Current) < 0 {
		step, ok := c.stepFrom(version)
		if !ok {
			return nil, applied, fmt.Errorf("%w: no migration from version %s", ErrMigrationFailed, version)
		}

		next, err := applyStep(step, deepCopy(current))
		if err != nil {
			return nil, applied, fmt.Errorf("%w: %s -> %s: %v", ErrMigrationFailed, step.From, step.To, err)
		}
		next["version"] = step.To

		current = next
		version = step.To
		applied = append(applied, step.To)
	}

	return current, applied, nil
}

// Pending returns the versions Migrate would pass through from version
func (c Chain) Pending(version string) []string {
	var pending []string
	for CompareVersions(version, c.Current) < 0 {
		step, ok := c.stepFrom(version)
		if !ok {
			break
		}
		pending = append(pending, step.To)
		version = step.To
	}
	return pending
}

func (c Chain) stepFrom(version string) (Migration, bool) {
	for _, m := range c.Migrations {
		if m.From == version {
			return m, true
		}
	}
	return Migration{}, false
}

func applyStep(step Migration, raw map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	out, err = step.Apply(raw)
	if err == nil && out == nil {
		err = errors.New("migration returned no data")
	}
	return out, err
}

func deepCopy(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = deepCopyValue(val)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = deepCopyValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Object returns raw[key] as an object, creating it when missing
func Object(raw map[string]any, key string) map[string]any {
	if m, ok := raw[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	raw[key] = m
	return m
}

// SetDefault sets raw[key] to value when the key is absent or null
func SetDefault(raw map[string]any, key string, value any) {
	if v, ok := raw[key]; !ok || v == nil {
		raw[key] = value
	}
}
