package settings

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var embeddedDefaults []byte

// DefaultsProvider hands out the current system default table.
type DefaultsProvider interface {
	Defaults() *Defaults
}

// Defaults is an immutable table of system default values by category.
type Defaults struct {
	values map[string]json.RawMessage
}

// ParseDefaults decodes a YAML defaults document. Every built-in category
// must be present with a non-null mapping value; extra categories are
// allowed and become resolvable.
func ParseDefaults(data []byte) (*Defaults, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse defaults: %w", err)
	}

	d := &Defaults{values: make(map[string]json.RawMessage, len(doc))}
	for category, raw := range doc {
		if _, ok := raw.(map[string]interface{}); !ok {
			return nil, fmt.Errorf("default for %q must be a mapping", category)
		}
		value, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode default for %q: %w", category, err)
		}
		d.values[category] = value
	}
	for _, category := range BuiltinCategories {
		if _, ok := d.values[category]; !ok {
			return nil, fmt.Errorf("defaults missing category %q", category)
		}
	}
	return d, nil
}

// LoadDefaultsFile reads and parses a YAML defaults file.
func LoadDefaultsFile(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read defaults file: %w", err)
	}
	return ParseDefaults(data)
}

// EmbeddedDefaults returns the defaults compiled into the binary.
func EmbeddedDefaults() *Defaults {
	d, err := ParseDefaults(embeddedDefaults)
	if err != nil {
		panic(fmt.Sprintf("embedded settings defaults: %v", err))
	}
	return d
}

// Defaults returns d itself, so a fixed table is a DefaultsProvider.
func (d *Defaults) Defaults() *Defaults { return d }

// Value returns a copy of the default for category.
func (d *Defaults) Value(category string) (json.RawMessage, bool) {
	v, ok := d.values[category]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), v...), true
}

// Has reports whether category is recognized.
func (d *Defaults) Has(category string) bool {
	_, ok := d.values[category]
	return ok
}

// Categories returns every recognized category sorted.
func (d *Defaults) Categories() []string {
	out := make([]string, 0, len(d.values))
	for c := range d.values {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
