package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hanko-field/storefront/internal/urlstate"
)

// Defaults captures the storefront-configurable catalog behaviour: the
// values the codec treats as "absent" plus the sort whitelist.
type Defaults struct {
	Mode        string   `yaml:"mode"`
	PerPage     int      `yaml:"per_page"`
	Sort        string   `yaml:"sort"`
	SortOptions []string `yaml:"sort_options"`
	FilterKeys  []string `yaml:"filter_keys"`
}

const (
	defaultPerPage = 24
	defaultSort    = "popularity"
)

// BuiltinDefaults are used when no defaults file is configured.
func BuiltinDefaults() Defaults {
	return Defaults{
		Mode:    string(urlstate.ModeType),
		PerPage: defaultPerPage,
		Sort:    defaultSort,
	}
}

// LoadDefaults reads catalog defaults from a YAML file. A missing file is
// not an error; the builtin defaults apply. Malformed YAML is an error so a
// broken deployment fails at startup rather than serving odd defaults.
func LoadDefaults(path string) (Defaults, error) {
	defaults := BuiltinDefaults()
	if strings.TrimSpace(path) == "" {
		return defaults, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return Defaults{}, fmt.Errorf("catalog defaults: read %s: %w", path, err)
	}

	var loaded Defaults
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return Defaults{}, fmt.Errorf("catalog defaults: parse %s: %w", path, err)
	}

	if strings.TrimSpace(loaded.Mode) != "" {
		defaults.Mode = strings.TrimSpace(loaded.Mode)
	}
	if loaded.PerPage > 0 {
		defaults.PerPage = loaded.PerPage
	}
	if strings.TrimSpace(loaded.Sort) != "" {
		defaults.Sort = strings.TrimSpace(loaded.Sort)
	}
	defaults.SortOptions = normalizeList(loaded.SortOptions)
	defaults.FilterKeys = normalizeList(loaded.FilterKeys)

	return defaults, nil
}

// CodecDefaults translates the loaded defaults into the codec's shape.
func (d Defaults) CodecDefaults() urlstate.Defaults {
	return urlstate.Defaults{
		Mode:    urlstate.Mode(d.Mode),
		PerPage: d.PerPage,
		Sort:    d.Sort,
	}
}

// AllowSort reports whether the provided sort value is acceptable. An empty
// whitelist allows any value.
func (d Defaults) AllowSort(sort string) bool {
	if len(d.SortOptions) == 0 {
		return true
	}
	if sort == d.Sort {
		return true
	}
	for _, option := range d.SortOptions {
		if option == sort {
			return true
		}
	}
	return false
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
