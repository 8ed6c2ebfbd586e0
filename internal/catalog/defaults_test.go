package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsMissingFileUsesBuiltins(t *testing.T) {
	defaults, err := LoadDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	builtin := BuiltinDefaults()
	if defaults.Mode != builtin.Mode || defaults.PerPage != builtin.PerPage || defaults.Sort != builtin.Sort {
		t.Fatalf("expected builtin defaults, got %+v", defaults)
	}
}

func TestLoadDefaultsEmptyPathUsesBuiltins(t *testing.T) {
	defaults, err := LoadDefaults("")
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	if defaults.PerPage != defaultPerPage || defaults.Sort != defaultSort {
		t.Fatalf("expected builtin defaults, got %+v", defaults)
	}
}

func TestLoadDefaultsOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "mode: instance\nper_page: 48\nsort: newest\nsort_options:\n  - newest\n  - price_asc\n  - price_asc\n  - \"  \"\nfilter_keys:\n  - color\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write defaults file: %v", err)
	}

	defaults, err := LoadDefaults(path)
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}

	if defaults.Mode != "instance" || defaults.PerPage != 48 || defaults.Sort != "newest" {
		t.Fatalf("expected overrides applied, got %+v", defaults)
	}
	if len(defaults.SortOptions) != 2 {
		t.Fatalf("expected blank and duplicate sort options dropped, got %v", defaults.SortOptions)
	}
	if len(defaults.FilterKeys) != 1 || defaults.FilterKeys[0] != "color" {
		t.Fatalf("expected filter keys loaded, got %v", defaults.FilterKeys)
	}
}

func TestLoadDefaultsMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("per_page: [not-a-number"), 0o644); err != nil {
		t.Fatalf("write defaults file: %v", err)
	}

	if _, err := LoadDefaults(path); err == nil {
		t.Fatalf("expected malformed yaml to fail")
	}
}

func TestAllowSort(t *testing.T) {
	open := BuiltinDefaults()
	if !open.AllowSort("anything") {
		t.Fatalf("expected empty whitelist to allow any sort")
	}

	restricted := BuiltinDefaults()
	restricted.SortOptions = []string{"price_asc"}
	if !restricted.AllowSort("price_asc") {
		t.Fatalf("expected whitelisted sort allowed")
	}
	if !restricted.AllowSort(restricted.Sort) {
		t.Fatalf("expected default sort always allowed")
	}
	if restricted.AllowSort("sneaky") {
		t.Fatalf("expected unlisted sort rejected")
	}
}
