package testutil

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

//go:embed rulesets
var rulesets embed.FS

// WriteRules copies the default fixture rule set into a temporary directory and
// returns its path. Entries in replace overwrite fixture documents by name; an
// empty value removes the document.
//
// Example:
//
//	dir := testutil.WriteRules(t, map[string]string{
//		"shared.yaml": "shared:\n  flags:\n    enable_legacy_parsers: false\n",
//	})
func WriteRules(t *testing.T, replace map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	entries, err := fs.ReadDir(rulesets, "rulesets/default")
	if err != nil {
		t.Fatalf("failed to read fixture rules: %v", err)
	}

	for _, entry := range entries {
		raw, readErr := rulesets.ReadFile("rulesets/default/" + entry.Name())
		if readErr != nil {
			t.Fatalf("failed to read fixture %s: %v", entry.Name(), readErr)
		}
		WriteRule(t, dir, entry.Name(), string(raw))
	}

	for name, content := range replace {
		if content == "" {
			if rmErr := os.Remove(filepath.Join(dir, name)); rmErr != nil && !os.IsNotExist(rmErr) {
				t.Fatalf("failed to remove fixture %s: %v", name, rmErr)
			}
			continue
		}
		WriteRule(t, dir, name, content)
	}

	return dir
}

// WriteRule writes one rule document into dir.
func WriteRule(t *testing.T, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create rule directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write rule %s: %v", name, err)
	}
}

// FixtureRule returns the content of one default fixture document.
func FixtureRule(t *testing.T, name string) string {
	t.Helper()

	raw, err := rulesets.ReadFile("rulesets/default/" + name)
	if err != nil {
		t.Fatalf("unknown fixture rule %s: %v", name, err)
	}
	return string(raw)
}
