package deviceauth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateInstallIDStable(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateInstallID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstallID: %v", err)
	}
	if first == "" {
		t.Fatal("expected a non-empty install id")
	}

	second, err := LoadOrCreateInstallID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstallID (reload): %v", err)
	}
	if first != second {
		t.Errorf("install id changed across loads: %q vs %q", first, second)
	}
}

func TestLoadOrCreateInstallIDFreshDirs(t *testing.T) {
	a, err := LoadOrCreateInstallID(filepath.Join(t.TempDir(), "nested", "state"))
	if err != nil {
		t.Fatalf("LoadOrCreateInstallID: %v", err)
	}
	b, _ := LoadOrCreateInstallID(t.TempDir())
	if a == b {
		t.Error("two installs produced the same identity")
	}
}

func TestLoadOrCreateInstallIDRecoversFromEmptyFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, installIDFile), []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	id, err := LoadOrCreateInstallID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstallID: %v", err)
	}
	if id == "" {
		t.Fatal("expected a regenerated install id")
	}
}
