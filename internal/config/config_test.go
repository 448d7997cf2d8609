package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdirTemp moves into a fresh temp dir for workspace discovery tests and
// restores the CWD on cleanup.
func chdirTemp(t *testing.T) string {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Errorf("restore cwd: %v", err)
		}
		v = nil
	})
	return dir
}

func TestInitializeDefaults(t *testing.T) {
	chdirTemp(t)
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := GetString(KeyOrgTimezone); got != "UTC" {
		t.Errorf("org timezone default: %q", got)
	}
	if got := WatchWindow(); got != 90*24*time.Hour {
		t.Errorf("watch window default: %v", got)
	}
}

func TestNilSafeBeforeInitialize(t *testing.T) {
	v = nil
	if got := GetString(KeyDBPath); got != "" {
		t.Errorf("GetString with nil viper = %q, want empty", got)
	}
	if got := GetInt(KeyWatchDays); got != 0 {
		t.Errorf("GetInt with nil viper = %d, want 0", got)
	}
	if got := WatchWindow(); got != 90*24*time.Hour {
		t.Errorf("WatchWindow with nil viper = %v", got)
	}
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := chdirTemp(t)
	triageDir := filepath.Join(dir, WorkspaceDir)
	if err := os.MkdirAll(triageDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	yaml := "org:\n  timezone: America/New_York\nregression:\n  watch_days: 30\n"
	if err := os.WriteFile(filepath.Join(triageDir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := GetString(KeyOrgTimezone); got != "America/New_York" {
		t.Errorf("org timezone: %q", got)
	}
	if got := WatchWindow(); got != 30*24*time.Hour {
		t.Errorf("watch window: %v", got)
	}
}

func TestDiscoverWorkspaceWalksUp(t *testing.T) {
	dir := chdirTemp(t)
	triageDir := filepath.Join(dir, WorkspaceDir)
	if err := os.MkdirAll(filepath.Join(dir, "sub", "deeper"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(triageDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chdir(filepath.Join(dir, "sub", "deeper")); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	got, err := DiscoverWorkspace()
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	// Resolve symlinks: temp dirs on darwin live under /private.
	want, _ := filepath.EvalSymlinks(triageDir)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Errorf("discovered %q, want %q", gotResolved, want)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &Local{DBPath: "custom.db", OrgTimezone: "UTC", DefaultActor: "alice", WatchDays: 45}
	if err := WriteLocal(dir, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := LoadLocal(dir)
	if got.DBPath != "custom.db" || got.DefaultActor != "alice" || got.WatchDays != 45 {
		t.Errorf("round trip: %+v", got)
	}
}

func TestLoadLocalMissingFile(t *testing.T) {
	got := LoadLocal(t.TempDir())
	if got == nil {
		t.Fatal("LoadLocal must return empty config, not nil")
	}
	if got.DBPath != "" {
		t.Errorf("missing file must yield zero values: %+v", got)
	}
}
