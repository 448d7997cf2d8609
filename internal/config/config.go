// Package config loads triage configuration.
//
// Settings come from three layers, later winning: defaults, the workspace
// .triage/config.yaml, and TRIAGE_* environment variables. The viper
// singleton serves typed lookups; LoadLocal reads the yaml file directly for
// callers that run before Initialize (or after a CWD change).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// WorkspaceDir is the per-project directory holding the database and config.
const WorkspaceDir = ".triage"

// Config keys.
const (
	KeyDBPath        = "db.path"
	KeyOrgTimezone   = "org.timezone"
	KeyDefaultActor  = "actor.default"
	KeyWatchDays     = "regression.watch_days"
	KeySweepInterval = "sweep.interval"
)

var v *viper.Viper

// Initialize sets up the viper singleton: defaults, workspace config file
// discovery, and the TRIAGE_ env prefix. Missing config files are fine;
// malformed ones are an error.
func Initialize() error {
	nv := viper.New()
	nv.SetDefault(KeyOrgTimezone, "UTC")
	nv.SetDefault(KeyWatchDays, 90)
	nv.SetDefault(KeySweepInterval, "10m")

	nv.SetEnvPrefix("TRIAGE")
	nv.AutomaticEnv()

	if dir, err := DiscoverWorkspace(); err == nil {
		nv.SetConfigName("config")
		nv.SetConfigType("yaml")
		nv.AddConfigPath(dir)
		if err := nv.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v = nv
	return nil
}

// DiscoverWorkspace walks up from the CWD looking for a .triage directory.
func DiscoverWorkspace() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, WorkspaceDir)
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s directory found above %s", WorkspaceDir, dir)
		}
		dir = parent
	}
}

// GetString returns a string config value. Nil-safe before Initialize.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetInt returns an int config value. Nil-safe before Initialize.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// DBPath resolves the database path: explicit config, else the discovered
// workspace, else .triage/triage.db under the CWD.
func DBPath() string {
	if p := GetString(KeyDBPath); p != "" {
		return p
	}
	if dir, err := DiscoverWorkspace(); err == nil {
		return filepath.Join(dir, "triage.db")
	}
	return filepath.Join(WorkspaceDir, "triage.db")
}

// DefaultActor resolves the actor for write attribution: config, then
// $TRIAGE_ACTOR (via viper env binding), then $USER.
func DefaultActor() string {
	if a := GetString(KeyDefaultActor); a != "" {
		return a
	}
	return os.Getenv("USER")
}

// WatchWindow returns the configured regression watch window.
func WatchWindow() time.Duration {
	days := GetInt(KeyWatchDays)
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

// Local is the subset of config.yaml read directly from disk, bypassing the
// viper singleton.
type Local struct {
	DBPath       string `yaml:"db-path"`
	OrgTimezone  string `yaml:"org-timezone"`
	DefaultActor string `yaml:"default-actor"`
	WatchDays    int    `yaml:"watch-days"`
}

// LoadLocal reads and parses config.yaml from the given triage directory.
// Returns an empty Local (not nil) if the file is missing or unparseable.
func LoadLocal(triageDir string) *Local {
	data, err := os.ReadFile(filepath.Join(triageDir, "config.yaml"))
	if err != nil {
		return &Local{}
	}
	var cfg Local
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &Local{}
	}
	return &cfg
}

// WriteLocal writes config.yaml into the given triage directory.
func WriteLocal(triageDir string, cfg *Local) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(triageDir, "config.yaml"), data, 0o600)
}
