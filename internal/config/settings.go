package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/blackwell-systems/fsauditd/internal/audit"
	"github.com/blackwell-systems/fsauditd/internal/logging"
	"github.com/blackwell-systems/fsauditd/internal/seclog"
	"github.com/blackwell-systems/fsauditd/internal/store"
	"github.com/blackwell-systems/fsauditd/internal/watcher"
)

const envPrefix = "FSAUDITD_"

// Settings holds the daemon configuration.
type Settings struct {
	TargetsFile string          `koanf:"targets_file"`
	PIDFile     string          `koanf:"pid_file"`
	Point       string          `koanf:"point"`
	Language    string          `koanf:"language"`
	Database    DatabaseConfig  `koanf:"database"`
	Security    SecurityConfig  `koanf:"security"`
	Sources     SourcesConfig   `koanf:"sources"`
	Identity    IdentityConfig  `koanf:"identity"`
	Watch       WatchConfig     `koanf:"watch"`
	Log         LogConfig       `koanf:"log"`
	Metrics     MetricsConfig   `koanf:"metrics"`
	Service     ServiceSettings `koanf:"service"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// SecurityConfig locates the security trace. An empty LogPath disables
// security dispatch.
type SecurityConfig struct {
	LogPath string   `koanf:"log_path"`
	Markers []string `koanf:"markers"`
}

// SourcesConfig holds the source labels written to each entry.
type SourcesConfig struct {
	Filesystem string `koanf:"filesystem"`
	Security   string `koanf:"security"`
}

// IdentityConfig is used for entries written while the store is empty.
type IdentityConfig struct {
	FallbackUsername string `koanf:"fallback_username"`
	FallbackRole     string `koanf:"fallback_role"`
}

type WatchConfig struct {
	QueueSize int `koanf:"queue_size"`
}

type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// ServiceSettings names the OS service.
type ServiceSettings struct {
	Name        string `koanf:"name"`
	DisplayName string `koanf:"display_name"`
	Description string `koanf:"description"`
}

// Fallback returns the configured fallback identity.
func (s *Settings) Fallback() audit.LastEntryContext {
	return audit.LastEntryContext{
		Username: s.Identity.FallbackUsername,
		Role:     s.Identity.FallbackRole,
	}
}

// Logging converts the log section for logging.Init.
func (s *Settings) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = s.Log.Level
	cfg.Format = s.Log.Format
	cfg.File = s.Log.File
	cfg.MaxSizeMB = s.Log.MaxSizeMB
	cfg.MaxBackups = s.Log.MaxBackups
	cfg.MaxAgeDays = s.Log.MaxAgeDays
	return cfg
}

func defaultSettings() Settings {
	dir := dirOrCwd()
	return Settings{
		TargetsFile: filepath.Join(dir, "targets.xml"),
		PIDFile:     filepath.Join(dir, "fsauditd.pid"),
		Point:       audit.DefaultPoint,
		Language:    "en",
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			DSN:    filepath.Join(dir, "fsauditd.db"),
		},
		Security: SecurityConfig{
			Markers: []string{seclog.MarkerAddUser, seclog.MarkerDeleteUser},
		},
		Sources: SourcesConfig{
			Filesystem: audit.DefaultSourceFS,
			Security:   audit.DefaultSourceSecurity,
		},
		Watch: WatchConfig{QueueSize: watcher.DefaultQueueSize},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Service: ServiceSettings{
			Name:        "fsauditd",
			DisplayName: "Filesystem audit logger",
			Description: "Records filesystem and user account changes to the audit table.",
		},
	}
}

// sliceConfigPaths are split on commas when they arrive as a single string.
var sliceConfigPaths = []string{
	"security.markers",
}

// Load builds Settings from defaults, an optional YAML file and FSAUDITD_*
// environment variables, in increasing priority. An empty path falls back to
// $FSAUDITD_CONFIG, then to config.yaml in Dir if present.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	defaults := defaultSettings()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil && !explicit {
			path = ""
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	s := &Settings{}
	if err := k.Unmarshal("", s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

// Default returns the built-in settings.
func Default() *Settings {
	s := defaultSettings()
	return &s
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	return filepath.Join(dirOrCwd(), "config.yaml")
}

// envTransformFunc maps FSAUDITD_DATABASE__DSN to database.dsn. The settings
// file variable itself is not a setting and is dropped.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, envPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// Validate checks values that cannot be corrected at runtime.
func (s *Settings) Validate() error {
	switch s.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", store.DriverSQLite, store.DriverPostgres, s.Database.Driver)
	}
	if s.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if s.Watch.QueueSize <= 0 {
		return fmt.Errorf("watch.queue_size must be positive, got %d", s.Watch.QueueSize)
	}
	switch s.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be \"json\" or \"console\", got %q", s.Log.Format)
	}
	if s.Security.LogPath != "" && len(s.Security.Markers) == 0 {
		return fmt.Errorf("security.markers cannot be empty when security.log_path is set")
	}
	if len(s.Sources.Security) > audit.MaxSourceLen || len(s.Sources.Filesystem) > audit.MaxSourceLen {
		return fmt.Errorf("source labels are limited to %d characters", audit.MaxSourceLen)
	}
	return nil
}
