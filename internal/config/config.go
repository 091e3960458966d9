// Package config loads fsauditd settings and the watch targets document.
package config

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigPathEnvVar names the environment variable holding the settings file path.
const ConfigPathEnvVar = "FSAUDITD_CONFIG"

// ErrConfigUnavailable is returned when the watch targets document is missing
// or unreadable.
var ErrConfigUnavailable = errors.New("watch target configuration unavailable")

// Dir returns the fsauditd config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/fsauditd if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "fsauditd"), nil
}

// dirOrCwd is Dir with the working directory as a last resort, for defaults.
func dirOrCwd() string {
	dir, err := Dir()
	if err != nil {
		return "."
	}
	return dir
}
