package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/beacon/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "beacon"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# beacon configuration
# Run: beacon --help

# Optional: override the SQLite delivery journal location.
# Can also be set via BEACON_JOURNAL_PATH or --journal-path.
# journal_path: ~/.config/beacon/journal.db

# Optional: events URL used when a project has no hooks-config.json of its own.
# server_url: http://host.docker.internal:4000/events

# Optional: spoken announcements address this name.
# engineer_name: Dana

# Optional: per-delivery timeout in milliseconds (clamped to 30000).
# delivery_timeout_ms: 5000

# Optional: where per-session JSON logs are written, relative to the project.
# session_log_dir: logs
`
