package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dotcommander/beacon/internal/sessionlog"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	JournalPath       string `yaml:"journal_path"`
	ServerURL         string `yaml:"server_url"`
	EngineerName      string `yaml:"engineer_name"`
	DeliveryTimeoutMS int    `yaml:"delivery_timeout_ms"`
	SessionLogDir     string `yaml:"session_log_dir"`
}

// DeliverySettings are effective runtime values applied to every event post.
type DeliverySettings struct {
	TimeoutMS     int    `json:"timeout_ms"`
	SessionLogDir string `json:"session_log_dir"`
}

const (
	defaultDeliveryTimeoutMS = 5000
	maxDeliveryTimeoutMS     = 30000
)

// EffectiveDeliverySettings returns validated delivery settings with defaults.
// Invalid or missing config values fall back to safe defaults.
func EffectiveDeliverySettings() DeliverySettings {
	cfg := DeliverySettings{
		TimeoutMS:     defaultDeliveryTimeoutMS,
		SessionLogDir: sessionlog.DefaultBaseDir,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.DeliveryTimeoutMS > 0 {
		cfg.TimeoutMS = s.DeliveryTimeoutMS
	}
	if s.SessionLogDir != "" {
		cfg.SessionLogDir = s.SessionLogDir
	}

	if cfg.TimeoutMS > maxDeliveryTimeoutMS {
		cfg.TimeoutMS = maxDeliveryTimeoutMS
	}
	return cfg
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// journalPathOverrideMu and journalPathOverride implement a mutex-protected process-wide override for CLI --journal-path.
// These globals are required by the sync.Once pattern and the RWMutex pattern; they cannot be avoided.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	journalPathOverrideMu sync.RWMutex
	journalPathOverride   string
)

// SetJournalPathOverride sets a process-wide journal path override.
// Intended for CLI flag support (e.g. --journal-path).
func SetJournalPathOverride(path string) {
	journalPathOverrideMu.Lock()
	journalPathOverride = path
	journalPathOverrideMu.Unlock()
}

func getJournalPathOverride() string {
	journalPathOverrideMu.RLock()
	v := journalPathOverride
	journalPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/beacon/config.yaml
// 2) /etc/beacon/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		// 1) User config (~/.config/beacon/config.yaml)
		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 2) /etc
		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "beacon", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 3) Local ./config.yaml (lowest priority)
		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
