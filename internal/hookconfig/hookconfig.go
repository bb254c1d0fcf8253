package hookconfig

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// Feature flag names recognized in hooks-config.json. Absent keys default to
// enabled so older configs remain maximally functional against newer hooks.
const (
	FeatureSummarize               = "summarize"
	FeatureTTSNotifications        = "tts_notifications"
	FeatureChatTranscript          = "chat_transcript"
	FeatureCompletionAnnouncements = "completion_announcements"
)

// FileName is the per-project config file, stored under .claude/.
const FileName = "hooks-config.json"

const (
	defaultSourceApp = "unknown-project"

	// DefaultServerURL carries the docker placeholder host on purpose: the
	// same config file must work inside and outside containers, and
	// hookenv.ResolveServerURL rewrites it when the placeholder cannot
	// resolve.
	DefaultServerURL = "http://host.docker.internal:4000/events"
)

// Config is the per-project hook configuration. Loaded once per invocation
// by the entry point and passed down by value; immutable thereafter.
type Config struct {
	SourceApp string                 `json:"source_app"`
	ServerURL string                 `json:"server_url"`
	Features  map[string]bool        `json:"features,omitempty"`
	Hooks     map[string]HookSetting `json:"hooks,omitempty"`
}

// HookSetting is the installer-written per-event block. The settings.json
// command line already encodes the effective options; this block is kept for
// display and re-install round trips.
type HookSetting struct {
	Enabled bool     `json:"enabled"`
	Options []string `json:"options,omitempty"`
}

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	return Config{
		SourceApp: defaultSourceApp,
		ServerURL: DefaultServerURL,
	}
}

// DefaultPath returns the config location for a project directory.
func DefaultPath(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, ".claude", FileName)
}

// Load reads the config at path. It never fails: a missing file is the
// normal uninstalled case and returns defaults quietly; a corrupt file logs
// a warning to the diagnostic stream and returns defaults. Unknown fields
// are ignored for forward compatibility.
func Load(path string) Config {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the hook cwd or an operator flag
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Default().Warn("hook config unreadable, using defaults", "path", path, "error", err)
		}
		return Default()
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Default().Warn("hook config malformed, using defaults", "path", path, "error", err)
		return Default()
	}

	if cfg.SourceApp == "" {
		cfg.SourceApp = defaultSourceApp
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	return cfg
}

// FeatureEnabled reports whether a feature flag is on. Absent map or absent
// key both mean enabled.
func (c Config) FeatureEnabled(name string) bool {
	if c.Features == nil {
		return true
	}
	enabled, ok := c.Features[name]
	if !ok {
		return true
	}
	return enabled
}

// HookEnabled reports whether an event type should fire at all. Events the
// installer never wrote default to enabled.
func (c Config) HookEnabled(eventType string) bool {
	if c.Hooks == nil {
		return true
	}
	setting, ok := c.Hooks[eventType]
	if !ok {
		return true
	}
	return setting.Enabled
}
