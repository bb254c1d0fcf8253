package hookconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope", FileName))
	require.Equal(t, "unknown-project", cfg.SourceApp)
	require.Equal(t, DefaultServerURL, cfg.ServerURL)
	require.True(t, cfg.FeatureEnabled(FeatureSummarize))
	require.True(t, cfg.FeatureEnabled(FeatureTTSNotifications))
}

func TestLoadMalformedFileReturnsDefaults(t *testing.T) {
	path := writeConfig(t, "{not json")
	cfg := Load(path)
	require.Equal(t, Default(), cfg)
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"source_app": "my-app",
		"server_url": "http://host.docker.internal:4000/events",
		"features": {
			"summarize": true,
			"tts_notifications": false
		},
		"hooks": {
			"PreCompact": {"enabled": false},
			"Stop": {"enabled": true, "options": ["add-chat", "announce"]}
		}
	}`)

	cfg := Load(path)
	require.Equal(t, "my-app", cfg.SourceApp)
	require.Equal(t, "http://host.docker.internal:4000/events", cfg.ServerURL)
	require.True(t, cfg.FeatureEnabled(FeatureSummarize))
	require.False(t, cfg.FeatureEnabled(FeatureTTSNotifications))
	// Absent keys stay enabled.
	require.True(t, cfg.FeatureEnabled(FeatureChatTranscript))
	require.True(t, cfg.FeatureEnabled(FeatureCompletionAnnouncements))

	require.False(t, cfg.HookEnabled("PreCompact"))
	require.True(t, cfg.HookEnabled("Stop"))
	require.True(t, cfg.HookEnabled("PostToolUse"))
}

func TestLoadFillsMissingIdentityFields(t *testing.T) {
	path := writeConfig(t, `{"features": {"summarize": false}}`)
	cfg := Load(path)
	require.Equal(t, "unknown-project", cfg.SourceApp)
	require.Equal(t, DefaultServerURL, cfg.ServerURL)
	require.False(t, cfg.FeatureEnabled(FeatureSummarize))
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	path := writeConfig(t, `{"source_app": "app", "future_field": {"nested": 1}}`)
	cfg := Load(path)
	require.Equal(t, "app", cfg.SourceApp)
}

func TestDefaultPath(t *testing.T) {
	require.Equal(t, filepath.Join("/proj", ".claude", FileName), DefaultPath("/proj"))
	require.Equal(t, filepath.Join(".", ".claude", FileName), DefaultPath(""))
}
