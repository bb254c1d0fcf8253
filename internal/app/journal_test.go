package app

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func resetSettingsStateForTest() {
	settingsOnce = sync.Once{}
	settings = Settings{}
	settingsErr = nil
	SetJournalPathOverride("")
}

func TestGetJournalPath_PrioritizesCLIOverride(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(JournalPathEnv, filepath.Join(home, "env", "journal.db"))

	overridePath := filepath.Join(home, "cli", "journal.db")
	SetJournalPathOverride(overridePath)

	resolved, err := GetJournalPath()
	require.NoError(t, err)
	require.Equal(t, overridePath, resolved)
}

func TestGetJournalPath_UsesEnvWithoutOverride(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	envPath := filepath.Join(home, "env", "journal.db")
	t.Setenv(JournalPathEnv, envPath)

	resolved, err := GetJournalPath()
	require.NoError(t, err)
	require.Equal(t, envPath, resolved)
}

func TestResolveJournalPathDetailed_ReportsSourceForEnv(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	envPath := filepath.Join(home, "env", "journal.db")
	t.Setenv(JournalPathEnv, envPath)

	resolved, source, err := ResolveJournalPathDetailed()
	require.NoError(t, err)
	require.Equal(t, envPath, resolved)
	require.Equal(t, "env(BEACON_JOURNAL_PATH)", source)
}

func TestEnsureJournalDir_CreatesParentDirectories(t *testing.T) {
	base := t.TempDir()
	journalPath := filepath.Join(base, "nested", "deep", "journal.db")

	resolved, err := EnsureJournalDir(journalPath)
	require.NoError(t, err)
	require.Equal(t, journalPath, resolved)
	require.DirExists(t, filepath.Dir(journalPath))
}
