package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// JournalPathEnv overrides the delivery journal location.
const JournalPathEnv = "BEACON_JOURNAL_PATH"

// GetJournalPath resolves the delivery journal path.
// Order of precedence:
// 1) CLI override (e.g. --journal-path)
// 2) Environment variable: BEACON_JOURNAL_PATH
// 3) config.yaml: journal_path
// 4) Default: ~/.config/beacon/journal.db
// Returns the journal path and ensures the parent directory exists.
func GetJournalPath() (string, error) {
	if override := getJournalPathOverride(); override != "" {
		return EnsureJournalDir(override)
	}

	if envPath := os.Getenv(JournalPathEnv); envPath != "" {
		return EnsureJournalDir(envPath)
	}

	cfg, err := LoadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.JournalPath != "" {
		return EnsureJournalDir(cfg.JournalPath)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return EnsureJournalDir(filepath.Join(configDir, "journal.db"))
}

// ResolveJournalPathDetailed returns the resolved journal path along with the
// source of that decision. This is for debugging/reporting; normal code
// should use GetJournalPath.
func ResolveJournalPathDetailed() (path string, source string, err error) {
	if override := getJournalPathOverride(); override != "" {
		resolvedPath, ensureErr := EnsureJournalDir(override)
		return resolvedPath, "cli(--journal-path)", ensureErr
	}

	if envPath := os.Getenv(JournalPathEnv); envPath != "" {
		resolvedPath, ensureErr := EnsureJournalDir(envPath)
		return resolvedPath, "env(" + JournalPathEnv + ")", ensureErr
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to determine config directory: %w", err)
	}

	// Config file order must match LoadSettings.
	configPaths := []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(string(os.PathSeparator), "etc", "beacon", "config.yaml"),
		"config.yaml",
	}

	for _, p := range configPaths {
		s, loadErr := loadSettingsFile(p)
		if loadErr == nil {
			if s.JournalPath != "" {
				resolvedPath, ensureErr := EnsureJournalDir(s.JournalPath)
				return resolvedPath, fmt.Sprintf("config(%s)", p), ensureErr
			}
			// File exists but no journal_path set; keep looking.
			continue
		}
		if errors.Is(loadErr, os.ErrNotExist) {
			continue
		}
		return "", "", fmt.Errorf("failed to load config %s: %w", p, loadErr)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	resolved, err := EnsureJournalDir(filepath.Join(configDir, "journal.db"))
	return resolved, "default(~/.config/beacon/journal.db)", err
}

// EnsureJournalDir creates the journal's parent directory if needed and
// returns the path unchanged.
func EnsureJournalDir(journalPath string) (string, error) {
	dir := filepath.Dir(journalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create journal directory: %w", err)
	}
	return journalPath, nil
}
