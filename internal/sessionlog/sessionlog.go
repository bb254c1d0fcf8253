// Package sessionlog maintains the per-session JSON array logs written by
// hook invocations. Directories appear lazily on first append and nothing
// here ever deletes them.
package sessionlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseDir is where session logs land relative to the project root.
const DefaultBaseDir = "logs"

// Dir returns the log directory for one session.
func Dir(baseDir, sessionID string) string {
	return filepath.Join(baseDir, sanitizeSession(sessionID))
}

// Append adds one entry to the named JSON array log for the session. The
// whole array is rewritten under an advisory lock, so concurrent hook
// invocations for the same session cannot clobber each other's entries.
func Append(baseDir, sessionID, name string, entry json.RawMessage) error {
	if len(entry) == 0 || !json.Valid(entry) {
		return errors.New("session log entry is not valid json")
	}

	dir := Dir(baseDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session log dir: %w", err)
	}
	path := filepath.Join(dir, name+".json")

	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer unlockFile(lock)

	entries := readEntries(path)
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session log: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session log: %w", err)
	}
	return nil
}

// readEntries loads the existing array. A missing or corrupt file resets to
// an empty log rather than failing the append.
func readEntries(path string) []json.RawMessage {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from the session log dir
	if err != nil {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// sanitizeSession keeps session-derived path segments from escaping the base
// directory. Anything that cannot form a single clean segment collapses to
// the unknown-session bucket.
func sanitizeSession(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "unknown"
	}
	return id
}
