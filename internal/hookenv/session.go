package hookenv

import (
	"os"
	"path/filepath"
	"strings"
)

// SessionIDEnv overrides the session identity when the hook payload lacks one.
const SessionIDEnv = "CLAUDE_SESSION_ID"

// sessionIDFile is a project-local fallback written by wrappers that spawn
// hooks outside the agent process (relative to the hook working directory).
const sessionIDFile = ".session_id"

// FallbackSessionID resolves a session identity for payloads that carry none.
// Order: CLAUDE_SESSION_ID, then a .claude/.session_id file under dir.
// Returns "" when no fallback exists; callers keep their sentinel then.
func FallbackSessionID(dir string) string {
	return fallbackSessionID(defaultProbes(), dir)
}

func fallbackSessionID(p probes, dir string) string {
	if sid := strings.TrimSpace(p.getenv(SessionIDEnv)); sid != "" {
		return sid
	}
	if dir == "" {
		dir = "."
	}
	data, err := p.readFile(filepath.Join(dir, ".claude", sessionIDFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WriteSessionIDFile records a session identity for out-of-process hook
// wrappers. Best effort; an error only means later invocations fall back to
// the sentinel.
func WriteSessionIDFile(dir, sessionID string) error {
	claudeDir := filepath.Join(dir, ".claude")
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(claudeDir, sessionIDFile), []byte(sessionID+"\n"), 0o600)
}
