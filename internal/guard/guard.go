// Package guard classifies tool invocations before they run. It is the only
// part of the hook pipeline allowed to block the host agent.
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// Recursive+force removal in either flag order, with the flags possibly
// buried in a larger cluster (-xrf, -frv). Split clusters like "-r -f" are
// intentionally out of scope for this check.
var dangerousRemovalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+.*-[a-z]*r[a-z]*f`),
	regexp.MustCompile(`\brm\s+.*-[a-z]*f[a-z]*r`),
}

var sensitiveMarkers = []string{"api_key", "secret", "password", "token"}

// DangerousRemoval reports whether command contains a recursive force
// removal. Matching is case-insensitive and collapses runs of whitespace
// first, so flag spacing and casing cannot hide the pattern.
func DangerousRemoval(command string) bool {
	normalized := strings.Join(strings.Fields(strings.ToLower(command)), " ")
	for _, re := range dangerousRemovalPatterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// SensitiveMarker scans s for credential-looking substrings and returns the
// first marker found. Callers warn on a hit; they never block and never echo
// the matched content itself.
func SensitiveMarker(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return marker, true
		}
	}
	return "", false
}

// BlockError is returned by the pre-tool-use handler when a dangerous command
// is detected. It is the single error in the hook surface that maps to a
// blocking exit status.
type BlockError struct {
	Command string
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("blocked dangerous command: %s", e.Command)
}
