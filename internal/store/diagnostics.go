package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dotcommander/beacon/internal/envelope"
)

// recentWindow is how many of the newest journal rows health checks inspect.
const recentWindow = 100

// Diagnostic represents a single journal health finding.
type Diagnostic struct {
	Level           string `json:"level"` // "warning" or "error"
	Code            string `json:"code"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// RunDiagnostics performs journal health checks and returns findings.
func RunDiagnostics(db *sql.DB) ([]Diagnostic, error) {
	var diags []Diagnostic

	failures, err := findDeliveryFailures(db)
	if err != nil {
		return nil, fmt.Errorf("delivery failure check: %w", err)
	}
	diags = append(diags, failures...)

	unknown, err := findUnknownSessions(db)
	if err != nil {
		return nil, fmt.Errorf("unknown session check: %w", err)
	}
	diags = append(diags, unknown...)

	return diags, nil
}

// findDeliveryFailures flags a high failure ratio across the most recent
// deliveries. A handful of failures is normal (server restarts); half the
// window failing means the server is effectively down.
func findDeliveryFailures(db *sql.DB) ([]Diagnostic, error) {
	var total, failed int64
	err := db.QueryRowContext(context.Background(), `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN delivered = 0 THEN 1 ELSE 0 END), 0)
		FROM (SELECT delivered FROM deliveries ORDER BY id DESC LIMIT ?)
	`, recentWindow).Scan(&total, &failed)
	if err != nil {
		return nil, err
	}

	var diags []Diagnostic
	if total >= 10 && failed*2 >= total {
		diags = append(diags, Diagnostic{
			Level:           "warning",
			Code:            "DELIVERY_FAILURES",
			Message:         fmt.Sprintf("%d of the last %d deliveries failed", failed, total),
			SuggestedAction: "verify the observability server is reachable: beacon doctor",
		})
	}
	return diags, nil
}

// findUnknownSessions flags recent rows journaled without a session identity.
func findUnknownSessions(db *sql.DB) ([]Diagnostic, error) {
	var count int64
	err := db.QueryRowContext(context.Background(), `
		SELECT COUNT(*)
		FROM (SELECT session_id FROM deliveries ORDER BY id DESC LIMIT ?)
		WHERE session_id = ?
	`, recentWindow, envelope.UnknownSession).Scan(&count)
	if err != nil {
		return nil, err
	}

	var diags []Diagnostic
	if count > 0 {
		diags = append(diags, Diagnostic{
			Level:           "warning",
			Code:            "UNKNOWN_SESSIONS",
			Message:         fmt.Sprintf("%d recent deliveries carry no session identity", count),
			SuggestedAction: "export CLAUDE_SESSION_ID or write .claude/.session_id in the project",
		})
	}
	return diags, nil
}
