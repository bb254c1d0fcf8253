package models

import "time"

// ID Strategy:
// - Deliveries use string UUIDs (collision-free across concurrent hook
//   processes writing the same journal).
// - The journal also keeps an int64 rowid for cheap "since" cursors when
//   tailing.

// Delivery is one best-effort delivery attempt recorded in the local journal.
// The journal is diagnostic only; a journal write failure never changes a
// hook's exit status.
type Delivery struct {
	RowID      int64     `json:"rowid"`
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	EventType  string    `json:"event_type"`
	SourceApp  string    `json:"source_app"`
	URL        string    `json:"url"`
	Delivered  bool      `json:"delivered"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeliveryStats summarizes journal health for doctor and status output.
type DeliveryStats struct {
	Total     int64 `json:"total"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}
