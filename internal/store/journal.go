package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dotcommander/beacon/internal/models"
)

// Delivery record size constraints enforced by ValidateDelivery.
const (
	MaxDeliverySessionLength   = 128
	MaxDeliveryEventTypeLength = 128
	MaxDeliverySourceAppLength = 128
	MaxDeliveryURLLength       = 2048
	MaxDeliveryErrorLength     = 4096
)

// ValidateDelivery enforces delivery record constraints before journaling.
func ValidateDelivery(d *models.Delivery) error {
	if d == nil {
		return errors.New("delivery record is required")
	}
	if strings.TrimSpace(d.SessionID) == "" {
		return errors.New("session id is required")
	}
	if len(d.SessionID) > MaxDeliverySessionLength {
		return fmt.Errorf("session id exceeds max length (%d)", MaxDeliverySessionLength)
	}
	if strings.TrimSpace(d.EventType) == "" {
		return errors.New("event type is required")
	}
	if len(d.EventType) > MaxDeliveryEventTypeLength {
		return fmt.Errorf("event type exceeds max length (%d)", MaxDeliveryEventTypeLength)
	}
	if strings.TrimSpace(d.SourceApp) == "" {
		return errors.New("source app is required")
	}
	if len(d.SourceApp) > MaxDeliverySourceAppLength {
		return fmt.Errorf("source app exceeds max length (%d)", MaxDeliverySourceAppLength)
	}
	if len(d.URL) > MaxDeliveryURLLength {
		return fmt.Errorf("url exceeds max length (%d)", MaxDeliveryURLLength)
	}
	if len(d.Error) > MaxDeliveryErrorLength {
		d.Error = d.Error[:MaxDeliveryErrorLength]
	}
	return nil
}

// RecordDelivery journals one delivery attempt. Assigns a fresh delivery id
// when the record has none and fills in the row id on return.
func RecordDelivery(db *sql.DB, d *models.Delivery) error {
	if err := ValidateDelivery(d); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	return RetryWithBackoff(func() error {
		result, err := db.ExecContext(context.Background(), `
			INSERT INTO deliveries (delivery_id, session_id, event_type, source_app, url, delivered, http_status, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.SessionID, d.EventType, d.SourceApp, d.URL, d.Delivered, d.HTTPStatus, d.Error, d.DurationMS)
		if err != nil {
			return fmt.Errorf("failed to insert delivery: %w", err)
		}
		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		d.RowID = rowID
		return nil
	})
}

// ListDeliveriesParams filters the journal. Zero values mean "no filter".
type ListDeliveriesParams struct {
	SessionID  string
	EventType  string
	SourceApp  string
	FailedOnly bool
	SinceID    int64
	Limit      int
	Desc       bool
}

// ListDeliveries returns journaled delivery attempts matching the filters.
func ListDeliveries(db *sql.DB, p ListDeliveriesParams) ([]*models.Delivery, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}

	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if p.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, p.SessionID)
	}
	if p.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, p.EventType)
	}
	if p.SourceApp != "" {
		where = append(where, "source_app = ?")
		args = append(args, p.SourceApp)
	}
	if p.FailedOnly {
		where = append(where, "delivered = 0")
	}
	if p.SinceID > 0 {
		where = append(where, "id > ?")
		args = append(args, p.SinceID)
	}

	query := `
		SELECT id, delivery_id, session_id, event_type, source_app, url, delivered, http_status, error, duration_ms, created_at
		FROM deliveries
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if p.Desc {
		query += " ORDER BY id DESC"
	} else {
		query += " ORDER BY id ASC"
	}
	query += " LIMIT ?"
	args = append(args, p.Limit)

	var out []*models.Delivery
	err := RetryWithBackoff(func() error {
		rows, err := db.QueryContext(context.Background(), query, args...)
		if err != nil {
			return fmt.Errorf("failed to list deliveries: %w", err)
		}
		defer func() { _ = rows.Close() }()

		out = make([]*models.Delivery, 0)
		for rows.Next() {
			var d models.Delivery
			if err := rows.Scan(&d.RowID, &d.ID, &d.SessionID, &d.EventType, &d.SourceApp, &d.URL, &d.Delivered, &d.HTTPStatus, &d.Error, &d.DurationMS, &d.CreatedAt); err != nil {
				return fmt.Errorf("failed to scan delivery: %w", err)
			}
			out = append(out, &d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountDeliveries summarizes journal health, optionally scoped to a session.
func CountDeliveries(db *sql.DB, sessionID string) (models.DeliveryStats, error) {
	var stats models.DeliveryStats
	err := RetryWithBackoff(func() error {
		query := `
			SELECT COUNT(*),
			       COALESCE(SUM(CASE WHEN delivered = 1 THEN 1 ELSE 0 END), 0)
			FROM deliveries
		`
		args := []any{}
		if sessionID != "" {
			query += ` WHERE session_id = ?`
			args = append(args, sessionID)
		}
		return db.QueryRowContext(context.Background(), query, args...).Scan(&stats.Total, &stats.Delivered)
	})
	if err != nil {
		return models.DeliveryStats{}, fmt.Errorf("count deliveries: %w", err)
	}
	stats.Failed = stats.Total - stats.Delivered
	return stats, nil
}

// PruneDeliveries removes journal rows older than the retention window.
// Returns the number of rows deleted.
func PruneDeliveries(db *sql.DB, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, errors.New("retention days must be > 0")
	}
	var deleted int64
	err := RetryWithBackoff(func() error {
		res, err := db.ExecContext(context.Background(), `
			DELETE FROM deliveries
			WHERE created_at < datetime('now', ?)
		`, fmt.Sprintf("-%d days", olderThanDays))
		if err != nil {
			return fmt.Errorf("failed to prune deliveries: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
