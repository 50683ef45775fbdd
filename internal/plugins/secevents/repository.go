package secevents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventRepository defines the data access contract for security events.
type EventRepository interface {
	// Log inserts a new event.
	Log(ctx context.Context, event *Event) error

	// List returns events most recent first, optionally filtered by type,
	// together with the total number of matching rows.
	List(ctx context.Context, eventType string, limit, offset int) ([]Event, int, error)

	// Stats returns aggregates over the last 24 hours.
	Stats(ctx context.Context) (*Stats, error)
}

// eventRepository implements EventRepository with MariaDB.
type eventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new repository backed by the given DB.
func NewEventRepository(db *sql.DB) EventRepository {
	return &eventRepository{db: db}
}

// Log inserts an event. Details are serialized to JSON.
func (r *eventRepository) Log(ctx context.Context, event *Event) error {
	query := `INSERT INTO security_events (event_type, user_id, username, ip_address, user_agent, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling event details: %w", err)
		}
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// Failed logins for unknown usernames carry no user ID.
	var userID any
	if event.UserID != "" {
		userID = event.UserID
	}

	result, err := r.db.ExecContext(ctx, query,
		event.EventType, userID, event.Username,
		event.IPAddress, event.UserAgent,
		detailsJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}

	id, _ := result.LastInsertId()
	event.ID = id
	return nil
}

// List returns a page of events.
func (r *eventRepository) List(ctx context.Context, eventType string, limit, offset int) ([]Event, int, error) {
	where := ""
	args := []any{}
	if eventType != "" {
		where = ` WHERE event_type = ?`
		args = append(args, eventType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting security events: %w", err)
	}

	query := `SELECT id, event_type, COALESCE(user_id, ''), username, ip_address,
	                 user_agent, details, created_at
	          FROM security_events` + where + `
	          ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing security events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var detailsJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.UserID, &e.Username, &e.IPAddress,
			&e.UserAgent, &detailsJSON, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning security event: %w", err)
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			if jsonErr := json.Unmarshal([]byte(detailsJSON.String), &e.Details); jsonErr != nil {
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating security events: %w", err)
	}

	return events, total, nil
}

// Stats runs the dashboard aggregates.
func (r *eventRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_events`).Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("counting security events: %w", err)
	}

	counts := []struct {
		eventType string
		dest      *int
	}{
		{EventLoginFailed, &stats.FailedLogins24h},
		{EventLoginSuccess, &stats.SuccessfulLogins24h},
		{EventAccountLocked, &stats.Lockouts24h},
	}
	for _, c := range counts {
		if err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM security_events WHERE event_type = ? AND created_at >= DATE_SUB(UTC_TIMESTAMP(), INTERVAL 24 HOUR)`,
			c.eventType,
		).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting %s events: %w", c.eventType, err)
		}
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT ip_address) FROM security_events WHERE created_at >= DATE_SUB(UTC_TIMESTAMP(), INTERVAL 24 HOUR) AND ip_address != ''`,
	).Scan(&stats.UniqueIPs24h); err != nil {
		return nil, fmt.Errorf("counting unique IPs: %w", err)
	}

	return stats, nil
}
