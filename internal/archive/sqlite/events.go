package sqlite

import (
	"context"
	"fmt"

	"relaygate/internal/models"
)

// RecordRelay appends one relay event.
func (s *Storage) RecordRelay(ctx context.Context, event *models.RelayEvent) error {
	query := `
		INSERT INTO relay_events (id, sender_id, sender_name, kind, admin_message_id, group_message_id, preview, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.SenderID,
		event.SenderName,
		string(event.Kind),
		event.AdminMessageID,
		event.GroupMessageID,
		event.Preview,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert relay event: %w", err)
	}

	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *Storage) ListRecent(ctx context.Context, limit int) ([]*models.RelayEvent, error) {
	query := `
		SELECT id, sender_id, sender_name, kind, admin_message_id, group_message_id, preview, created_at
		FROM relay_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query relay events: %w", err)
	}
	defer rows.Close()

	var events []*models.RelayEvent
	for rows.Next() {
		event := &models.RelayEvent{}
		var kind string

		err := rows.Scan(
			&event.ID,
			&event.SenderID,
			&event.SenderName,
			&kind,
			&event.AdminMessageID,
			&event.GroupMessageID,
			&event.Preview,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relay event: %w", err)
		}
		event.Kind = models.ContentKind(kind)

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relay events: %w", err)
	}

	return events, nil
}
