package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

type Repository struct{}

type RepositoryInterface interface {
	Save(ctx context.Context, tx *sql.Tx, event Event) (bool, error)
	ListByTask(ctx context.Context, db *sql.DB, ownerID, taskID string) ([]Event, error)
}

func NewRepository() RepositoryInterface {
	return &Repository{}
}

// Save stores event once. It reports false when the event id was already
// recorded.
func (r *Repository) Save(ctx context.Context, tx *sql.Tx, event Event) (bool, error) {
	fields, err := json.Marshal(event.ChangedFields)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO task_activity (
			id, event_type, task_id, owner_id, changed_fields, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := tx.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.TaskID,
		event.OwnerID,
		string(fields),
		event.OccurredAt,
	)
	if err != nil {
		logrus.WithError(err).WithField("event_id", event.ID).Error("Failed to save activity event")
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListByTask returns the owner's history for one task, oldest first.
func (r *Repository) ListByTask(ctx context.Context, db *sql.DB, ownerID, taskID string) ([]Event, error) {
	query := `
		SELECT id, event_type, task_id, owner_id, changed_fields, occurred_at
		FROM task_activity
		WHERE owner_id = $1 AND task_id = $2
		ORDER BY occurred_at ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var (
			e      Event
			fields []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.TaskID, &e.OwnerID, &fields, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &e.ChangedFields); err != nil {
				return nil, fmt.Errorf("decode changed fields: %w", err)
			}
		}
		e.OccurredAt = e.OccurredAt.UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
