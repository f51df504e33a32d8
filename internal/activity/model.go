package activity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTaskCreated EventType = "task.created"
	EventTaskUpdated EventType = "task.updated"
	EventTaskDeleted EventType = "task.deleted"
)

// Event records one successful task mutation.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	TaskID        string    `json:"task_id"`
	OwnerID       string    `json:"owner_id"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewEvent(eventType EventType, taskID, ownerID string, changedFields []string, at time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		TaskID:        taskID,
		OwnerID:       ownerID,
		ChangedFields: changedFields,
		OccurredAt:    at.UTC(),
	}
}

func (e Event) Validate() error {
	if e.ID == "" || e.TaskID == "" || e.OwnerID == "" {
		return errors.New("event id, task id and owner id are required")
	}
	switch e.Type {
	case EventTaskCreated, EventTaskUpdated, EventTaskDeleted:
	default:
		return errors.New("unknown event type: " + string(e.Type))
	}
	if e.OccurredAt.IsZero() {
		return errors.New("event time is required")
	}
	return nil
}
