package task

import (
	"encoding/json"
	"errors"
	"time"
)

type Task struct {
	ID          string     `json:"id" bson:"_id"`
	OwnerID     string     `json:"owner_id" bson:"owner_id"`
	Title       string     `json:"title" bson:"title"`
	Description *string    `json:"description" bson:"description,omitempty"`
	Status      string     `json:"status" bson:"status"`
	Label       string     `json:"label" bson:"label"`
	Deadline    *time.Time `json:"deadline" bson:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// TaskPatch carries the fields of a partial update. Nil means "leave as is".
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Label       *string
	Deadline    *time.Time
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Label == nil && p.Deadline == nil
}

// Fields lists the document fields the patch touches, in a stable order.
func (p TaskPatch) Fields() []string {
	fields := make([]string, 0, 5)
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.Label != nil {
		fields = append(fields, "label")
	}
	if p.Deadline != nil {
		fields = append(fields, "deadline")
	}
	return fields
}

type CreateTaskRequest struct {
	Title       string         `json:"title" binding:"required,max=200"`
	Description *string        `json:"description" binding:"omitempty,max=2000"`
	Status      string         `json:"status" binding:"required,max=50"`
	Label       string         `json:"label" binding:"required,max=50"`
	Deadline    *DeadlineInput `json:"deadline"`
}

type UpdateTaskRequest struct {
	Title       *string        `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string        `json:"description" binding:"omitempty,max=2000"`
	Status      *string        `json:"status" binding:"omitempty,min=1,max=50"`
	Label       *string        `json:"label" binding:"omitempty,min=1,max=50"`
	Deadline    *DeadlineInput `json:"deadline"`
}

func (r UpdateTaskRequest) ToPatch() TaskPatch {
	return TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Label:       r.Label,
		Deadline:    r.Deadline.TimePtr(),
	}
}

var errDeadlineFormat = errors.New("deadline must be a date (YYYY-MM-DD) or RFC 3339 timestamp")

// DeadlineInput decodes a deadline written as a bare date or an RFC 3339
// timestamp, the same forms the list filters take. A bare date is midnight UTC.
type DeadlineInput struct {
	time.Time
}

func (d *DeadlineInput) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errDeadlineFormat
	}
	t, err := parseDeadline(raw, false)
	if err != nil {
		return errDeadlineFormat
	}
	d.Time = t
	return nil
}

func (d *DeadlineInput) TimePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
