package activity

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"todo_service/internal/apperror"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var occurred = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEvent() Event {
	e := NewEvent(EventTaskUpdated, "0e7f7a3c-1d2b-4c5d-8e9f-a0b1c2d3e4f5", "owner-1", []string{"title", "status"}, occurred)
	return e
}

func TestNewEvent(t *testing.T) {
	e := sampleEvent()

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventTaskUpdated, e.Type)
	assert.Equal(t, occurred, e.OccurredAt)
	assert.NoError(t, e.Validate())
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *Event)
	}{
		{"missing id", func(e *Event) { e.ID = "" }},
		{"missing task", func(e *Event) { e.TaskID = "" }},
		{"missing owner", func(e *Event) { e.OwnerID = "" }},
		{"unknown type", func(e *Event) { e.Type = "task.archived" }},
		{"zero time", func(e *Event) { e.OccurredAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := sampleEvent()
			tt.mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestService_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	event := sampleEvent()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_activity")).
		WithArgs(event.ID, "task.updated", event.TaskID, event.OwnerID, `["title","status"]`, event.OccurredAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := NewService(NewRepository(), db)
	require.NoError(t, svc.Record(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Record_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_activity")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	svc := NewService(NewRepository(), db)
	require.NoError(t, svc.Record(context.Background(), sampleEvent()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Record_StorageFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_activity")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	svc := NewService(NewRepository(), db)
	err = svc.Record(context.Background(), sampleEvent())

	assert.ErrorIs(t, err, apperror.ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Record_InvalidEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := sampleEvent()
	e.Type = "bogus"

	svc := NewService(NewRepository(), db)
	err = svc.Record(context.Background(), e)

	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "event_type", "task_id", "owner_id", "changed_fields", "occurred_at"}).
		AddRow("e1", "task.created", "t1", "owner-1", []byte("null"), occurred).
		AddRow("e2", "task.updated", "t1", "owner-1", []byte(`["title"]`), occurred.Add(time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("FROM task_activity")).
		WithArgs("owner-1", "t1").
		WillReturnRows(rows)

	svc := NewService(NewRepository(), db)
	events, err := svc.History(context.Background(), "owner-1", "t1")

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTaskCreated, events[0].Type)
	assert.Nil(t, events[0].ChangedFields)
	assert.Equal(t, []string{"title"}, events[1].ChangedFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_History_NothingVisible(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM task_activity")).
		WithArgs("owner-2", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "task_id", "owner_id", "changed_fields", "occurred_at"}))

	svc := NewService(NewRepository(), db)
	events, err := svc.History(context.Background(), "owner-2", "t1")

	assert.Nil(t, events)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
