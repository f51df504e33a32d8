package user

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"todo_service/internal/apperror"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storedUserID = "7b0f3c5e-2a41-4d8e-9a57-3e1f0c6d8b21"

var userColumns = []string{"id", "username", "password", "email", "full_name", "created_at", "updated_at"}

func beginTx(t *testing.T) (*sql.DB, *sql.Tx, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return db, tx, mock
}

func TestUserRepository_Create(t *testing.T) {
	_, tx, mock := beginTx(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("alice", "hash", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("0d4c3b5a-0000-4000-8000-000000000001", now, now))

	user := &User{Username: "alice", Password: "hash"}
	require.NoError(t, NewUserRepository().Create(context.Background(), tx, user))

	assert.Equal(t, "0d4c3b5a-0000-4000-8000-000000000001", user.ID)
	assert.Equal(t, now, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_UniqueViolation(t *testing.T) {
	_, tx, mock := beginTx(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	err := NewUserRepository().Create(context.Background(), tx, &User{Username: "alice", Password: "hash"})

	assert.ErrorIs(t, err, apperror.ErrUsernameTaken)
}

func TestUserRepository_Create_StorageError(t *testing.T) {
	_, tx, mock := beginTx(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(errors.New("connection reset"))

	err := NewUserRepository().Create(context.Background(), tx, &User{Username: "alice", Password: "hash"})

	assert.ErrorIs(t, err, apperror.ErrStorageUnavailable)
}

func TestUserRepository_GetByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	email := "alice@example.com"

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("user-1", "alice", "hash", email, nil, now, now))

	user, err := NewUserRepository().GetByUsername(context.Background(), db, "alice")

	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	require.NotNil(t, user.Email)
	assert.Equal(t, email, *user.Email)
	assert.Nil(t, user.FullName)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(storedUserID).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err = NewUserRepository().GetByID(context.Background(), db, storedUserID)

	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_MalformedIDSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewUserRepository().GetByID(context.Background(), db, "not-a-uuid")

	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Update(t *testing.T) {
	_, tx, mock := beginTx(t)
	updated := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users")).
		WithArgs("alice2", "hash", nil, nil, storedUserID).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))

	user := &User{ID: storedUserID, Username: "alice2", Password: "hash"}
	require.NoError(t, NewUserRepository().Update(context.Background(), tx, user))

	assert.Equal(t, updated, user.UpdatedAt)
}

func TestUserRepository_Update_Conflict(t *testing.T) {
	_, tx, mock := beginTx(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users")).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := NewUserRepository().Update(context.Background(), tx, &User{ID: storedUserID, Username: "bob"})

	assert.ErrorIs(t, err, apperror.ErrUsernameTaken)
}
