package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"todo_service/internal/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

const uniqueViolation = "23505"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type UserRepository struct{}

type UserRepositoryInterface interface {
	Create(ctx context.Context, tx *sql.Tx, user *User) error
	GetByID(ctx context.Context, db DBTX, id string) (*User, error)
	GetByUsername(ctx context.Context, db DBTX, username string) (*User, error)
	Update(ctx context.Context, tx *sql.Tx, user *User) error
}

func NewUserRepository() UserRepositoryInterface {
	return &UserRepository{}
}

// Create inserts user and fills in its generated id and timestamps.
func (r *UserRepository) Create(ctx context.Context, tx *sql.Tx, user *User) error {
	query := `
		INSERT INTO users (
			username, password, email, full_name, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRowContext(ctx, query,
		user.Username,
		user.Password,
		user.Email,
		user.FullName,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrUsernameTaken
		}
		logrus.WithError(err).Error("Failed to create user")
		return fmt.Errorf("create user: %w: %w", apperror.ErrStorageUnavailable, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User created successfully")

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, db DBTX, id string) (*User, error) {
	// Ids that are not UUIDs cannot exist and would fail the column cast.
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.ErrNotFound
	}

	query := `
		SELECT id, username, password, email, full_name, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return scanUser(db.QueryRowContext(ctx, query, id))
}

// GetByUsername retrieves a user by exact, case sensitive username
func (r *UserRepository) GetByUsername(ctx context.Context, db DBTX, username string) (*User, error) {
	query := `
		SELECT id, username, password, email, full_name, created_at, updated_at
		FROM users
		WHERE username = $1
	`
	return scanUser(db.QueryRowContext(ctx, query, username))
}

// Update writes every mutable column of user and refreshes updated_at.
func (r *UserRepository) Update(ctx context.Context, tx *sql.Tx, user *User) error {
	if _, err := uuid.Parse(user.ID); err != nil {
		return apperror.ErrNotFound
	}

	query := `
		UPDATE users
		SET username = $1,
		    password = $2,
		    email = $3,
		    full_name = $4,
		    updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err := tx.QueryRowContext(ctx, query,
		user.Username,
		user.Password,
		user.Email,
		user.FullName,
		user.ID,
	).Scan(&user.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return apperror.ErrNotFound
		case isUniqueViolation(err):
			return apperror.ErrUsernameTaken
		}
		logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to update user")
		return fmt.Errorf("update user: %w: %w", apperror.ErrStorageUnavailable, err)
	}

	logrus.WithField("user_id", user.ID).Info("User updated successfully")
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Password,
		&user.Email,
		&user.FullName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrNotFound
		}
		logrus.WithError(err).Error("Failed to load user")
		return nil, fmt.Errorf("load user: %w: %w", apperror.ErrStorageUnavailable, err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
