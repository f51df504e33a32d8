//go:build integration

package user

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"todo_service/internal/apperror"
	"todo_service/internal/auth"
	"todo_service/internal/db"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "todo_test"),
	)

	database, err := sql.Open("pgx", dsn)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		t.Skip("PostgreSQL not available, skipping test")
	}

	require.NoError(t, db.Migrate(ctx, database))
	t.Cleanup(func() { database.Close() })
	return database
}

func TestIntegration_RegisterAuthenticateRename(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	tokens := auth.NewTokenService("integration-secret", time.Minute)
	svc := NewUserService(NewUserRepository(), database, tokens, nil)

	suffix := uuid.NewString()[:8]
	alice := "alice_" + suffix
	bob := "bob_" + suffix

	created, err := svc.Register(ctx, RegisterRequest{Username: alice, Password: "secret123"})
	require.NoError(t, err)
	_, err = uuid.Parse(created.ID)
	assert.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Username: alice, Password: "another1"})
	assert.ErrorIs(t, err, apperror.ErrUsernameTaken)

	_, err = svc.Register(ctx, RegisterRequest{Username: bob, Password: "secret123"})
	require.NoError(t, err)

	issued, err := svc.Authenticate(ctx, alice, "secret123")
	require.NoError(t, err)
	claims, err := tokens.Validate(issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.UserID)

	_, err = svc.UpdateProfile(ctx, created.ID, ProfilePatch{Username: &bob})
	assert.ErrorIs(t, err, apperror.ErrUsernameTaken)

	renamed := "alice2_" + suffix
	updated, err := svc.UpdateProfile(ctx, created.ID, ProfilePatch{Username: &renamed})
	require.NoError(t, err)
	assert.Equal(t, renamed, updated.Username)
	assert.Equal(t, created.ID, updated.ID)

	_, err = svc.Authenticate(ctx, alice, "secret123")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, renamed, "secret123")
	assert.NoError(t, err)
}
