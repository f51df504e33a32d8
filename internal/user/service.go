package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"todo_service/internal/apperror"
	"todo_service/internal/auth"
	"todo_service/internal/observability"
	"todo_service/internal/utils"

	"github.com/sirupsen/logrus"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
)

type UserService struct {
	repo    UserRepositoryInterface
	db      *sql.DB
	tokens  *auth.TokenService
	metrics *observability.Metrics
}

type UserServiceInterface interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Authenticate(ctx context.Context, username, password string) (*auth.IssuedToken, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*User, error)
}

func NewUserService(repo UserRepositoryInterface, db *sql.DB, tokens *auth.TokenService, metrics *observability.Metrics) UserServiceInterface {
	return &UserService{
		repo:    repo,
		db:      db,
		tokens:  tokens,
		metrics: metrics,
	}
}

// Register creates a user with a hashed password.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := validateUsername(req.Username); err != nil {
		s.count("register", err)
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		s.count("register", err)
		return nil, err
	}

	existing, err := s.repo.GetByUsername(ctx, s.db, req.Username)
	switch {
	case err == nil && existing != nil:
		s.count("register", apperror.ErrUsernameTaken)
		return nil, apperror.ErrUsernameTaken
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		s.count("register", err)
		return nil, err
	}

	hashedPassword, err := auth.GeneratePasswordHash(req.Password)
	if err != nil {
		logrus.WithError(err).Error("Failed to hash password")
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		Username: req.Username,
		Password: hashedPassword,
		Email:    req.Email,
		FullName: req.FullName,
	}

	// The unique constraint still decides concurrent registrations.
	err = utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		return s.repo.Create(ctx, tx, user)
	})
	s.count("register", err)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate verifies credentials and issues an access token. Unknown
// usernames and wrong passwords fail the same way.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*auth.IssuedToken, error) {
	user, err := s.repo.GetByUsername(ctx, s.db, username)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.count("login", err)
			return nil, err
		}
		// Equalize timing with the known-user path.
		auth.VerifyPassword(decoyHash(), password)
		return nil, s.rejectLogin(username)
	}

	if !auth.VerifyPassword(user.Password, password) {
		return nil, s.rejectLogin(username)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		logrus.WithError(err).Error("Failed to issue access token")
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.count("login", nil)

	return token, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, s.db, id)
}

// UpdateProfile applies patch to the user identified by id. An empty patch
// returns the stored user unchanged.
func (s *UserService) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*User, error) {
	if patch.IsEmpty() {
		return s.repo.GetByID(ctx, s.db, id)
	}

	if patch.Username != nil {
		if err := validateUsername(*patch.Username); err != nil {
			return nil, err
		}
	}

	var hashedPassword string
	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return nil, err
		}
		hash, err := auth.GeneratePasswordHash(*patch.Password)
		if err != nil {
			logrus.WithError(err).Error("Failed to hash password")
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hashedPassword = hash
	}

	var updated *User
	err := utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		user, err := s.repo.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}

		if patch.Username != nil && *patch.Username != user.Username {
			other, err := s.repo.GetByUsername(ctx, tx, *patch.Username)
			switch {
			case err == nil && other != nil && other.ID != user.ID:
				return apperror.ErrUsernameTaken
			case err != nil && !errors.Is(err, apperror.ErrNotFound):
				return err
			}
			user.Username = *patch.Username
		}
		if hashedPassword != "" {
			user.Password = hashedPassword
		}
		if patch.Email != nil {
			user.Email = patch.Email
		}
		if patch.FullName != nil {
			user.FullName = patch.FullName
		}

		if err := s.repo.Update(ctx, tx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithField("user_id", id).Info("Profile updated")
	return updated, nil
}

func (s *UserService) rejectLogin(username string) error {
	s.count("login", apperror.ErrInvalidCredentials)
	logrus.WithField("username", username).Warn("Rejected login attempt")
	return apperror.ErrInvalidCredentials
}

func (s *UserService) count(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrInvalidCredentials):
		result = "invalid_credentials"
	case errors.Is(err, apperror.ErrUsernameTaken):
		result = "conflict"
	case errors.Is(err, apperror.ErrValidation):
		result = "invalid"
	default:
		result = "error"
	}
	s.metrics.AuthAttemptsTotal.WithLabelValues(operation, result).Inc()
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be between %d and %d characters", apperror.ErrValidation, minUsernameLen, maxUsernameLen)
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", apperror.ErrValidation, minPasswordLen)
	}
	if len(password) > auth.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", apperror.ErrValidation, auth.MaxPasswordBytes)
	}
	return nil
}

var (
	decoyOnce sync.Once
	decoy     string
)

func decoyHash() string {
	decoyOnce.Do(func() {
		decoy, _ = auth.GeneratePasswordHash("decoy-password-for-unknown-users")
	})
	return decoy
}
