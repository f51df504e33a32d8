package activity

import (
	"context"
	"database/sql"
	"fmt"

	"todo_service/internal/apperror"
	"todo_service/internal/utils"

	"github.com/sirupsen/logrus"
)

// Recorder persists consumed events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

type ServiceInterface interface {
	Recorder
	History(ctx context.Context, ownerID, taskID string) ([]Event, error)
}

type Service struct {
	repo RepositoryInterface
	db   *sql.DB
}

func NewService(repo RepositoryInterface, db *sql.DB) ServiceInterface {
	return &Service{
		repo: repo,
		db:   db,
	}
}

func (s *Service) Record(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrValidation, err)
	}

	return utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		inserted, err := s.repo.Save(ctx, tx, event)
		if err != nil {
			return fmt.Errorf("record activity: %w: %w", apperror.ErrStorageUnavailable, err)
		}
		if !inserted {
			logrus.WithField("event_id", event.ID).Debug("Activity event already recorded")
		}
		return nil
	})
}

// History lists recorded events for a task the owner has touched. A task
// with no visible history is reported as not found.
func (s *Service) History(ctx context.Context, ownerID, taskID string) ([]Event, error) {
	events, err := s.repo.ListByTask(ctx, s.db, ownerID, taskID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w: %w", apperror.ErrStorageUnavailable, err)
	}
	if len(events) == 0 {
		return nil, apperror.ErrNotFound
	}
	return events, nil
}
