package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"todo_service/internal/activity"
	"todo_service/internal/apperror"
	"todo_service/internal/observability"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type TaskServiceInterface interface {
	CreateTask(ctx context.Context, ownerID string, req CreateTaskRequest) (*Task, error)
	UpdateTask(ctx context.Context, ownerID, id string, patch TaskPatch) (*Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
	ListTasks(ctx context.Context, ownerID string, params ListParams) ([]*Task, error)
}

// PageCache is the list cache used by the service. Implementations treat
// a nil page as a miss; GetPage also reports the version a miss must be
// filled under.
type PageCache interface {
	GetPage(ctx context.Context, userID, queryKey string) ([]byte, int64, error)
	SetPage(ctx context.Context, userID string, version int64, queryKey string, data interface{}) error
	Invalidate(ctx context.Context, userID string) error
}

type TaskService struct {
	repo      TaskRepositoryInterface
	cache     PageCache
	publisher activity.Publisher
	metrics   *observability.Metrics
	limits    Limits
	now       func() time.Time
}

type Option func(*TaskService)

func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

// NewTaskService wires the task use cases. cache and publisher may be nil.
func NewTaskService(repo TaskRepositoryInterface, cache PageCache, publisher activity.Publisher, metrics *observability.Metrics, limits Limits, opts ...Option) TaskServiceInterface {
	s := &TaskService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		limits:    limits,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) CreateTask(ctx context.Context, ownerID string, req CreateTaskRequest) (*Task, error) {
	title := strings.TrimSpace(req.Title)
	status := strings.TrimSpace(req.Status)
	label := strings.TrimSpace(req.Label)

	switch {
	case title == "":
		return nil, s.invalid("create", "title is required")
	case status == "":
		return nil, s.invalid("create", "status is required")
	case label == "":
		return nil, s.invalid("create", "label is required")
	case strings.Contains(label, labelSeparator):
		return nil, s.invalid("create", "label must not contain a comma")
	}

	now := s.timestamp()
	task := &Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: req.Description,
		Status:      status,
		Label:       label,
		Deadline:    normalizeTime(req.Deadline.TimePtr()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		s.count("create", err)
		return nil, err
	}
	s.count("create", nil)

	logrus.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"owner_id": ownerID,
	}).Info("Task created")

	s.afterMutation(ctx, activity.NewEvent(activity.EventTaskCreated, task.ID, ownerID, nil, now))
	return task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, ownerID, id string, patch TaskPatch) (*Task, error) {
	if patch.IsEmpty() {
		return nil, s.invalid("update", "no fields to update")
	}
	var ok bool
	if patch.Title, ok = trimmedField(patch.Title); !ok {
		return nil, s.invalid("update", "title must not be empty")
	}
	if patch.Status, ok = trimmedField(patch.Status); !ok {
		return nil, s.invalid("update", "status must not be empty")
	}
	if patch.Label, ok = trimmedField(patch.Label); !ok {
		return nil, s.invalid("update", "label must not be empty")
	}
	if patch.Label != nil && strings.Contains(*patch.Label, labelSeparator) {
		return nil, s.invalid("update", "label must not contain a comma")
	}
	patch.Deadline = normalizeTime(patch.Deadline)

	now := s.timestamp()
	task, err := s.repo.Update(ctx, ownerID, id, patch, now)
	if err != nil {
		s.count("update", err)
		return nil, err
	}
	s.count("update", nil)

	logrus.WithFields(logrus.Fields{
		"task_id":  id,
		"owner_id": ownerID,
		"fields":   patch.Fields(),
	}).Info("Task updated")

	s.afterMutation(ctx, activity.NewEvent(activity.EventTaskUpdated, id, ownerID, patch.Fields(), task.UpdatedAt))
	return task, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		s.count("delete", err)
		return err
	}
	s.count("delete", nil)

	logrus.WithFields(logrus.Fields{
		"task_id":  id,
		"owner_id": ownerID,
	}).Info("Task deleted")

	s.afterMutation(ctx, activity.NewEvent(activity.EventTaskDeleted, id, ownerID, nil, s.timestamp()))
	return nil
}

// ListTasks validates params, then serves the page from cache or storage.
func (s *TaskService) ListTasks(ctx context.Context, ownerID string, params ListParams) ([]*Task, error) {
	query, err := NewListQuery(params, s.limits)
	if err != nil {
		s.count("list", err)
		return nil, err
	}

	cacheKey := query.CacheKey()
	tasks, version, fill := s.cachedPage(ctx, ownerID, cacheKey)
	if tasks != nil {
		s.count("list", nil)
		return tasks, nil
	}

	tasks, err = s.repo.Find(ctx, ownerID, query)
	if err != nil {
		s.count("list", err)
		return nil, err
	}
	s.count("list", nil)
	if s.metrics != nil {
		s.metrics.TaskQueryResultSize.Observe(float64(len(tasks)))
	}

	if fill {
		if err := s.cache.SetPage(ctx, ownerID, version, cacheKey, tasks); err != nil {
			s.cacheError("set")
			logrus.WithError(err).Warn("Failed to set cache for user tasks")
		}
	}

	return tasks, nil
}

// cachedPage returns the cached page on a hit. On a miss it reports the
// version to fill under, and fill is false when the cache is unusable.
func (s *TaskService) cachedPage(ctx context.Context, ownerID, key string) (tasks []*Task, version int64, fill bool) {
	if s.cache == nil {
		return nil, 0, false
	}

	data, version, err := s.cache.GetPage(ctx, ownerID, key)
	if err != nil {
		s.cacheError("get")
		logrus.WithError(err).Warn("Failed to read cache for user tasks")
		return nil, 0, false
	}
	if data == nil {
		s.cacheMetric(false)
		return nil, version, true
	}

	tasks = make([]*Task, 0)
	if err := json.Unmarshal(data, &tasks); err != nil {
		logrus.WithError(err).Warn("Discarding undecodable cached page")
		return nil, version, true
	}

	s.cacheMetric(true)
	logrus.WithField("owner_id", ownerID).Debug("cache hit for user tasks")
	return tasks, version, false
}

// afterMutation retires cached pages and emits the activity event. Neither
// step can fail the mutation.
func (s *TaskService) afterMutation(ctx context.Context, event activity.Event) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, event.OwnerID); err != nil {
			s.cacheError("invalidate")
			logrus.WithError(err).WithField("owner_id", event.OwnerID).Warn("Failed to invalidate task cache")
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"task_id": event.TaskID,
				"event":   event.Type,
			}).Warn("Failed to publish activity event")
		}
	}
}

func (s *TaskService) invalid(operation, message string) error {
	err := fmt.Errorf("%w: %s", apperror.ErrValidation, message)
	s.count(operation, err)
	return err
}

func (s *TaskService) count(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.TaskOperationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
}

func (s *TaskService) cacheMetric(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHitsTotal.WithLabelValues("task_page").Inc()
	} else {
		s.metrics.CacheMissesTotal.WithLabelValues("task_page").Inc()
	}
}

func (s *TaskService) cacheError(operation string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheErrorsTotal.WithLabelValues("task_page", operation).Inc()
}

// timestamp is the current time at the precision the document store keeps.
func (s *TaskService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// trimmedField returns a trimmed copy of value. A present but blank value
// is rejected.
func trimmedField(value *string) (*string, bool) {
	if value == nil {
		return nil, true
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, false
	}
	return &trimmed, true
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrInvalidQuery):
		return "invalid"
	default:
		return "error"
	}
}
