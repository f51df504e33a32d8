package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todo_service/internal/apperror"
	"todo_service/internal/observability"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TaskRepository struct {
	col     *mongo.Collection
	metrics *observability.Metrics
}

type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *Task) error
	Update(ctx context.Context, ownerID, id string, patch TaskPatch, now time.Time) (*Task, error)
	Delete(ctx context.Context, ownerID, id string) error
	Find(ctx context.Context, ownerID string, query *ListQuery) ([]*Task, error)
}

func NewTaskRepository(col *mongo.Collection, metrics *observability.Metrics) *TaskRepository {
	return &TaskRepository{
		col:     col,
		metrics: metrics,
	}
}

// EnsureIndexes creates the owner scoped indexes used by listing.
func (r *TaskRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "label", Value: 1}}},
	}

	if _, err := r.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ensure task indexes: %w: %w", apperror.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *TaskRepository) Create(ctx context.Context, task *Task) error {
	defer r.observe("insert", time.Now())

	if _, err := r.col.InsertOne(ctx, task); err != nil {
		logrus.WithError(err).WithField("task_id", task.ID).Error("Failed to insert task")
		return fmt.Errorf("insert task: %w: %w", apperror.ErrStorageUnavailable, err)
	}
	return nil
}

// Update applies patch to the task only if ownerID owns it. updated_at
// becomes max(now, previous updated_at + 1ms) so it always moves forward.
func (r *TaskRepository) Update(ctx context.Context, ownerID, id string, patch TaskPatch, now time.Time) (*Task, error) {
	if !isTaskID(id) {
		return nil, apperror.ErrNotFound
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", apperror.ErrValidation)
	}

	defer r.observe("update", time.Now())

	set := bson.D{}
	for _, field := range patchValues(patch) {
		set = append(set, bson.E{Key: field.Key, Value: bson.D{{Key: "$literal", Value: field.Value}}})
	}
	set = append(set, bson.E{Key: "updated_at", Value: bson.D{{Key: "$max", Value: bson.A{
		now,
		bson.D{{Key: "$add", Value: bson.A{"$updated_at", 1}}},
	}}}})

	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Task
	err := r.col.FindOneAndUpdate(ctx, ownerFilter(ownerID, id), pipeline, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.ErrNotFound
		}
		logrus.WithError(err).WithField("task_id", id).Error("Failed to update task")
		return nil, fmt.Errorf("update task: %w: %w", apperror.ErrStorageUnavailable, err)
	}

	return &updated, nil
}

func (r *TaskRepository) Delete(ctx context.Context, ownerID, id string) error {
	if !isTaskID(id) {
		return apperror.ErrNotFound
	}

	defer r.observe("delete", time.Now())

	res, err := r.col.DeleteOne(ctx, ownerFilter(ownerID, id))
	if err != nil {
		logrus.WithError(err).WithField("task_id", id).Error("Failed to delete task")
		return fmt.Errorf("delete task: %w: %w", apperror.ErrStorageUnavailable, err)
	}
	if res.DeletedCount == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

// Find returns one page of the owner's tasks matching query.
func (r *TaskRepository) Find(ctx context.Context, ownerID string, query *ListQuery) ([]*Task, error) {
	tasks := make([]*Task, 0)

	// A zero limit means "no limit" to the driver.
	if query.Limit == 0 {
		return tasks, nil
	}

	defer r.observe("find", time.Now())

	cur, err := r.col.Find(ctx, query.Filter(ownerID), query.FindOptions())
	if err != nil {
		logrus.WithError(err).WithField("owner_id", ownerID).Error("Failed to query tasks")
		return nil, fmt.Errorf("find tasks: %w: %w", apperror.ErrStorageUnavailable, err)
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w: %w", apperror.ErrStorageUnavailable, err)
	}
	if tasks == nil {
		tasks = make([]*Task, 0)
	}

	return tasks, nil
}

func (r *TaskRepository) observe(operation string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.StoreOperationDuration.WithLabelValues("mongo", operation).Observe(time.Since(start).Seconds())
}

func ownerFilter(ownerID, id string) bson.D {
	return bson.D{{Key: "_id", Value: id}, {Key: "owner_id", Value: ownerID}}
}

func patchValues(patch TaskPatch) bson.D {
	values := bson.D{}
	if patch.Title != nil {
		values = append(values, bson.E{Key: "title", Value: *patch.Title})
	}
	if patch.Description != nil {
		values = append(values, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Status != nil {
		values = append(values, bson.E{Key: "status", Value: *patch.Status})
	}
	if patch.Label != nil {
		values = append(values, bson.E{Key: "label", Value: *patch.Label})
	}
	if patch.Deadline != nil {
		values = append(values, bson.E{Key: "deadline", Value: *patch.Deadline})
	}
	return values
}

// isTaskID reports whether id is a canonical task id. Anything else cannot
// name a stored task.
func isTaskID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}
