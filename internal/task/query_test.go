package task

import (
	"testing"
	"time"

	"todo_service/internal/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var testLimits = Limits{Default: 50, Max: 500}

func strPtr(s string) *string { return &s }

func TestNewListQuery_Defaults(t *testing.T) {
	q, err := NewListQuery(ListParams{}, testLimits)

	require.NoError(t, err)
	assert.Nil(t, q.Status)
	assert.Nil(t, q.Labels)
	assert.Nil(t, q.MinDeadline)
	assert.Nil(t, q.MaxDeadline)
	assert.Equal(t, SortByCreatedAt, q.SortBy)
	assert.Equal(t, SortDesc, q.SortOrder)
	assert.Equal(t, int64(0), q.Skip)
	assert.Equal(t, int64(50), q.Limit)
}

func TestNewListQuery_SortOrderWithoutSortBy(t *testing.T) {
	q, err := NewListQuery(ListParams{SortOrder: strPtr("asc")}, testLimits)

	require.NoError(t, err)
	assert.Equal(t, SortByCreatedAt, q.SortBy)
	assert.Equal(t, SortAsc, q.SortOrder)
}

func TestNewListQuery_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		params  ListParams
		message string
	}{
		{"unknown sort_by", ListParams{SortBy: strPtr("title")}, "sort_by"},
		{"unknown sort_order", ListParams{SortOrder: strPtr("up")}, "sort_order"},
		{"negative skip", ListParams{Skip: strPtr("-1")}, "skip"},
		{"non numeric skip", ListParams{Skip: strPtr("ten")}, "skip"},
		{"negative limit", ListParams{Limit: strPtr("-5")}, "limit"},
		{"limit above cap", ListParams{Limit: strPtr("501")}, "at most 500"},
		{"non numeric limit", ListParams{Limit: strPtr("1.5")}, "limit"},
		{"bad min_deadline", ListParams{MinDeadline: strPtr("tomorrow")}, "min_deadline"},
		{"bad max_deadline", ListParams{MaxDeadline: strPtr("2026-13-40")}, "max_deadline"},
		{"inverted deadline window", ListParams{MinDeadline: strPtr("2026-05-02"), MaxDeadline: strPtr("2026-05-01")}, "min_deadline must not be after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewListQuery(tt.params, testLimits)

			assert.Nil(t, q)
			require.ErrorIs(t, err, apperror.ErrInvalidQuery)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNewListQuery_LimitBoundaries(t *testing.T) {
	q, err := NewListQuery(ListParams{Limit: strPtr("500"), Skip: strPtr("0")}, testLimits)
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.Limit)

	q, err = NewListQuery(ListParams{Limit: strPtr("0")}, testLimits)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.Limit)
}

func TestNewListQuery_Labels(t *testing.T) {
	q, err := NewListQuery(ListParams{IncludeLabels: []string{"work, home", "work", " ", "urgent"}}, testLimits)
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "urgent", "work"}, q.Labels)

	q, err = NewListQuery(ListParams{IncludeLabels: []string{"", ","}}, testLimits)
	require.NoError(t, err)
	assert.Nil(t, q.Labels)
}

func TestNewListQuery_EmptyStatusIsAbsent(t *testing.T) {
	q, err := NewListQuery(ListParams{Status: strPtr("")}, testLimits)

	require.NoError(t, err)
	assert.Nil(t, q.Status)
}

func TestNewListQuery_Deadlines(t *testing.T) {
	q, err := NewListQuery(ListParams{
		MinDeadline: strPtr("2026-05-01"),
		MaxDeadline: strPtr("2026-05-01"),
	}, testLimits)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), *q.MinDeadline)
	assert.Equal(t, time.Date(2026, 5, 1, 23, 59, 59, 999_000_000, time.UTC), *q.MaxDeadline)

	q, err = NewListQuery(ListParams{MaxDeadline: strPtr("2026-05-01T10:00:00+02:00")}, testLimits)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), *q.MaxDeadline)
}

func TestListQuery_Filter(t *testing.T) {
	q, err := NewListQuery(ListParams{
		Status:        strPtr("completed"),
		IncludeLabels: []string{"work"},
		MinDeadline:   strPtr("2026-05-01"),
	}, testLimits)
	require.NoError(t, err)

	filter := q.Filter("owner-1")

	assert.Equal(t, bson.D{
		{Key: "owner_id", Value: "owner-1"},
		{Key: "status", Value: "completed"},
		{Key: "label", Value: bson.D{{Key: "$in", Value: []string{"work"}}}},
		{Key: "deadline", Value: bson.D{{Key: "$gte", Value: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}}},
	}, filter)
}

func TestListQuery_FilterAlwaysScopedToOwner(t *testing.T) {
	q, err := NewListQuery(ListParams{}, testLimits)
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "owner_id", Value: "owner-2"}}, q.Filter("owner-2"))
}

func TestListQuery_SortBreaksTiesByID(t *testing.T) {
	tests := []struct {
		name   string
		params ListParams
		want   bson.D
	}{
		{"default", ListParams{}, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
		{"updated asc", ListParams{SortBy: strPtr("updated_at"), SortOrder: strPtr("asc")}, bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}}},
		{"created desc", ListParams{SortBy: strPtr("created_at"), SortOrder: strPtr("desc")}, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewListQuery(tt.params, testLimits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Sort())
		})
	}
}

func TestListQuery_FindOptions(t *testing.T) {
	q, err := NewListQuery(ListParams{Skip: strPtr("1"), Limit: strPtr("1")}, testLimits)
	require.NoError(t, err)

	opts := q.FindOptions()

	require.NotNil(t, opts.Skip)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(1), *opts.Skip)
	assert.Equal(t, int64(1), *opts.Limit)
	assert.Equal(t, q.Sort(), opts.Sort)
}

func TestListQuery_CacheKey(t *testing.T) {
	a, err := NewListQuery(ListParams{IncludeLabels: []string{"b,a"}, Limit: strPtr("10")}, testLimits)
	require.NoError(t, err)
	b, err := NewListQuery(ListParams{IncludeLabels: []string{"a", "b"}, Limit: strPtr("10")}, testLimits)
	require.NoError(t, err)
	c, err := NewListQuery(ListParams{IncludeLabels: []string{"a", "b"}, Limit: strPtr("11")}, testLimits)
	require.NoError(t, err)

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
}
