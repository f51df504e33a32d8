package task

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"todo_service/internal/apperror"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const dateLayout = "2006-01-02"

// ListParams holds the raw, optional list parameters as received. A nil
// pointer means the parameter was not supplied.
type ListParams struct {
	Status        *string
	IncludeLabels []string
	MaxDeadline   *string
	MinDeadline   *string
	SortBy        *string
	SortOrder     *string
	Skip          *string
	Limit         *string
}

type Limits struct {
	Default int
	Max     int
}

// ListQuery is a validated list request with every default applied.
type ListQuery struct {
	Status      *string
	Labels      []string
	MaxDeadline *time.Time
	MinDeadline *time.Time
	SortBy      SortField
	SortOrder   SortOrder
	Skip        int64
	Limit       int64
}

func invalidQuery(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperror.ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// NewListQuery validates params and fills in defaults: created_at, desc,
// skip 0 and limits.Default.
func NewListQuery(params ListParams, limits Limits) (*ListQuery, error) {
	q := &ListQuery{
		SortBy:    SortByCreatedAt,
		SortOrder: SortDesc,
		Limit:     int64(limits.Default),
	}

	if params.Status != nil {
		if status := strings.TrimSpace(*params.Status); status != "" {
			q.Status = &status
		}
	}

	q.Labels = normalizeLabels(params.IncludeLabels)

	if params.SortBy != nil && *params.SortBy != "" {
		switch SortField(*params.SortBy) {
		case SortByCreatedAt, SortByUpdatedAt:
			q.SortBy = SortField(*params.SortBy)
		default:
			return nil, invalidQuery("sort_by must be one of %s, %s", SortByCreatedAt, SortByUpdatedAt)
		}
	}

	if params.SortOrder != nil && *params.SortOrder != "" {
		switch SortOrder(*params.SortOrder) {
		case SortAsc, SortDesc:
			q.SortOrder = SortOrder(*params.SortOrder)
		default:
			return nil, invalidQuery("sort_order must be one of %s, %s", SortAsc, SortDesc)
		}
	}

	if params.Skip != nil {
		skip, err := strconv.ParseInt(*params.Skip, 10, 64)
		if err != nil || skip < 0 {
			return nil, invalidQuery("skip must be a non-negative integer")
		}
		q.Skip = skip
	}

	if params.Limit != nil {
		limit, err := strconv.ParseInt(*params.Limit, 10, 64)
		if err != nil || limit < 0 {
			return nil, invalidQuery("limit must be a non-negative integer")
		}
		if limit > int64(limits.Max) {
			return nil, invalidQuery("limit must be at most %d", limits.Max)
		}
		q.Limit = limit
	}

	if params.MinDeadline != nil {
		t, err := parseDeadline(*params.MinDeadline, false)
		if err != nil {
			return nil, invalidQuery("min_deadline must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		q.MinDeadline = &t
	}

	if params.MaxDeadline != nil {
		t, err := parseDeadline(*params.MaxDeadline, true)
		if err != nil {
			return nil, invalidQuery("max_deadline must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		q.MaxDeadline = &t
	}

	if q.MinDeadline != nil && q.MaxDeadline != nil && q.MinDeadline.After(*q.MaxDeadline) {
		return nil, invalidQuery("min_deadline must not be after max_deadline")
	}

	return q, nil
}

// parseDeadline accepts a bare date or an RFC 3339 timestamp. A bare date
// used as an upper bound covers the whole day.
func parseDeadline(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Truncate(time.Millisecond), nil
	}

	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		return day.Add(24*time.Hour - time.Millisecond), nil
	}
	return day, nil
}

// labelSeparator splits include_labels values, so stored labels never contain it.
const labelSeparator = ","

// normalizeLabels flattens repeated and comma separated values, dropping
// blanks and duplicates.
func normalizeLabels(raw []string) []string {
	seen := make(map[string]struct{})
	labels := make([]string, 0, len(raw))
	for _, value := range raw {
		for _, label := range strings.Split(value, labelSeparator) {
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return nil
	}
	sort.Strings(labels)
	return labels
}

// Filter renders the predicates as a document filter scoped to owner.
// Tasks without a deadline never match a deadline bound.
func (q *ListQuery) Filter(ownerID string) bson.D {
	filter := bson.D{{Key: "owner_id", Value: ownerID}}

	if q.Status != nil {
		filter = append(filter, bson.E{Key: "status", Value: *q.Status})
	}

	if len(q.Labels) > 0 {
		filter = append(filter, bson.E{Key: "label", Value: bson.D{{Key: "$in", Value: q.Labels}}})
	}

	if q.MinDeadline != nil || q.MaxDeadline != nil {
		bounds := bson.D{}
		if q.MinDeadline != nil {
			bounds = append(bounds, bson.E{Key: "$gte", Value: *q.MinDeadline})
		}
		if q.MaxDeadline != nil {
			bounds = append(bounds, bson.E{Key: "$lte", Value: *q.MaxDeadline})
		}
		filter = append(filter, bson.E{Key: "deadline", Value: bounds})
	}

	return filter
}

// Sort orders by the chosen timestamp, then by id ascending.
func (q *ListQuery) Sort() bson.D {
	direction := -1
	if q.SortOrder == SortAsc {
		direction = 1
	}
	return bson.D{
		{Key: string(q.SortBy), Value: direction},
		{Key: "_id", Value: 1},
	}
}

func (q *ListQuery) FindOptions() *options.FindOptions {
	return options.Find().
		SetSort(q.Sort()).
		SetSkip(q.Skip).
		SetLimit(q.Limit)
}

// CacheKey is a canonical rendering of the query, equal for equal queries.
func (q *ListQuery) CacheKey() string {
	var b strings.Builder

	b.WriteString("status=")
	if q.Status != nil {
		b.WriteString(strconv.Quote(*q.Status))
	}
	b.WriteString("|labels=")
	for i, label := range q.Labels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(label))
	}
	b.WriteString("|min=")
	if q.MinDeadline != nil {
		b.WriteString(q.MinDeadline.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString("|max=")
	if q.MaxDeadline != nil {
		b.WriteString(q.MaxDeadline.UTC().Format(time.RFC3339Nano))
	}
	fmt.Fprintf(&b, "|sort=%s:%s|skip=%d|limit=%d", q.SortBy, q.SortOrder, q.Skip, q.Limit)

	return b.String()
}
