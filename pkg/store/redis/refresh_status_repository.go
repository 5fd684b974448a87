package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"exportestimator/internal/model"
)

const (
	refreshStatusKeyPrefix = "statistics:refresh:" // Status per grouping (statistics:refresh:{grouping})
	refreshStatusSetKey    = "statistics:refresh:groupings"
	refreshStatusTTL       = 7 * 24 * time.Hour
)

// ErrRefreshStatusNotFound is returned when a grouping was never refreshed
var ErrRefreshStatusNotFound = errors.New("refresh status not found")

// RefreshStatusRepository keeps the latest refresh status of every grouping
type RefreshStatusRepository struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRefreshStatusRepository creates a refresh status repository
func NewRefreshStatusRepository(redisClient *RedisClient) *RefreshStatusRepository {
	return &RefreshStatusRepository{
		redis: redisClient.GetClient(),
		now:   time.Now,
	}
}

// Save stores status, stamping UpdatedAt
func (r *RefreshStatusRepository) Save(ctx context.Context, status *model.RefreshStatus) error {
	status.UpdatedAt = r.now()
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh status: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, refreshStatusKeyPrefix+status.Grouping, data, refreshStatusTTL)
	pipe.SAdd(ctx, refreshStatusSetKey, status.Grouping)
	pipe.Expire(ctx, refreshStatusSetKey, refreshStatusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save refresh status: %w", err)
	}
	return nil
}

// Get returns the status of grouping
func (r *RefreshStatusRepository) Get(ctx context.Context, grouping string) (*model.RefreshStatus, error) {
	data, err := r.redis.Get(ctx, refreshStatusKeyPrefix+grouping).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrRefreshStatusNotFound, grouping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh status: %w", err)
	}

	var status model.RefreshStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh status: %w", err)
	}
	return &status, nil
}

// GetAll returns the status of every grouping still retained, by grouping name
func (r *RefreshStatusRepository) GetAll(ctx context.Context) ([]*model.RefreshStatus, error) {
	groupings, err := r.redis.SMembers(ctx, refreshStatusSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list refreshed groupings: %w", err)
	}
	if len(groupings) == 0 {
		return []*model.RefreshStatus{}, nil
	}
	sort.Strings(groupings)

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(groupings))
	for _, g := range groupings {
		cmds = append(cmds, pipe.Get(ctx, refreshStatusKeyPrefix+g))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get refresh statuses: %w", err)
	}

	out := make([]*model.RefreshStatus, 0, len(groupings))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// Expired
			continue
		}
		var status model.RefreshStatus
		if err := json.Unmarshal(data, &status); err != nil {
			continue
		}
		out = append(out, &status)
	}
	return out, nil
}
