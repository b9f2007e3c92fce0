package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/agokrani/moltbook-api/internal/domain"
)

const (
	feedViewsKey    = "activity:feed_views"
	impressionsKey  = "activity:impressions"
	maxFeedViewsLen = 100_000
)

// ActivityLog implements domain.ActivityLog on Redis. Each feed view is
// appended to a capped event list and every post on the viewed page gets its
// impression counter bumped in the same pipeline.
type ActivityLog struct {
	rdb *goredis.Client
}

// NewActivityLog creates an ActivityLog on the given client.
func NewActivityLog(rdb *goredis.Client) *ActivityLog {
	return &ActivityLog{rdb: rdb}
}

// RecordFeedView appends the event and increments one impression per post id.
func (l *ActivityLog) RecordFeedView(ctx context.Context, view domain.FeedView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal feed view: %w", err)
	}

	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, feedViewsKey, payload)
	pipe.LTrim(ctx, feedViewsKey, 0, maxFeedViewsLen-1)
	for _, postID := range view.PostIDs {
		pipe.HIncrBy(ctx, impressionsKey, postID.String(), 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record feed view: %w", err)
	}
	return nil
}

// ImpressionCount returns how many feed views included the post. A post that
// never appeared in a view has zero impressions, not an error.
func (l *ActivityLog) ImpressionCount(ctx context.Context, postID uuid.UUID) (int64, error) {
	count, err := l.rdb.HGet(ctx, impressionsKey, postID.String()).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get impression count: %w", err)
	}
	return count, nil
}

// RecentFeedViews returns up to limit most recent feed-view events, newest
// first.
func (l *ActivityLog) RecentFeedViews(ctx context.Context, limit int64) ([]domain.FeedView, error) {
	raw, err := l.rdb.LRange(ctx, feedViewsKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read feed views: %w", err)
	}

	views := make([]domain.FeedView, 0, len(raw))
	for _, item := range raw {
		var view domain.FeedView
		if err := json.Unmarshal([]byte(item), &view); err != nil {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}
