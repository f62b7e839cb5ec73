package rediscache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RecentEvents keeps a bounded per-race window of recent sensor sightings,
// backing the advisory duplicate detector. One sorted set per race, scored
// by event unix millis, trimmed to the window horizon on every write.
type RecentEvents struct {
	c      *redis.Client
	window time.Duration
}

type Sighting struct {
	RunnerID string
	At       time.Time
}

func NewRecentEvents(addr string, window time.Duration) *RecentEvents {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &RecentEvents{
		c:      redis.NewClient(&redis.Options{Addr: addr}),
		window: window,
	}
}

func recentKey(raceKey string) string {
	return "checkpoint:recent:" + raceKey
}

// Record adds a sighting and trims everything older than the window. The key
// expires with the window too, so idle races cost nothing.
func (r *RecentEvents) Record(ctx context.Context, raceKey, runnerID string, at time.Time) error {
	key := recentKey(raceKey)
	score := at.UTC().UnixMilli()
	member := fmt.Sprintf("%s|%d", runnerID, score)
	horizon := time.Now().UTC().Add(-r.window).UnixMilli()

	pipe := r.c.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(horizon, 10))
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis record sighting")
	}
	return nil
}

// Window returns the sightings inside the race's recent horizon.
func (r *RecentEvents) Window(ctx context.Context, raceKey string) ([]Sighting, error) {
	horizon := time.Now().UTC().Add(-r.window).UnixMilli()

	members, err := r.c.ZRangeByScore(ctx, recentKey(raceKey), &redis.ZRangeBy{
		Min: strconv.FormatInt(horizon, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis window")
	}

	out := make([]Sighting, 0, len(members))
	for _, m := range members {
		idx := strings.LastIndexByte(m, '|')
		if idx < 0 {
			continue
		}
		ms, err := strconv.ParseInt(m[idx+1:], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Sighting{
			RunnerID: m[:idx],
			At:       time.UnixMilli(ms).UTC(),
		})
	}
	return out, nil
}
