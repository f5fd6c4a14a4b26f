// Package ratelimit is Rate & Abuse Control (C11): per-org fixed-window
// counters, with distinct tiers for general API traffic vs. ingest
// lifecycle/event calls (§4.10). Grounded on the teacher's windowed rate
// limiter shape (mutex-guarded map, write path only on a new window),
// re-pointed at Redis INCR+EXPIRE so counters survive across instances;
// the teacher's in-memory map becomes the Redis-unavailable fallback with
// the same structure. Each tier:org pair gets a one-minute fixed window —
// the counter resets on window boundary rather than sliding continuously.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier names the three buckets spec.md §4.10 calls out.
type Tier string

const (
	TierGeneral         Tier = "general"
	TierIngestLifecycle Tier = "ingest_lifecycle"
	TierIngestEvent     Tier = "ingest_event"
)

// Limiter enforces a per-org, per-tier one-minute fixed window: the count
// resets at each window boundary and does not slide. Backed by Redis when
// available; falls back to an in-process map (mutex-guarded, like the
// teacher's original limiter) when Redis is unreachable.
type Limiter struct {
	rdb     *redis.Client
	limits  map[Tier]int
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count       int
	windowStart time.Time
}

func New(rdb *redis.Client, limits map[Tier]int) *Limiter {
	l := &Limiter{
		rdb:     rdb,
		limits:  limits,
		windows: make(map[string]*window),
	}
	go l.cleanupLoop()
	return l
}

// cleanupLoop evicts stale in-memory windows. Runs on a background ticker
// that never blocks process exit (the goroutine simply leaks at shutdown,
// matching the teacher's fallback-cleanup idiom).
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, w := range l.windows {
			if now.Sub(w.windowStart) > 2*time.Minute {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}

// Allow reports whether orgID may make one more call in tier, incrementing
// the window's counter as a side effect.
func (l *Limiter) Allow(ctx context.Context, orgID string, tier Tier) (bool, error) {
	limit := l.limits[tier]
	if limit <= 0 {
		limit = 100
	}

	if l.rdb != nil {
		key := fmt.Sprintf("ratelimit:%s:%s", tier, orgID)
		count, err := l.rdb.Incr(ctx, key).Result()
		if err != nil {
			slog.Warn("ratelimit: redis unavailable, falling back to in-memory", "error", err)
			return l.allowLocal(orgID, tier, limit), nil
		}
		if count == 1 {
			l.rdb.Expire(ctx, key, time.Minute)
		}
		return count <= int64(limit), nil
	}
	return l.allowLocal(orgID, tier, limit), nil
}

func (l *Limiter) allowLocal(orgID string, tier Tier, limit int) bool {
	key := string(tier) + ":" + orgID
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists || now.Sub(w.windowStart) > time.Minute {
		l.windows[key] = &window{count: 1, windowStart: now}
		return true
	}
	w.count++
	return w.count <= limit
}
