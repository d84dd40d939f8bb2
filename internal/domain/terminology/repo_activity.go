package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const defaultActivityLimit = 50

// =========== Memory Activity Log ===========

// MemoryActivityLog keeps the most recent searches in a bounded slice.
type MemoryActivityLog struct {
	mu      sync.Mutex
	max     int
	entries []*SearchActivity // newest first
}

func NewMemoryActivityLog(max int) *MemoryActivityLog {
	if max <= 0 {
		max = defaultActivityLimit
	}
	return &MemoryActivityLog{max: max}
}

func (l *MemoryActivityLog) LogSearch(_ context.Context, a *SearchActivity) error {
	stampActivity(a)
	cp := *a
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]*SearchActivity{&cp}, l.entries...)
	if len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}
	return nil
}

func (l *MemoryActivityLog) Recent(_ context.Context, limit int) ([]*SearchActivity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]*SearchActivity, 0, limit)
	for _, e := range l.entries[:limit] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// =========== Redis Activity Log ===========

// RedisActivityLog stores searches as JSON in a capped Redis list.
type RedisActivityLog struct {
	client *redis.Client
	key    string
	max    int64
}

func NewRedisActivityLog(client *redis.Client, key string, max int) *RedisActivityLog {
	if key == "" {
		key = "bridge:search_activity"
	}
	if max <= 0 {
		max = defaultActivityLimit
	}
	return &RedisActivityLog{client: client, key: key, max: int64(max)}
}

func (l *RedisActivityLog) LogSearch(ctx context.Context, a *SearchActivity) error {
	stampActivity(a)
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, l.key, data)
	pipe.LTrim(ctx, l.key, 0, l.max-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("log search activity: %w", err)
	}
	return nil
}

func (l *RedisActivityLog) Recent(ctx context.Context, limit int) ([]*SearchActivity, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	vals, err := l.client.LRange(ctx, l.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read search activity: %w", err)
	}
	out := make([]*SearchActivity, 0, len(vals))
	for _, v := range vals {
		var a SearchActivity
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

func stampActivity(a *SearchActivity) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
}
