package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisMetaField = "__meta"

// redisClient defines the minimal subset of the redis client used by redisBackend.
type redisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// redisBackend keeps one hash field per source under a single key.
type redisBackend struct {
	client redisClient
	key    string
}

func openRedis(opts Options) Backend {
	key := strings.TrimSpace(opts.RedisKey)
	if key == "" {
		key = defaultRedisKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	return &redisBackend{client: client, key: key}
}

func (r *redisBackend) Name() string { return TypeRedis }

func (r *redisBackend) Close() error { return r.client.Close() }

func (r *redisBackend) Load(ctx context.Context) (State, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return State{}, fmt.Errorf("redis hgetall %s: %w", r.key, err)
	}

	st := NewState()
	st.Version = 0
	for field, value := range fields {
		if field == redisMetaField {
			var meta redisMeta
			if err := json.Unmarshal([]byte(value), &meta); err == nil {
				st.Version = meta.Version
				st.SavedAt = meta.SavedAt
			}
			continue
		}
		var ss SourceState
		if err := json.Unmarshal([]byte(value), &ss); err != nil {
			continue
		}
		st.Sources[field] = ss
	}
	return st, nil
}

func (r *redisBackend) Save(ctx context.Context, st State) error {
	values := make([]interface{}, 0, 2*(len(st.Sources)+1))
	for source, ss := range st.Sources {
		raw, err := json.Marshal(ss)
		if err != nil {
			return fmt.Errorf("encode source %s: %w", source, err)
		}
		values = append(values, source, string(raw))
	}
	meta, err := json.Marshal(redisMeta{Version: SchemaVersion, SavedAt: st.SavedAt})
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	values = append(values, redisMetaField, string(meta))

	if err := r.client.HSet(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", r.key, err)
	}
	return nil
}

type redisMeta struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
}
