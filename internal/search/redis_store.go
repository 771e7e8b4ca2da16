package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces all keys written by RedisStore.
const DefaultRedisPrefix = "allergen:semcache:"

// RedisStore keeps documents as JSON strings in Redis so several service
// replicas share one semantic cache.
//
// Layout:
//   - {prefix}doc:{key}  JSON Document
//   - {prefix}tag:{tag}  set of keys carrying tag
//   - {prefix}all        set of every key
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisStore wraps rdb. An empty prefix selects DefaultRedisPrefix.
func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// OpenRedis dials addr and verifies the connection with PING.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) docKey(key string) string { return s.prefix + "doc:" + key }
func (s *RedisStore) tagKey(tag string) string { return s.prefix + "tag:" + tag }
func (s *RedisStore) allKey() string           { return s.prefix + "all" }

// Upsert writes doc and its set memberships in one MULTI/EXEC.
func (s *RedisStore) Upsert(ctx context.Context, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.docKey(doc.Key), raw, 0)
	pipe.SAdd(ctx, s.allKey(), doc.Key)
	if doc.Tag != "" {
		pipe.SAdd(ctx, s.tagKey(doc.Tag), doc.Key)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Similar loads the candidate documents for q.Tag and ranks them.
func (s *RedisStore) Similar(ctx context.Context, q Query) ([]Match, error) {
	set := s.allKey()
	if q.Tag != "" {
		set = s.tagKey(q.Tag)
	}
	keys, err := s.rdb.SMembers(ctx, set).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	docKeys := make([]string, len(keys))
	for i, k := range keys {
		docKeys[i] = s.docKey(k)
	}
	vals, err := s.rdb.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var d Document
		if err := json.Unmarshal([]byte(str), &d); err != nil {
			continue
		}
		docs = append(docs, d)
	}
	return rank(docs, q), nil
}
