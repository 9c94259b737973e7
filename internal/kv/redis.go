package kv

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN while listing.
const scanBatch = 500

// RedisStore implements Store on a single Redis database. Every key is
// prefixed with a namespace so several deployments can share one server.
type RedisStore struct {
	rdb *redis.Client
	ns  string
}

// NewRedisStore wraps rdb. An empty namespace stores keys verbatim; otherwise
// keys are written as "<namespace>:<key>".
func NewRedisStore(rdb *redis.Client, namespace string) *RedisStore {
	ns := strings.TrimSuffix(namespace, ":")
	if ns != "" {
		ns += ":"
	}
	return &RedisStore{rdb: rdb, ns: ns}
}

func (s *RedisStore) key(k string) string { return s.ns + k }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, s.key(key), value, 0).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	return s.rdb.SetNX(ctx, s.key(key), value, 0).Result()
}

// Delete uses DEL, which already treats missing keys as a no-op.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// List walks the keyspace with SCAN rather than KEYS so a large index never
// blocks the server. SCAN may return a key more than once; duplicates are
// folded before sorting.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(s.key(prefix)) + "*"
	seen := make(map[string]struct{})
	iter := s.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		seen[strings.TrimPrefix(iter.Val(), s.ns)] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping reports whether the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
