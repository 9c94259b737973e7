// Package kvtest spins up an in-process Redis for tests.
package kvtest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/pixvault/internal/kv"
)

// Namespace is the key prefix used by stores built with New.
const Namespace = "test"

// New returns a RedisStore backed by a fresh miniredis instance. Both are
// torn down when the test finishes.
func New(t testing.TB) (*kv.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return kv.NewRedisStore(rdb, Namespace), mr
}
