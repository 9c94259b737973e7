package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/pixvault/internal/kv"
)

// PayloadStore holds the raw bytes of resources. Delete must be idempotent.
type PayloadStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrPayloadMissing when nothing is stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewPayloadKey returns a fresh date-sharded payload key.
func NewPayloadKey(now time.Time) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s", now.Year(), now.Month(), now.Day(), uuid.New())
}

// KVPayloads keeps payloads in the key-value store next to their metadata.
type KVPayloads struct {
	Store kv.Store
}

func NewKVPayloads(s kv.Store) *KVPayloads { return &KVPayloads{Store: s} }

func (p *KVPayloads) Put(ctx context.Context, key string, data []byte, _ string) error {
	return p.Store.Set(ctx, blobKey(key), data)
}

func (p *KVPayloads) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := p.Store.Get(ctx, blobKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrPayloadMissing
	}
	return b, err
}

func (p *KVPayloads) Delete(ctx context.Context, key string) error {
	return p.Store.Delete(ctx, blobKey(key))
}
