package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/model"
)

// ResourceRepo stores resource metadata records keyed by name.
type ResourceRepo struct {
	Store kv.Store
}

func NewResourceRepo(s kv.Store) *ResourceRepo { return &ResourceRepo{Store: s} }

// Get loads the metadata for name.
func (r *ResourceRepo) Get(ctx context.Context, name string) (*model.Resource, error) {
	var res model.Resource
	if err := kv.GetJSON(ctx, r.Store, resourceKey(name), &res); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &res, nil
}

// Exists reports whether a record is stored under name.
func (r *ResourceRepo) Exists(ctx context.Context, name string) (bool, error) {
	_, err := r.Store.Get(ctx, resourceKey(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Claim writes res only if its name is still free. It returns
// ErrDuplicateName when another writer got there first.
func (r *ResourceRepo) Claim(ctx context.Context, res *model.Resource) error {
	ok, err := kv.SetNXJSON(ctx, r.Store, resourceKey(res.Name), res)
	if err != nil {
		return fmt.Errorf("claim resource %s: %w", res.Name, err)
	}
	if !ok {
		return ErrDuplicateName
	}
	return nil
}

// Delete removes the metadata record; absent records are fine.
func (r *ResourceRepo) Delete(ctx context.Context, name string) error {
	return r.Store.Delete(ctx, resourceKey(name))
}
