package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/linxtalk/linxtalk-cli/internal/output"
)

// Repository loads and saves one typed value.
type Repository[T any] interface {
	// Load returns the stored value. found is false when nothing is stored.
	Load(ctx context.Context) (value T, found bool, err error)
	Save(ctx context.Context, value T) error
}

// JSON is a Repository that stores T as JSON under a single KV key.
type JSON[T any] struct {
	kv  KV
	key string
}

// NewJSON creates a repository for key in kv.
func NewJSON[T any](kv KV, key string) *JSON[T] {
	return &JSON[T]{kv: kv, key: key}
}

// Key returns the storage key.
func (r *JSON[T]) Key() string {
	return r.key
}

func (r *JSON[T]) Load(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	data, err := r.kv.Get(r.key)
	if errors.Is(err, ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, output.ErrStorage("load", r.key, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, output.ErrDecode(r.key, err)
	}
	return v, true, nil
}

func (r *JSON[T]) Save(ctx context.Context, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return output.ErrDecode(r.key, err)
	}
	if err := r.kv.Set(r.key, data); err != nil {
		return output.ErrStorage("save", r.key, err)
	}
	return nil
}
