package storage

import (
	"asciitex/internal/retry"
	"context"
	"errors"
	"io/fs"
)

type retryingStorage struct {
	base     Storage
	strategy retry.Strategy
}

// NewRetryingStorage retries failed calls on base. Reads of missing
// objects fail immediately.
func NewRetryingStorage(base Storage, strategy retry.Strategy) Storage {
	return &retryingStorage{
		base:     base,
		strategy: strategy,
	}
}

func (r *retryingStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	var url string
	err := retry.Do(ctx, r.strategy, func(ctx context.Context) error {
		u, err := r.base.Put(ctx, key, data)
		if err != nil {
			return err
		}
		url = u
		return nil
	})
	return url, err
}

func (r *retryingStorage) Get(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, r.strategy, func(ctx context.Context) error {
		d, err := r.base.Get(ctx, url)
		if errors.Is(err, fs.ErrNotExist) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	return data, err
}
