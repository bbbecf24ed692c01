package storage

import (
	"context"
	"fmt"
)

type Config struct {
	// Backend is "file" or "s3".
	Backend string
	File    FileConfig
	S3      S3Config
}

func New(ctx context.Context, c Config) (Storage, error) {
	switch c.Backend {
	case "", "file":
		s, err := NewFileStorage(ctx, c.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file storage backend: %w", err)
		}
		return s, nil
	case "s3":
		s, err := NewS3Storage(ctx, c.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage backend: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend: %s", c.Backend)
}
