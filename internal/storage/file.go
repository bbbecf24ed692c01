package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type fileStorage struct {
	directory string
}

type FileConfig struct {
	Directory string
}

func NewFileStorage(ctx context.Context, f FileConfig) (Storage, error) {
	directory := f.Directory
	if directory == "" {
		directory = "."
	}

	return &fileStorage{
		directory: directory,
	}, nil
}

func (f *fileStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	filePath := filepath.Join(f.directory, filepath.FromSlash(key))
	if rel, err := filepath.Rel(f.directory, filePath); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("key %q escapes the storage directory", key)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write through a temporary file so readers never see a partial artifact.
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".put-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return filePath, nil
}

func (f *fileStorage) Get(ctx context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}
