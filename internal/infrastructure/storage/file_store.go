package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"twintalk/internal/core/domain"
)

// FileStore keeps recording artifacts on the local filesystem.
type FileStore struct {
	basePath string
}

func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	return &FileStore{
		basePath: basePath,
	}, nil
}

// Save writes data under name. The file appears atomically so a reader never
// sees a partial artifact.
func (fs *FileStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	filePath, err := fs.path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(fs.basePath, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", fmt.Errorf("failed to publish artifact: %w", err)
	}

	return filePath, nil
}

func (fs *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	filePath, err := fs.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

func (fs *FileStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(fs.basePath)
	if err != nil {
		return fmt.Errorf("recordings directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("recordings path %s is not a directory", fs.basePath)
	}
	return nil
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(fs.basePath, name), nil
}
