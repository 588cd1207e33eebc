package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemStorage keeps one file per entry under basePath/namespace/.
type FilesystemStorage struct {
	basePath string
}

func NewFilesystemStorage(basePath string) (*FilesystemStorage, error) {
	// Ensure the base path exists
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base path %s: %w", basePath, err)
	}

	return &FilesystemStorage{
		basePath: basePath,
	}, nil
}

func (f *FilesystemStorage) statePath(namespace, key string) string {
	return filepath.Join(f.basePath, namespace, key+".state")
}

func (f *FilesystemStorage) GetState(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := validEntry(namespace, key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.statePath(namespace, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	return data, nil
}

func (f *FilesystemStorage) SaveState(ctx context.Context, namespace, key string, data []byte) error {
	if err := validEntry(namespace, key); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(f.basePath, namespace), 0700); err != nil {
		return fmt.Errorf("failed to create namespace path: %w", err)
	}

	// The entry is replaced atomically.
	path := f.statePath(namespace, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

func (f *FilesystemStorage) DeleteState(ctx context.Context, namespace, key string) error {
	if err := validEntry(namespace, key); err != nil {
		return err
	}

	err := os.Remove(f.statePath(namespace, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}

	return nil
}
