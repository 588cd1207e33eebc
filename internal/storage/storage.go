package storage

import (
	"context"
	"fmt"
	"strings"
)

// StateStorage keeps opaque auth state blobs. A namespace plays the role of
// an app group: every component sharing it sees the same entries.
type StateStorage interface {
	// GetState returns nil, nil when there is no entry.
	GetState(ctx context.Context, namespace, key string) ([]byte, error)
	SaveState(ctx context.Context, namespace, key string, data []byte) error
	DeleteState(ctx context.Context, namespace, key string) error
}

func validName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}

func validEntry(namespace, key string) error {
	if err := validName("namespace", namespace); err != nil {
		return err
	}
	return validName("key", key)
}
