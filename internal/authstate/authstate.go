// Package authstate persists the last authorization result across restarts.
package authstate

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/andyleap/ndirp/internal/models"
	"github.com/andyleap/ndirp/internal/storage"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	DefaultNamespace = "group.net.openid.appauth.Example"
	DefaultKey       = "authState"
)

// Keeper holds the in-memory AuthState and mirrors it to a StateStorage.
type Keeper struct {
	store     storage.StateStorage
	namespace string
	key       string
	aead      cipher.AEAD

	mu      sync.Mutex
	current *models.AuthState
}

type options struct {
	namespace string
	key       string
	encKey    []byte
}

// Option customizes a Keeper.
type Option func(*options)

func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

func WithKey(key string) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithEncryptionKey seals stored blobs with XChaCha20-Poly1305. The key must
// be chacha20poly1305.KeySize bytes.
func WithEncryptionKey(key []byte) Option {
	return func(o *options) {
		o.encKey = key
	}
}

func NewKeeper(store storage.StateStorage, opts ...Option) (*Keeper, error) {
	o := options{
		namespace: DefaultNamespace,
		key:       DefaultKey,
	}
	for _, opt := range opts {
		opt(&o)
	}

	k := &Keeper{
		store:     store,
		namespace: o.namespace,
		key:       o.key,
	}

	if len(o.encKey) > 0 {
		aead, err := chacha20poly1305.NewX(o.encKey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid state encryption key: %v", models.ErrConfiguration, err)
		}
		k.aead = aead
	}

	return k, nil
}

// Current returns a copy of the in-memory state, or nil.
func (k *Keeper) Current() *models.AuthState {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.current == nil {
		return nil
	}
	st := *k.current
	return &st
}

// Load restores the persisted state. A missing or unreadable blob leaves the
// keeper empty and returns nil, nil.
func (k *Keeper) Load(ctx context.Context) (*models.AuthState, error) {
	blob, err := k.store.GetState(ctx, k.namespace, k.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth state: %w", err)
	}

	var st *models.AuthState
	if blob != nil {
		st, err = k.decode(blob)
		if err != nil {
			slog.Warn("Discarding unreadable auth state", "namespace", k.namespace, "key", k.key, "error", err)
			st = nil
		}
	}

	k.mu.Lock()
	k.current = st
	k.mu.Unlock()

	return k.Current(), nil
}

// Set replaces the state and persists it. It reports false without writing
// when st equals the current state. A nil st clears.
func (k *Keeper) Set(ctx context.Context, st *models.AuthState) (bool, error) {
	if st == nil {
		k.mu.Lock()
		had := k.current != nil
		k.mu.Unlock()
		return had, k.Clear(ctx)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.current.Equal(st) {
		return false, nil
	}

	blob, err := k.encode(st)
	if err != nil {
		return false, err
	}
	if err := k.store.SaveState(ctx, k.namespace, k.key, blob); err != nil {
		return false, fmt.Errorf("failed to save auth state: %w", err)
	}

	cp := *st
	k.current = &cp
	return true, nil
}

// Clear removes the persisted entry and forgets the in-memory state.
func (k *Keeper) Clear(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.store.DeleteState(ctx, k.namespace, k.key); err != nil {
		return fmt.Errorf("failed to clear auth state: %w", err)
	}
	k.current = nil
	return nil
}

func (k *Keeper) additionalData() []byte {
	return []byte(k.namespace + "/" + k.key)
}

func (k *Keeper) encode(st *models.AuthState) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal auth state: %w", err)
	}
	if k.aead == nil {
		return data, nil
	}

	nonce := make([]byte, k.aead.NonceSize(), k.aead.NonceSize()+len(data)+k.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %v", models.ErrRandomGeneration, err)
	}
	return k.aead.Seal(nonce, nonce, data, k.additionalData()), nil
}

func (k *Keeper) decode(blob []byte) (*models.AuthState, error) {
	data := blob
	if k.aead != nil {
		if len(blob) < k.aead.NonceSize() {
			return nil, errors.New("sealed state is truncated")
		}
		nonce, sealed := blob[:k.aead.NonceSize()], blob[k.aead.NonceSize():]
		var err error
		data, err = k.aead.Open(nil, nonce, sealed, k.additionalData())
		if err != nil {
			return nil, fmt.Errorf("failed to open sealed state: %w", err)
		}
	}

	var st models.AuthState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth state: %w", err)
	}
	return &st, nil
}
