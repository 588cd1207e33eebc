package authstate

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/andyleap/ndirp/internal/models"
	"github.com/andyleap/ndirp/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStorage struct {
	storage.StateStorage
	saves int
}

func (c *countingStorage) SaveState(ctx context.Context, namespace, key string, data []byte) error {
	c.saves++
	return c.StateStorage.SaveState(ctx, namespace, key, data)
}

func sampleState() *models.AuthState {
	return &models.AuthState{
		Provider:              "singpass",
		ClientID:              "client",
		RedirectURI:           "sg.gov.singpass.app://ndisample.gov.sg/rp/sample",
		Scope:                 "openid",
		LastAuthorizationResp: models.AuthorizationResponse{Code: "abc123", State: "st1"},
		UpdatedAt:             time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSetLoadClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	k, err := NewKeeper(store)
	require.NoError(t, err)

	changed, err := k.Set(ctx, sampleState())
	require.NoError(t, err)
	assert.True(t, changed)

	// A fresh keeper on the same store restores the state.
	k2, err := NewKeeper(store)
	require.NoError(t, err)
	st, err := k2.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Equal(sampleState()))
	assert.Equal(t, sampleState().UpdatedAt, st.UpdatedAt)

	require.NoError(t, k2.Clear(ctx))
	assert.Nil(t, k2.Current())

	blob, err := store.GetState(ctx, DefaultNamespace, DefaultKey)
	require.NoError(t, err)
	assert.Nil(t, blob)

	st, err = k.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Nil(t, k.Current())
}

func TestSetSkipsEqualState(t *testing.T) {
	ctx := context.Background()
	store := &countingStorage{StateStorage: storage.NewMemoryStorage()}
	k, err := NewKeeper(store)
	require.NoError(t, err)

	_, err = k.Set(ctx, sampleState())
	require.NoError(t, err)

	later := sampleState()
	later.UpdatedAt = later.UpdatedAt.Add(time.Hour)
	changed, err := k.Set(ctx, later)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, store.saves)

	other := sampleState()
	other.LastAuthorizationResp.Code = "def456"
	changed, err = k.Set(ctx, other)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, store.saves)

	changed, err = k.Set(ctx, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, k.Current())
}

func TestEncryptedState(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	key := bytes.Repeat([]byte{7}, 32)

	k, err := NewKeeper(store, WithEncryptionKey(key), WithNamespace("group.enc"))
	require.NoError(t, err)
	_, err = k.Set(ctx, sampleState())
	require.NoError(t, err)

	blob, err := store.GetState(ctx, "group.enc", DefaultKey)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "abc123")

	k2, err := NewKeeper(store, WithEncryptionKey(key), WithNamespace("group.enc"))
	require.NoError(t, err)
	st, err := k2.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "abc123", st.LastAuthorizationResp.Code)

	// Wrong key reads as no state.
	k3, err := NewKeeper(store, WithEncryptionKey(bytes.Repeat([]byte{8}, 32)), WithNamespace("group.enc"))
	require.NoError(t, err)
	st, err = k3.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestBadEncryptionKey(t *testing.T) {
	_, err := NewKeeper(storage.NewMemoryStorage(), WithEncryptionKey([]byte("short")))
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestLoadCorruptBlob(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.SaveState(ctx, DefaultNamespace, DefaultKey, []byte("{not json")))

	k, err := NewKeeper(store)
	require.NoError(t, err)
	st, err := k.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)
}
