package repository

import (
	"context"
	"testing"

	"carebook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte(`{"a":1}`)
	_, err := store.Put(ctx, "users", "u1", data, 0)
	require.NoError(t, err)
	data[2] = 'x'

	rec, err := store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(rec.Data))

	rec.Data[2] = 'y'
	again, _ := store.Get(ctx, "users", "u1")
	assert.Equal(t, `{"a":1}`, string(again.Data))
}

func TestMemoryStore_MirrorAndForget(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Mirror(&domain.Record{Collection: "users", ID: "u1", Data: []byte(`{}`), Version: 7})
	rec, err := store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Version)

	v, err := store.Put(ctx, "users", "u1", []byte(`{}`), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	store.Forget("users", "u1")
	_, err = store.Get(ctx, "users", "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
