package repository

import (
	"context"
	"testing"

	"carebook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract checks the compare-and-swap semantics every backend shares.
func runStoreContract(t *testing.T, store domain.Store) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		v, err := store.Put(ctx, "appointments", "a1", []byte(`{"id":"a1"}`), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		rec, err := store.Get(ctx, "appointments", "a1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version)
		assert.JSONEq(t, `{"id":"a1"}`, string(rec.Data))
	})

	t.Run("CreateTwiceConflicts", func(t *testing.T) {
		_, err := store.Put(ctx, "appointments", "a1", []byte(`{}`), 0)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	t.Run("UpdateWithVersion", func(t *testing.T) {
		v, err := store.Put(ctx, "appointments", "a1", []byte(`{"id":"a1","n":2}`), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		_, err = store.Put(ctx, "appointments", "a1", []byte(`{}`), 1)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		_, err := store.Put(ctx, "appointments", "nope", []byte(`{}`), 3)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.Get(ctx, "appointments", "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("BatchAllOrNothing", func(t *testing.T) {
		err := store.CreateBatch(ctx, "appointments", map[string][]byte{
			"a1": []byte(`{}`),
			"a9": []byte(`{}`),
		})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		_, err = store.Get(ctx, "appointments", "a9")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, store.CreateBatch(ctx, "appointments", map[string][]byte{
			"b1": []byte(`{}`),
			"b2": []byte(`{}`),
		}))
	})

	t.Run("ListSortedByID", func(t *testing.T) {
		recs, err := store.List(ctx, "appointments")
		require.NoError(t, err)
		ids := make([]string, 0, len(recs))
		for _, r := range recs {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"a1", "b1", "b2"}, ids)

		empty, err := store.List(ctx, "tickets")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Delete", func(t *testing.T) {
		assert.ErrorIs(t, store.Delete(ctx, "appointments", "b1", 9), domain.ErrVersionConflict)
		require.NoError(t, store.Delete(ctx, "appointments", "b1", 1))
		assert.ErrorIs(t, store.Delete(ctx, "appointments", "b1", 0), domain.ErrNotFound)
	})
}
