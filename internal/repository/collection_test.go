package repository

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"carebook/internal/domain"
	"carebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	appts := NewCollection[models.Appointment](NewMemoryStore(), models.CollectionAppointments)

	a := &models.Appointment{ID: "a1", Status: models.StatusConfirmed, Cost: 20000}
	require.NoError(t, appts.Create(ctx, a.ID, a))
	assert.Equal(t, int64(1), a.Version)

	got, err := appts.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.Money(20000), got.Cost)

	updated, err := appts.Update(ctx, "a1", func(a *models.Appointment) error {
		a.Status = models.StatusCancelled
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)
	assert.Equal(t, int64(2), updated.Version)

	same, err := appts.Update(ctx, "a1", func(*models.Appointment) error { return ErrSkipWrite })
	require.NoError(t, err)
	assert.Equal(t, int64(2), same.Version)

	_, err = appts.Update(ctx, "missing", func(*models.Appointment) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)

	boom := errors.New("rejected")
	_, err = appts.Update(ctx, "a1", func(*models.Appointment) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestCollection_ConcurrentUpdatesAllApply(t *testing.T) {
	ctx := context.Background()
	notes := NewCollection[models.Appointment](NewMemoryStore(), models.CollectionAppointments)
	notes.attempts = 100
	require.NoError(t, notes.Create(ctx, "a1", &models.Appointment{ID: "a1"}))

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := notes.Update(ctx, "a1", func(a *models.Appointment) error {
				a.Notes += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := notes.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, got.Notes, writers)
	assert.Equal(t, int64(writers+1), got.Version)
}

func TestCollection_ListFilter(t *testing.T) {
	ctx := context.Background()
	appts := NewCollection[models.Appointment](NewMemoryStore(), models.CollectionAppointments)
	require.NoError(t, appts.CreateBatch(ctx, map[string]*models.Appointment{
		"a1": {ID: "a1", ProviderID: "p1"},
		"a2": {ID: "a2", ProviderID: "p2"},
		"a3": {ID: "a3", ProviderID: "p1"},
	}))

	mine, err := appts.List(ctx, func(a *models.Appointment) bool { return a.ProviderID == "p1" })
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a1", mine[0].ID)
	assert.Equal(t, "a3", mine[1].ID)
}

func TestNormalizeUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	logger := zerolog.New(io.Discard)

	_, err := store.Put(ctx, models.CollectionUsers, "legacy",
		[]byte(`{"id":"legacy","name":"Old","role":"caregiver","profile":{"services":[]}}`), 0)
	require.NoError(t, err)

	users := NewCollection[models.User](store, models.CollectionUsers)
	require.NoError(t, users.Create(ctx, "fresh", &models.User{
		ID:     "fresh",
		Role:   &models.ClientProfile{},
		Wallet: &models.Wallet{Transactions: []models.WalletTransaction{}},
	}))

	n, err := NormalizeUsers(ctx, store, &logger)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	legacy, err := users.Get(ctx, "legacy")
	require.NoError(t, err)
	require.NotNil(t, legacy.Wallet)
	assert.Equal(t, models.Money(0), legacy.Wallet.Balance)
	assert.Equal(t, int64(2), legacy.Version)

	n, err = NormalizeUsers(ctx, store, &logger)
	require.NoError(t, err)
	assert.Zero(t, n)
}
