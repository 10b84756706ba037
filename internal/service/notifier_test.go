package service

import (
	"context"
	"testing"
	"time"

	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupNotifier(t *testing.T) (*Notifier, *events.EventBus, *fakeJobs, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	seedUsers(t, store)
	jobs := &fakeJobs{}
	bus := events.NewEventBus()
	n := NewNotifier(store, jobs, 0, testLogger())
	n.Attach(bus)
	return n, bus, jobs, store
}

func TestNotifier_BookingNotifiesBothParties(t *testing.T) {
	n, bus, jobs, _ := setupNotifier(t)
	ctx := context.Background()

	require.NoError(t, bus.PublishJSON(events.EventAppointmentCreated, events.BookingPayload{
		SeriesID:       "s1",
		ProviderID:     "cg1",
		ClientID:       "cl1",
		ServiceName:    "Companionship",
		AppointmentIDs: []string{"a1", "a2"},
		Dates:          []string{"2024-01-01", "2024-01-08"},
	}))

	// Nothing lands until the jobs run.
	notes, err := n.List(ctx, "cg1")
	require.NoError(t, err)
	assert.Empty(t, notes)

	for _, err := range jobs.runAll(ctx) {
		require.NoError(t, err)
	}

	notes, err = n.List(ctx, "cg1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationBookingCreated, notes[0].Kind)
	assert.Equal(t, "s1", notes[0].ReferenceID)
	assert.Contains(t, notes[0].Message, "2 sessions starting 2024-01-01")

	notes, err = n.List(ctx, "cl1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestNotifier_CancelSkipsActor(t *testing.T) {
	n, bus, jobs, _ := setupNotifier(t)
	ctx := context.Background()

	require.NoError(t, bus.PublishJSON(events.EventAppointmentCancelled, events.AppointmentEventPayload{
		AppointmentID: "a1",
		ProviderID:    "cg1",
		ClientID:      "cl1",
		ServiceName:   "Companionship",
		Date:          "2024-01-01",
		Time:          "09:00",
		ActorID:       "cl1",
	}))
	require.Len(t, jobs.names(), 1)
	jobs.runAll(ctx)

	notes, err := n.List(ctx, "cg1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationBookingCancelled, notes[0].Kind)

	notes, err = n.List(ctx, "cl1")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestNotifier_CompletionAndPayout(t *testing.T) {
	n, bus, jobs, _ := setupNotifier(t)
	ctx := context.Background()

	require.NoError(t, bus.PublishJSON(events.EventAppointmentCompleted, events.AppointmentEventPayload{
		AppointmentID: "a1", ProviderID: "cg1", ClientID: "cl1", ServiceName: "Companionship", Date: "2024-01-01", Earnings: 17000,
	}))
	require.NoError(t, bus.PublishJSON(events.EventWalletDebited, events.WalletEventPayload{
		UserID:      "cg1",
		Transaction: models.WalletTransaction{ID: "tx1", Amount: 5000, Type: models.TxDebit},
	}))
	jobs.runAll(ctx)

	notes, err := n.List(ctx, "cg1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	var kinds []string
	for _, note := range notes {
		kinds = append(kinds, note.Kind)
	}
	assert.ElementsMatch(t, []string{models.NotificationShiftCompleted, models.NotificationPayoutRequested}, kinds)
}

func TestNotifier_MissingUserIsNoop(t *testing.T) {
	n, bus, jobs, store := setupNotifier(t)
	ctx := context.Background()

	require.NoError(t, bus.PublishJSON(events.EventWalletDebited, events.WalletEventPayload{
		UserID:      "cg1",
		Transaction: models.WalletTransaction{ID: "tx1", Amount: 5000},
	}))
	require.NoError(t, store.Delete(ctx, models.CollectionUsers, "cg1", 0))

	errs := jobs.runAll(ctx)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrNotFound)

	_, err := n.List(ctx, "cg1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	all, err := store.List(ctx, models.CollectionNotifications)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNotifier_UsesConfiguredDelay(t *testing.T) {
	store := repository.NewMemoryStore()
	seedUsers(t, store)
	jobs := &fakeJobs{}
	bus := events.NewEventBus()
	NewNotifier(store, jobs, 5*time.Second, testLogger()).Attach(bus)

	require.NoError(t, bus.PublishJSON(events.EventWalletDebited, events.WalletEventPayload{UserID: "cg1"}))
	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, 5*time.Second, jobs.jobs[0].delay)
	assert.Equal(t, "user:cg1", jobs.jobs[0].owner)
}
