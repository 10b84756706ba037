package availability

import (
	"context"
	"io"
	"testing"

	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarToggle(t *testing.T) {
	c := NewCalendar()
	assert.False(t, c.IsBlocked("p1", "2024-01-08"))

	blocked, err := c.Toggle("p1", "2024-01-08")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.True(t, c.IsBlocked("p1", "2024-01-08"))
	assert.False(t, c.IsBlocked("p2", "2024-01-08"))

	blocked, err = c.Toggle("p1", "2024-01-08")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.False(t, c.IsBlocked("p1", "2024-01-08"))
}

func TestCalendarRejectsNonCanonicalDates(t *testing.T) {
	c := NewCalendar()
	for _, d := range []string{"2024-1-8", "2024-01-08T10:00:00Z", "", "08.01.2024"} {
		_, err := c.Toggle("p1", d)
		assert.ErrorIs(t, err, domain.ErrValidation, d)
	}
}

func TestFromDates(t *testing.T) {
	c := FromDates("p1", []string{"2024-02-01", "garbage", "2024-01-15"})
	assert.Equal(t, []string{"2024-01-15", "2024-02-01"}, c.Dates("p1"))
	assert.Empty(t, c.Dates("p2"))
}

func TestServiceToggle(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	users := repository.NewCollection[models.User](store, models.CollectionUsers)
	require.NoError(t, users.Create(ctx, "p1", &models.User{ID: "p1", Role: &models.CaregiverProfile{}}))
	require.NoError(t, users.Create(ctx, "c1", &models.User{ID: "c1", Role: &models.ClientProfile{}}))

	bus := events.NewEventBus()
	var published []*events.Event
	bus.Subscribe(events.EventAvailabilityChanged, func(e *events.Event) error {
		published = append(published, e)
		return nil
	})

	logger := zerolog.New(io.Discard)
	svc := NewService(store, bus, &logger)

	dates, err := svc.Toggle(ctx, "p1", "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-08"}, dates)

	cal, err := svc.Calendar(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, cal.IsBlocked("p1", "2024-01-08"))

	dates, err = svc.Toggle(ctx, "p1", "2024-01-08")
	require.NoError(t, err)
	assert.Empty(t, dates)
	assert.Len(t, published, 2)

	_, err = svc.Toggle(ctx, "c1", "2024-01-08")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Toggle(ctx, "ghost", "2024-01-08")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Dates(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
