package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier turns domain events into per-user notification records. Records
// are written by scheduled jobs, never inside the publishing request.
type Notifier struct {
	notifications *repository.Collection[models.Notification]
	users         *repository.Collection[models.User]
	jobs          domain.JobScheduler
	delay         time.Duration
	now           func() time.Time
	logger        *zerolog.Logger
}

func NewNotifier(store domain.Store, jobs domain.JobScheduler, delay time.Duration, logger *zerolog.Logger) *Notifier {
	return &Notifier{
		notifications: repository.NewCollection[models.Notification](store, models.CollectionNotifications),
		users:         repository.NewCollection[models.User](store, models.CollectionUsers),
		jobs:          jobs,
		delay:         delay,
		now:           time.Now,
		logger:        logger,
	}
}

// Attach subscribes the notifier to the events it reacts to.
func (n *Notifier) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventAppointmentCreated, n.onBooking)
	bus.Subscribe(events.EventAppointmentCancelled, n.onCancelled)
	bus.Subscribe(events.EventAppointmentCompleted, n.onCompleted)
	bus.Subscribe(events.EventWalletDebited, n.onPayout)
}

func (n *Notifier) onBooking(ev *events.Event) error {
	var p events.BookingPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return err
	}
	ref := p.SeriesID
	if ref == "" && len(p.AppointmentIDs) > 0 {
		ref = p.AppointmentIDs[0]
	}
	when := describeDates(p.Dates)
	n.enqueue(p.ProviderID, models.NotificationBookingCreated, ref,
		fmt.Sprintf("New booking for %s %s", p.ServiceName, when))
	n.enqueue(p.ClientID, models.NotificationBookingCreated, ref,
		fmt.Sprintf("Your %s booking is confirmed %s", p.ServiceName, when))
	return nil
}

func (n *Notifier) onCancelled(ev *events.Event) error {
	var p events.AppointmentEventPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return err
	}
	msg := fmt.Sprintf("%s on %s at %s was cancelled", p.ServiceName, p.Date, p.Time)
	for _, userID := range []string{p.ProviderID, p.ClientID} {
		if userID != p.ActorID {
			n.enqueue(userID, models.NotificationBookingCancelled, p.AppointmentID, msg)
		}
	}
	return nil
}

func (n *Notifier) onCompleted(ev *events.Event) error {
	var p events.AppointmentEventPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return err
	}
	n.enqueue(p.ProviderID, models.NotificationShiftCompleted, p.AppointmentID,
		fmt.Sprintf("Shift completed, %s added to your wallet", p.Earnings))
	n.enqueue(p.ClientID, models.NotificationShiftCompleted, p.AppointmentID,
		fmt.Sprintf("Your %s session on %s is complete", p.ServiceName, p.Date))
	return nil
}

func (n *Notifier) onPayout(ev *events.Event) error {
	var p events.WalletEventPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return err
	}
	n.enqueue(p.UserID, models.NotificationPayoutRequested, p.Transaction.ID,
		fmt.Sprintf("Withdrawal of %s is processing", p.Transaction.Amount))
	return nil
}

func describeDates(dates []string) string {
	switch len(dates) {
	case 0:
		return ""
	case 1:
		return "on " + dates[0]
	default:
		return fmt.Sprintf("for %d sessions starting %s", len(dates), dates[0])
	}
}

// enqueue schedules the write. A user deleted in the meantime turns the job
// into a no-op.
func (n *Notifier) enqueue(userID, kind, referenceID, message string) {
	if userID == "" {
		return
	}
	n.jobs.Schedule("user:"+userID, n.delay, "notification", func(ctx context.Context) error {
		if _, err := n.users.Get(ctx, userID); err != nil {
			return err
		}
		note := &models.Notification{
			ID:          uuid.NewString(),
			UserID:      userID,
			Kind:        kind,
			Message:     message,
			ReferenceID: referenceID,
			CreatedAt:   n.now().UTC(),
		}
		if err := n.notifications.Create(ctx, note.ID, note); err != nil {
			return fmt.Errorf("persist notification: %w", err)
		}
		n.logger.Debug().Str("user_id", userID).Str("kind", kind).Msg("notification stored")
		return nil
	})
}

// List returns a user's notifications, newest first.
func (n *Notifier) List(ctx context.Context, userID string) ([]*models.Notification, error) {
	if _, err := n.users.Get(ctx, userID); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	notes, err := n.notifications.List(ctx, func(m *models.Notification) bool { return m.UserID == userID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })
	return notes, nil
}
