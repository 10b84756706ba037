package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"carebook/internal/config"
	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/models"
	"carebook/internal/repository"
	"carebook/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEffects = config.EffectsConfig{
	ReadReceiptDelay: 2 * time.Second,
	AutoReplyDelay:   6 * time.Second,
}

func setupMessaging(t *testing.T, jobs domain.JobScheduler) (*MessagingService, *events.EventBus) {
	t.Helper()
	store := repository.NewMemoryStore()
	seedUsers(t, store)
	bus := events.NewEventBus()
	return NewMessagingService(store, jobs, bus, testEffects, "I'll get back to you shortly.", testLogger()), bus
}

func TestStartConversation(t *testing.T) {
	svc, _ := setupMessaging(t, &fakeJobs{})
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, "cl1", "cg1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cl1", "cg1"}, conv.Participants)

	same, err := svc.StartConversation(ctx, "cg1", "cl1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, same.ID)

	_, err = svc.StartConversation(ctx, "cl1", "cl1")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.StartConversation(ctx, "cl1", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	convs, err := svc.ListConversations(ctx, "cg1")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestSendMessage_ReadReceiptAndAutoReply(t *testing.T) {
	jobs := &fakeJobs{}
	svc, bus := setupMessaging(t, jobs)
	ctx := context.Background()

	var sent []events.ConversationEventPayload
	bus.Subscribe(events.EventMessageSent, func(ev *events.Event) error {
		var p events.ConversationEventPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &p))
		sent = append(sent, p)
		return nil
	})

	conv, err := svc.StartConversation(ctx, "cl1", "cg1")
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, conv.ID, "cl1", "Can we move Tuesday?")
	require.NoError(t, err)
	assert.False(t, msg.Read)
	assert.Equal(t, []string{"read_receipt", "auto_reply"}, jobs.names())
	assert.Equal(t, testEffects.ReadReceiptDelay, jobs.jobs[0].delay)
	assert.Equal(t, testEffects.AutoReplyDelay, jobs.jobs[1].delay)
	require.Len(t, sent, 1)
	assert.Equal(t, msg.ID, sent[0].MessageID)

	// The response reflects only the primary write.
	stored, err := svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
	assert.False(t, stored.Messages[0].Read)

	for _, err := range jobs.runAll(ctx) {
		require.NoError(t, err)
	}

	stored, err = svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.True(t, stored.Messages[0].Read)
	assert.Equal(t, "cg1", stored.Messages[1].SenderID)
	assert.Equal(t, "I'll get back to you shortly.", stored.Messages[1].Text)
}

func TestSendMessage_Validation(t *testing.T) {
	svc, _ := setupMessaging(t, &fakeJobs{})
	ctx := context.Background()
	conv, err := svc.StartConversation(ctx, "cl1", "cg1")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conv.ID, "cl1", "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.SendMessage(ctx, conv.ID, "stranger", "hello")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.SendMessage(ctx, "missing", "cl1", "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteConversation_PendingJobsBecomeNoops(t *testing.T) {
	jobs := &fakeJobs{}
	svc, _ := setupMessaging(t, jobs)
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, "cl1", "cg1")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, conv.ID, "cl1", "hello")
	require.NoError(t, err)

	// Capture the queued jobs as if their timers had already fired.
	pending := append([]fakeJob(nil), jobs.jobs...)

	require.NoError(t, svc.DeleteConversation(ctx, conv.ID, "cl1"))
	assert.Empty(t, jobs.names())

	for _, j := range pending {
		assert.ErrorIs(t, j.run(ctx), domain.ErrNotFound)
	}

	_, err = svc.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteConversation(ctx, conv.ID, "cl1"), domain.ErrNotFound)
}

func TestDeleteConversation_CancelsScheduledJobs(t *testing.T) {
	scheduler := worker.NewScheduler(worker.RetryPolicy{MaxRetries: 1, InitialDelay: 10 * time.Millisecond}, nil, "", testLogger())
	defer scheduler.Stop()

	store := repository.NewMemoryStore()
	seedUsers(t, store)
	svc := NewMessagingService(store, scheduler, nil, config.EffectsConfig{
		ReadReceiptDelay: 50 * time.Millisecond,
		AutoReplyDelay:   80 * time.Millisecond,
	}, "auto", testLogger())
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, "cl1", "cg1")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, conv.ID, "cl1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, scheduler.Pending())

	require.NoError(t, svc.DeleteConversation(ctx, conv.ID, ""))
	assert.Equal(t, 0, scheduler.Pending())

	// Recreating a record under the old id must not be touched by stale jobs.
	convs := repository.NewCollection[models.Conversation](store, models.CollectionConversations)
	require.NoError(t, convs.Create(ctx, conv.ID, &models.Conversation{ID: conv.ID, Participants: []string{"cl1", "cg1"}}))

	time.Sleep(150 * time.Millisecond)
	again, err := convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Messages)
	assert.Equal(t, int64(1), again.Version)
}

func TestCreateTicket(t *testing.T) {
	svc, _ := setupMessaging(t, &fakeJobs{})
	ctx := context.Background()

	ticket, err := svc.CreateTicket(ctx, "cl1", " Billing question ", "Charged twice?")
	require.NoError(t, err)
	assert.Equal(t, "Billing question", ticket.Subject)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)

	_, err = svc.CreateTicket(ctx, "cl1", "", "body")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.CreateTicket(ctx, "ghost", "Help", "body")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
