package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"carebook/internal/config"
	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MessagingService owns conversations between users and support tickets.
type MessagingService struct {
	conversations *repository.Collection[models.Conversation]
	tickets       *repository.Collection[models.Ticket]
	users         *repository.Collection[models.User]
	jobs          domain.JobScheduler
	eventBus      domain.EventPublisher
	effects       config.EffectsConfig
	autoReply     string
	now           func() time.Time
	logger        *zerolog.Logger
}

func NewMessagingService(
	store domain.Store,
	jobs domain.JobScheduler,
	eventBus domain.EventPublisher,
	effects config.EffectsConfig,
	autoReply string,
	logger *zerolog.Logger,
) *MessagingService {
	return &MessagingService{
		conversations: repository.NewCollection[models.Conversation](store, models.CollectionConversations),
		tickets:       repository.NewCollection[models.Ticket](store, models.CollectionTickets),
		users:         repository.NewCollection[models.User](store, models.CollectionUsers),
		jobs:          jobs,
		eventBus:      eventBus,
		effects:       effects,
		autoReply:     autoReply,
		now:           time.Now,
		logger:        logger,
	}
}

func conversationOwner(id string) string { return "conversation:" + id }

func isParticipant(c *models.Conversation, userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// StartConversation opens a conversation between two users, or returns the
// one they already share.
func (s *MessagingService) StartConversation(ctx context.Context, initiatorID, participantID string) (*models.Conversation, error) {
	if initiatorID == "" || participantID == "" {
		return nil, fmt.Errorf("%w: both participants are required", domain.ErrValidation)
	}
	if initiatorID == participantID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", domain.ErrValidation)
	}
	for _, id := range []string{initiatorID, participantID} {
		if _, err := s.users.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("user %s: %w", id, err)
		}
	}

	existing, err := s.conversations.List(ctx, func(c *models.Conversation) bool {
		return len(c.Participants) == 2 && isParticipant(c, initiatorID) && isParticipant(c, participantID)
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	conv := &models.Conversation{
		ID:           uuid.NewString(),
		Participants: []string{initiatorID, participantID},
		Messages:     []models.Message{},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.conversations.Create(ctx, conv.ID, conv); err != nil {
		return nil, fmt.Errorf("persist conversation: %w", err)
	}
	s.logger.Info().Str("conversation_id", conv.ID).Msg("conversation started")
	return conv, nil
}

func (s *MessagingService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.conversations.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations ordered by creation.
func (s *MessagingService) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	convs, err := s.conversations.List(ctx, func(c *models.Conversation) bool { return isParticipant(c, userID) })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].CreatedAt.Before(convs[j].CreatedAt) })
	return convs, nil
}

// SendMessage appends a message and schedules its read receipt and the
// counterpart's auto-reply. Both jobs belong to the conversation.
func (s *MessagingService) SendMessage(ctx context.Context, conversationID, senderID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", domain.ErrValidation)
	}

	msg := models.Message{
		ID:       uuid.NewString(),
		SenderID: senderID,
		Text:     text,
		SentAt:   s.now().UTC(),
	}
	conv, err := s.conversations.Update(ctx, conversationID, func(c *models.Conversation) error {
		if !isParticipant(c, senderID) {
			return fmt.Errorf("%w: %s is not in conversation %s", domain.ErrValidation, senderID, conversationID)
		}
		c.Messages = append(c.Messages, msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	owner := conversationOwner(conversationID)
	s.jobs.Schedule(owner, s.effects.ReadReceiptDelay, "read_receipt", s.markRead(conversationID, msg.ID))
	if s.autoReply != "" {
		if to := conv.Counterpart(senderID); to != "" {
			s.jobs.Schedule(owner, s.effects.AutoReplyDelay, "auto_reply", s.reply(conversationID, to))
		}
	}

	s.publish(events.EventMessageSent, events.ConversationEventPayload{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		SenderID:       senderID,
	})
	return &msg, nil
}

func (s *MessagingService) markRead(conversationID, messageID string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.conversations.Update(ctx, conversationID, func(c *models.Conversation) error {
			m := c.Message(messageID)
			if m == nil || m.Read {
				return repository.ErrSkipWrite
			}
			m.Read = true
			return nil
		})
		return err
	}
}

func (s *MessagingService) reply(conversationID, senderID string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.conversations.Update(ctx, conversationID, func(c *models.Conversation) error {
			if !isParticipant(c, senderID) {
				return repository.ErrSkipWrite
			}
			c.Messages = append(c.Messages, models.Message{
				ID:       uuid.NewString(),
				SenderID: senderID,
				Text:     s.autoReply,
				SentAt:   s.now().UTC(),
			})
			return nil
		})
		return err
	}
}

// DeleteConversation removes the conversation and cancels its pending jobs.
func (s *MessagingService) DeleteConversation(ctx context.Context, id, actorID string) error {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if actorID != "" && !isParticipant(conv, actorID) {
		return fmt.Errorf("%w: %s is not in conversation %s", domain.ErrValidation, actorID, id)
	}
	if err := s.conversations.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}

	cancelled := s.jobs.Cancel(conversationOwner(id))
	s.logger.Info().Str("conversation_id", id).Int("jobs_cancelled", cancelled).Msg("conversation deleted")
	s.publish(events.EventConversationDeleted, events.ConversationEventPayload{ConversationID: id, SenderID: actorID})
	return nil
}

func (s *MessagingService) CreateTicket(ctx context.Context, userID, subject, body string) (*models.Ticket, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	ticket := &models.Ticket{
		ID:        uuid.NewString(),
		UserID:    userID,
		Subject:   subject,
		Body:      strings.TrimSpace(body),
		Status:    models.TicketStatusOpen,
		CreatedAt: s.now().UTC(),
	}
	if err := s.tickets.Create(ctx, ticket.ID, ticket); err != nil {
		return nil, fmt.Errorf("persist ticket: %w", err)
	}
	return ticket, nil
}

func (s *MessagingService) publish(eventType string, payload events.ConversationEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
