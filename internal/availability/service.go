package availability

import (
	"context"
	"errors"
	"fmt"

	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/rs/zerolog"
)

// ChangePayload is published when a provider toggles a date.
type ChangePayload struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	Blocked    bool   `json:"blocked"`
}

// Service keeps blackout dates in the caregiver's profile.
type Service struct {
	users     *repository.Collection[models.User]
	publisher domain.EventPublisher
	logger    *zerolog.Logger
}

func NewService(store domain.Store, publisher domain.EventPublisher, logger *zerolog.Logger) *Service {
	return &Service{
		users:     repository.NewCollection[models.User](store, models.CollectionUsers),
		publisher: publisher,
		logger:    logger,
	}
}

func caregiverProfile(u *models.User) (*models.CaregiverProfile, error) {
	switch p := u.Role.(type) {
	case *models.CaregiverProfile:
		return p, nil
	case *models.ClientProfile, *models.AdminProfile:
		return nil, fmt.Errorf("%w: user %s is a %s, not a caregiver", domain.ErrValidation, u.ID, models.RoleName(u.Role))
	default:
		return nil, fmt.Errorf("%w: user %s has no role", domain.ErrValidation, u.ID)
	}
}

// Calendar loads providerID's blackout set.
func (s *Service) Calendar(ctx context.Context, providerID string) (*Calendar, error) {
	u, err := s.users.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	profile, err := caregiverProfile(u)
	if err != nil {
		return nil, err
	}
	return FromDates(providerID, profile.BlockedDates), nil
}

func (s *Service) Dates(ctx context.Context, providerID string) ([]string, error) {
	cal, err := s.Calendar(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return cal.Dates(providerID), nil
}

// Toggle flips date in providerID's profile and returns the resulting set.
func (s *Service) Toggle(ctx context.Context, providerID, date string) ([]string, error) {
	if !models.ValidDay(date) {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", domain.ErrValidation, date)
	}

	var blocked bool
	var dates []string
	_, err := s.users.Update(ctx, providerID, func(u *models.User) error {
		profile, err := caregiverProfile(u)
		if err != nil {
			return err
		}
		cal := FromDates(providerID, profile.BlockedDates)
		if blocked, err = cal.Toggle(providerID, date); err != nil {
			return err
		}
		dates = cal.Dates(providerID)
		profile.BlockedDates = dates
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("provider %s: %w", providerID, err)
		}
		return nil, err
	}

	s.logger.Info().Str("provider_id", providerID).Str("date", date).Bool("blocked", blocked).Msg("availability toggled")
	if s.publisher != nil {
		if err := s.publisher.PublishJSON(events.EventAvailabilityChanged, ChangePayload{ProviderID: providerID, Date: date, Blocked: blocked}); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish availability event")
		}
	}
	return dates, nil
}
