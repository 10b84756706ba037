package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carebook/internal/domain"
	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/rs/zerolog"
)

type UserService struct {
	users  *repository.Collection[models.User]
	logger *zerolog.Logger
}

func NewUserService(store domain.Store, logger *zerolog.Logger) *UserService {
	return &UserService{
		users:  repository.NewCollection[models.User](store, models.CollectionUsers),
		logger: logger,
	}
}

// GetUser returns the user with its wallet and profile normalized. The
// stored record is not rewritten here.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	models.NormalizeUser(u)
	return u, nil
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		models.NormalizeUser(u)
	}
	return users, nil
}

// GetProviders lists caregivers offering serviceName, or all caregivers when
// serviceName is empty.
func (s *UserService) GetProviders(ctx context.Context, serviceName string) ([]*models.User, error) {
	return s.users.List(ctx, func(u *models.User) bool {
		p, ok := u.Role.(*models.CaregiverProfile)
		if !ok {
			return false
		}
		if serviceName == "" {
			return true
		}
		_, offered := p.Service(serviceName)
		return offered
	})
}

// SeedUsers creates the users that do not exist yet and leaves existing
// records untouched. It returns how many were created.
func (s *UserService) SeedUsers(ctx context.Context, users []*models.User) (int, error) {
	created := 0
	for _, u := range users {
		if strings.TrimSpace(u.ID) == "" {
			return created, fmt.Errorf("%w: seeded user %q has no id", domain.ErrValidation, u.Name)
		}
		if u.Role == nil {
			return created, fmt.Errorf("%w: seeded user %s has no role", domain.ErrValidation, u.ID)
		}
		models.NormalizeUser(u)
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}

		err := s.users.Create(ctx, u.ID, u)
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrVersionConflict):
			s.logger.Debug().Str("user_id", u.ID).Msg("seed user already exists")
		default:
			return created, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	s.logger.Info().Int("created", created).Int("total", len(users)).Msg("users seeded")
	return created, nil
}
