package repository

import (
	"context"
	"errors"
	"fmt"

	"carebook/internal/domain"
	"carebook/internal/models"

	"github.com/rs/zerolog"
)

// NormalizeUsers runs models.NormalizeUser over every stored user and writes
// back the ones that changed. It is idempotent and meant to run once at
// startup, so consumers never have to handle a missing wallet.
func NormalizeUsers(ctx context.Context, store domain.Store, logger *zerolog.Logger) (int, error) {
	users := NewCollection[models.User](store, models.CollectionUsers)

	all, err := users.List(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	updated := 0
	for _, u := range all {
		if !models.NormalizeUser(u) {
			continue
		}
		_, err := users.Update(ctx, u.ID, func(cur *models.User) error {
			if !models.NormalizeUser(cur) {
				return ErrSkipWrite
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return updated, fmt.Errorf("normalize user %s: %w", u.ID, err)
		}
		updated++
	}

	if updated > 0 {
		logger.Info().Int("users", updated).Msg("legacy user records normalized")
	}
	return updated, nil
}
