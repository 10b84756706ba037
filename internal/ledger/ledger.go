// Package ledger owns user wallets: a running balance next to an append-only
// transaction log, both stored in the user record so they change together.
package ledger

import (
	"context"
	"fmt"
	"time"

	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/metrics"
	"carebook/internal/models"
	"carebook/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	users    *repository.Collection[models.User]
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

var _ domain.Ledger = (*Service)(nil)

func NewService(store domain.Store, eventBus domain.EventPublisher, logger *zerolog.Logger) *Service {
	return &Service{
		users:    repository.NewCollection[models.User](store, models.CollectionUsers),
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source used to stamp transactions.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Credit appends a completed credit. A non-empty referenceID may be credited
// only once per wallet.
func (s *Service) Credit(ctx context.Context, userID string, amount models.Money, description, referenceID string) (*models.WalletTransaction, error) {
	tx, balance, err := s.append(ctx, userID, amount, func(w *models.Wallet) (*models.WalletTransaction, error) {
		if w.HasReference(models.TxCredit, referenceID) {
			return nil, fmt.Errorf("%w: %s already credited to %s", domain.ErrDuplicateReference, referenceID, userID)
		}
		return &models.WalletTransaction{
			Description: description,
			Type:        models.TxCredit,
			Status:      models.TxStatusCompleted,
			ReferenceID: referenceID,
		}, nil
	})
	metrics.IncLedger("credit", err)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventWalletCredited, userID, tx, balance)
	return tx, nil
}

// Withdraw reserves amount for a payout: the balance drops immediately and
// the debit stays processing until the payout settles.
func (s *Service) Withdraw(ctx context.Context, userID string, amount models.Money, payoutKey string) (*models.WalletTransaction, error) {
	tx, balance, err := s.append(ctx, userID, amount, func(w *models.Wallet) (*models.WalletTransaction, error) {
		if amount > w.Balance {
			return nil, fmt.Errorf("%w: requested %s, available %s", domain.ErrInsufficientFunds, amount, w.Balance)
		}
		return &models.WalletTransaction{
			Description: "Payout request",
			Type:        models.TxDebit,
			Status:      models.TxStatusProcessing,
			Method:      payoutKey,
		}, nil
	})
	metrics.IncLedger("withdraw", err)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventWalletDebited, userID, tx, balance)
	return tx, nil
}

// AddCredits is the deposit path. Settlement is immediate.
func (s *Service) AddCredits(ctx context.Context, userID string, amount models.Money, method string) (*models.WalletTransaction, error) {
	tx, balance, err := s.append(ctx, userID, amount, func(*models.Wallet) (*models.WalletTransaction, error) {
		desc := "Added credits"
		if method != "" {
			desc += " via " + method
		}
		return &models.WalletTransaction{
			Description: desc,
			Type:        models.TxCredit,
			Status:      models.TxStatusCompleted,
			Method:      method,
		}, nil
	})
	metrics.IncLedger("add_credits", err)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventWalletCredited, userID, tx, balance)
	return tx, nil
}

func (s *Service) Wallet(ctx context.Context, userID string) (*models.Wallet, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	models.NormalizeUser(u)
	return u.Wallet, nil
}

// Reconcile replays the log and fails with domain.ErrLedgerMismatch when the
// stored balances disagree with it.
func (s *Service) Reconcile(ctx context.Context, userID string) error {
	w, err := s.Wallet(ctx, userID)
	if err != nil {
		return err
	}
	balance, pending := w.Expected()
	if balance != w.Balance || pending != w.PendingBalance {
		s.logger.Error().
			Str("user_id", userID).
			Str("balance", w.Balance.String()).
			Str("expected_balance", balance.String()).
			Str("pending", w.PendingBalance.String()).
			Str("expected_pending", pending.String()).
			Msg("wallet does not reconcile")
		metrics.IncLedger("reconcile", domain.ErrLedgerMismatch)
		return fmt.Errorf("%w: user %s balance %s, log says %s (pending %s vs %s)",
			domain.ErrLedgerMismatch, userID, w.Balance, balance, w.PendingBalance, pending)
	}
	metrics.IncLedger("reconcile", nil)
	return nil
}

// append builds a transaction with build and applies it to the wallet in a
// single version-checked write of the user record.
func (s *Service) append(
	ctx context.Context,
	userID string,
	amount models.Money,
	build func(w *models.Wallet) (*models.WalletTransaction, error),
) (*models.WalletTransaction, models.Money, error) {
	if amount <= 0 {
		return nil, 0, fmt.Errorf("%w: amount must be positive, got %s", domain.ErrValidation, amount)
	}
	if amount > models.MaxMoney {
		return nil, 0, fmt.Errorf("%w: amount %s exceeds the limit of %s", domain.ErrValidation, amount, models.MaxMoney)
	}

	var appended models.WalletTransaction
	u, err := s.users.Update(ctx, userID, func(u *models.User) error {
		models.NormalizeUser(u)
		tx, err := build(u.Wallet)
		if err != nil {
			return err
		}
		tx.ID = uuid.NewString()
		tx.UserID = userID
		tx.Date = s.now().UTC()
		tx.Amount = amount

		w := u.Wallet
		switch tx.Type {
		case models.TxCredit:
			if w.Balance > models.MaxMoney-amount {
				return fmt.Errorf("%w: balance %s plus %s exceeds the limit of %s",
					domain.ErrValidation, w.Balance, amount, models.MaxMoney)
			}
			w.Balance += amount
		case models.TxDebit:
			w.Balance -= amount
			if tx.Status == models.TxStatusProcessing {
				w.PendingBalance += amount
			}
		}
		w.Transactions = append(w.Transactions, *tx)
		appended = *tx
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("tx_id", appended.ID).
		Str("type", appended.Type).
		Str("amount", amount.String()).
		Str("balance", u.Wallet.Balance.String()).
		Msg("wallet transaction appended")
	return &appended, u.Wallet.Balance, nil
}

func (s *Service) publish(eventType, userID string, tx *models.WalletTransaction, balance models.Money) {
	if s.eventBus == nil {
		return
	}
	payload := events.WalletEventPayload{UserID: userID, Transaction: *tx, Balance: balance}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("user_id", userID).Msg("publish event error")
	}
}
