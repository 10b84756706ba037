package domain

import (
	"context"
	"time"

	"carebook/internal/models"
)

// Record is one versioned entity in a named collection. Version starts at 1
// on create and increments on every successful write.
type Record struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Data       []byte    `json:"data"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is per-entity keyed storage with compare-and-swap writes.
//
// Put with expectedVersion 0 creates the record and fails with
// ErrVersionConflict if it already exists; any other expectedVersion must
// match the stored version. CreateBatch inserts all records or none.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Record, error)
	List(ctx context.Context, collection string) ([]*Record, error)
	Put(ctx context.Context, collection, id string, data []byte, expectedVersion int64) (int64, error)
	CreateBatch(ctx context.Context, collection string, records map[string][]byte) error
	Delete(ctx context.Context, collection, id string, expectedVersion int64) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// JobScheduler runs delayed work outside the caller's request. Jobs share an
// owner key so they can be cancelled together.
type JobScheduler interface {
	Schedule(owner string, delay time.Duration, name string, job func(ctx context.Context) error)
	Cancel(owner string) int
}

// Calendar answers blackout queries for one or more providers.
type Calendar interface {
	IsBlocked(providerID, date string) bool
}

type Ledger interface {
	Credit(ctx context.Context, userID string, amount models.Money, description, referenceID string) (*models.WalletTransaction, error)
	Withdraw(ctx context.Context, userID string, amount models.Money, payoutKey string) (*models.WalletTransaction, error)
	AddCredits(ctx context.Context, userID string, amount models.Money, method string) (*models.WalletTransaction, error)
	Wallet(ctx context.Context, userID string) (*models.Wallet, error)
	Reconcile(ctx context.Context, userID string) error
}

// LocationVerifier decides whether check-in evidence is close enough to the
// appointment's target.
type LocationVerifier interface {
	Verify(target, reported models.GeoPoint) (distanceMeters float64, verified bool, err error)
}
