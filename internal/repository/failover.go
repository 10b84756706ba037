package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"carebook/internal/domain"
	"carebook/internal/metrics"

	"github.com/rs/zerolog"
)

// FailoverStore sends every call to the primary store until it fails with a
// persistence error, then serves from the in-memory fallback and retries the
// primary once per recovery interval.
type FailoverStore struct {
	primary          domain.Store
	fallback         *MemoryStore
	logger           *zerolog.Logger
	recoveryInterval time.Duration
	isDown           atomic.Bool
	lastCheck        atomic.Int64
}

func NewFailoverStore(primary domain.Store, fallback *MemoryStore, recoveryInterval time.Duration, logger *zerolog.Logger) *FailoverStore {
	if recoveryInterval <= 0 {
		recoveryInterval = time.Minute
	}
	return &FailoverStore{
		primary:          primary,
		fallback:         fallback,
		logger:           logger,
		recoveryInterval: recoveryInterval,
	}
}

// Degraded reports whether requests are currently served from memory.
func (s *FailoverStore) Degraded() bool {
	return s.isDown.Load()
}

// usePrimary reports whether the next call should try the primary store.
func (s *FailoverStore) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	last := time.Unix(0, s.lastCheck.Load())
	return time.Since(last) > s.recoveryInterval
}

// handle classifies a primary error. Success and domain outcomes both mean
// the primary answered, so they clear the degraded flag and pass through;
// anything else marks the primary down and returns false so the caller
// falls back.
func (s *FailoverStore) handle(op string, err error) bool {
	if err == nil || isDomainError(err) {
		if s.isDown.CompareAndSwap(true, false) {
			s.logger.Info().Str("op", op).Msg("primary store recovered")
			metrics.SetStoreDegraded(false)
		}
		return true
	}
	s.logger.Error().Err(err).Str("op", op).Msg("primary store failed, degrading to in-memory store")
	s.isDown.Store(true)
	s.lastCheck.Store(time.Now().UnixNano())
	metrics.SetStoreDegraded(true)
	return false
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrVersionConflict) ||
		errors.Is(err, domain.ErrValidation)
}

func (s *FailoverStore) Get(ctx context.Context, collection, id string) (*domain.Record, error) {
	if s.usePrimary() {
		rec, err := s.primary.Get(ctx, collection, id)
		if s.handle("get", err) {
			if err == nil {
				s.fallback.Mirror(rec)
			}
			return rec, err
		}
	}
	return s.fallback.Get(ctx, collection, id)
}

func (s *FailoverStore) List(ctx context.Context, collection string) ([]*domain.Record, error) {
	if s.usePrimary() {
		recs, err := s.primary.List(ctx, collection)
		if s.handle("list", err) {
			for _, rec := range recs {
				s.fallback.Mirror(rec)
			}
			return recs, err
		}
	}
	return s.fallback.List(ctx, collection)
}

func (s *FailoverStore) Put(ctx context.Context, collection, id string, data []byte, expectedVersion int64) (int64, error) {
	if s.usePrimary() {
		version, err := s.primary.Put(ctx, collection, id, data, expectedVersion)
		if s.handle("put", err) {
			if err == nil {
				s.fallback.Mirror(&domain.Record{
					Collection: collection,
					ID:         id,
					Data:       data,
					Version:    version,
					UpdatedAt:  time.Now(),
				})
			}
			return version, err
		}
	}
	return s.fallback.Put(ctx, collection, id, data, expectedVersion)
}

func (s *FailoverStore) CreateBatch(ctx context.Context, collection string, records map[string][]byte) error {
	if s.usePrimary() {
		err := s.primary.CreateBatch(ctx, collection, records)
		if s.handle("create_batch", err) {
			if err == nil {
				now := time.Now()
				for id, data := range records {
					s.fallback.Mirror(&domain.Record{Collection: collection, ID: id, Data: data, Version: 1, UpdatedAt: now})
				}
			}
			return err
		}
	}
	return s.fallback.CreateBatch(ctx, collection, records)
}

func (s *FailoverStore) Delete(ctx context.Context, collection, id string, expectedVersion int64) error {
	if s.usePrimary() {
		err := s.primary.Delete(ctx, collection, id, expectedVersion)
		if s.handle("delete", err) {
			if err == nil {
				s.fallback.Forget(collection, id)
			}
			return err
		}
	}
	return s.fallback.Delete(ctx, collection, id, expectedVersion)
}
