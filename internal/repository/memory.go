package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carebook/internal/domain"
)

// MemoryStore keeps records in process memory. It is the fallback behind
// FailoverStore and the default store in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*domain.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]*domain.Record)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Record, 0, len(s.collections[collection]))
	for _, rec := range s.collections[collection] {
		out = append(out, cloneRecord(rec))
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, collection, id string, data []byte, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(collection)
	cur, exists := coll[id]
	switch {
	case expectedVersion == 0 && exists:
		return 0, fmt.Errorf("%s/%s already exists: %w", collection, id, domain.ErrVersionConflict)
	case expectedVersion != 0 && !exists:
		return 0, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	case exists && cur.Version != expectedVersion:
		return 0, fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, cur.Version, expectedVersion, domain.ErrVersionConflict)
	}

	next := expectedVersion + 1
	coll[id] = &domain.Record{
		Collection: collection,
		ID:         id,
		Data:       append([]byte(nil), data...),
		Version:    next,
		UpdatedAt:  time.Now(),
	}
	return next, nil
}

func (s *MemoryStore) CreateBatch(ctx context.Context, collection string, records map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(collection)
	for id := range records {
		if _, exists := coll[id]; exists {
			return fmt.Errorf("%s/%s already exists: %w", collection, id, domain.ErrVersionConflict)
		}
	}
	now := time.Now()
	for id, data := range records {
		coll[id] = &domain.Record{
			Collection: collection,
			ID:         id,
			Data:       append([]byte(nil), data...),
			Version:    1,
			UpdatedAt:  now,
		}
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if expectedVersion != 0 && cur.Version != expectedVersion {
		return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, cur.Version, expectedVersion, domain.ErrVersionConflict)
	}
	delete(s.collections[collection], id)
	return nil
}

// Mirror stores rec exactly as given, keeping its version. FailoverStore uses
// it to keep the fallback warm while the primary is healthy.
func (s *MemoryStore) Mirror(rec *domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(rec.Collection)[rec.ID] = cloneRecord(rec)
}

// Forget drops a mirrored record.
func (s *MemoryStore) Forget(collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
}

func (s *MemoryStore) collection(name string) map[string]*domain.Record {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string]*domain.Record)
		s.collections[name] = coll
	}
	return coll
}

func cloneRecord(rec *domain.Record) *domain.Record {
	cp := *rec
	cp.Data = append([]byte(nil), rec.Data...)
	return &cp
}
