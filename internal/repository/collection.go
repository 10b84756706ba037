package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"carebook/internal/domain"
)

// ErrSkipWrite tells Collection.Update that the mutator made no change.
var ErrSkipWrite = errors.New("skip write")

const defaultUpdateAttempts = 5

type versioned interface {
	SetVersion(v int64)
}

// Collection is a typed view over one store collection. Update runs a
// read-modify-write loop on a single record and retries on version conflicts.
type Collection[T any] struct {
	store    domain.Store
	name     string
	attempts int
}

func NewCollection[T any](store domain.Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name, attempts: defaultUpdateAttempts}
}

// WithAttempts returns a copy that tries a conflicting update n times.
func (c *Collection[T]) WithAttempts(n int) *Collection[T] {
	cp := *c
	if n > 0 {
		cp.attempts = n
	}
	return &cp
}

func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) decode(rec *domain.Record) (*T, error) {
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", c.name, rec.ID, err)
	}
	if vv, ok := any(&v).(versioned); ok {
		vv.SetVersion(rec.Version)
	}
	return &v, nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	v, _, err := c.get(ctx, id)
	return v, err
}

func (c *Collection[T]) get(ctx context.Context, id string) (*T, int64, error) {
	rec, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return nil, 0, err
	}
	v, err := c.decode(rec)
	if err != nil {
		return nil, 0, err
	}
	return v, rec.Version, nil
}

// List returns every record whose decoded value passes keep (nil keeps all).
func (c *Collection[T]) List(ctx context.Context, keep func(*T) bool) ([]*T, error) {
	recs, err := c.store.List(ctx, c.name)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		v, err := c.decode(rec)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *Collection[T]) Create(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c.name, id, err)
	}
	version, err := c.store.Put(ctx, c.name, id, data, 0)
	if err != nil {
		return err
	}
	if vv, ok := any(v).(versioned); ok {
		vv.SetVersion(version)
	}
	return nil
}

// CreateBatch persists all values or none.
func (c *Collection[T]) CreateBatch(ctx context.Context, values map[string]*T) error {
	encoded := make(map[string][]byte, len(values))
	for id, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", c.name, id, err)
		}
		encoded[id] = data
	}
	if err := c.store.CreateBatch(ctx, c.name, encoded); err != nil {
		return err
	}
	for _, v := range values {
		if vv, ok := any(v).(versioned); ok {
			vv.SetVersion(1)
		}
	}
	return nil
}

// Update loads id, applies mutate and writes it back if the stored version
// has not moved. A conflict reloads and reapplies mutate.
func (c *Collection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (*T, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		v, version, err := c.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(v); err != nil {
			if errors.Is(err, ErrSkipWrite) {
				return v, nil
			}
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", c.name, id, err)
		}
		next, err := c.store.Put(ctx, c.name, id, data, version)
		if err == nil {
			if vv, ok := any(v).(versioned); ok {
				vv.SetVersion(next)
			}
			return v, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("update %s/%s gave up after %d attempts: %w", c.name, id, c.attempts, lastErr)
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id, 0)
}

func sortRecords(recs []*domain.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
