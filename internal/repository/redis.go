package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"carebook/internal/config"
	"carebook/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record in a hash (data, version, updated_at) and an
// index set per collection. Writes are WATCH/MULTI transactions on the record
// key, so a concurrent writer surfaces as ErrVersionConflict.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "carebook"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, collection, id)
}

func (s *RedisStore) indexKey(collection string) string {
	return fmt.Sprintf("%s:%s:index", s.prefix, collection)
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (*domain.Record, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil: %w", domain.ErrPersistence)
	}
	fields, err := s.client.HGetAll(ctx, s.recordKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get record from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return decodeHash(collection, id, fields)
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]*domain.Record, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil: %w", domain.ErrPersistence)
	}
	ids, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s index: %w", collection, err)
	}
	if len(ids) == 0 {
		return []*domain.Record{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.recordKey(collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", collection, err)
	}

	out := make([]*domain.Record, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeHash(collection, id, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, collection, id string, data []byte, expectedVersion int64) (int64, error) {
	if s.client == nil {
		return 0, fmt.Errorf("redis client is nil: %w", domain.ErrPersistence)
	}
	key := s.recordKey(collection, id)
	next := expectedVersion + 1

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := currentVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		switch {
		case expectedVersion == 0 && current != 0:
			return fmt.Errorf("%s/%s already exists: %w", collection, id, domain.ErrVersionConflict)
		case expectedVersion != 0 && current == 0:
			return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
		case current != expectedVersion:
			return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, current, expectedVersion, domain.ErrVersionConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", data, "version", next, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
			pipe.SAdd(ctx, s.indexKey(collection), id)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, fmt.Errorf("%s/%s changed concurrently: %w", collection, id, domain.ErrVersionConflict)
	}
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *RedisStore) CreateBatch(ctx context.Context, collection string, records map[string][]byte) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil: %w", domain.ErrPersistence)
	}
	keys := make([]string, 0, len(records))
	for id := range records {
		keys = append(keys, s.recordKey(collection, id))
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to check batch keys: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%d of %d %s records already exist: %w", n, len(keys), collection, domain.ErrVersionConflict)
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for id, data := range records {
				pipe.HSet(ctx, s.recordKey(collection, id), "data", data, "version", 1, "updated_at", now)
				pipe.SAdd(ctx, s.indexKey(collection), id)
			}
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%s batch raced with another writer: %w", collection, domain.ErrVersionConflict)
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string, expectedVersion int64) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil: %w", domain.ErrPersistence)
	}
	key := s.recordKey(collection, id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := currentVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current == 0 {
			return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
		}
		if expectedVersion != 0 && current != expectedVersion {
			return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, current, expectedVersion, domain.ErrVersionConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.indexKey(collection), id)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%s/%s changed concurrently: %w", collection, id, domain.ErrVersionConflict)
	}
	return err
}

func currentVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	raw, err := tx.HGet(ctx, key, "version").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read version: %w", err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt version %q: %w", raw, err)
	}
	return v, nil
}

func decodeHash(collection, id string, fields map[string]string) (*domain.Record, error) {
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt version for %s/%s: %w", collection, id, err)
	}
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])
	return &domain.Record{
		Collection: collection,
		ID:         id,
		Data:       []byte(fields["data"]),
		Version:    version,
		UpdatedAt:  updatedAt,
	}, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
