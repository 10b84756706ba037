package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"carebook/internal/domain"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the sqlite-backed record store. Every entity is one row keyed by
// (collection, id) with a version column used for compare-and-swap writes.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection keeps :memory: usable too.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

// Path returns the file the store was opened on.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS records (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            data BLOB NOT NULL,
            version INTEGER NOT NULL,
            updated_at DATETIME NOT NULL,
            PRIMARY KEY (collection, id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Get(ctx context.Context, collection, id string) (*domain.Record, error) {
	rec := domain.Record{Collection: collection, ID: id}
	err := db.QueryRowContext(ctx,
		`SELECT data, version, updated_at FROM records WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&rec.Data, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

func (db *DB) List(ctx context.Context, collection string) ([]*domain.Record, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, data, version, updated_at FROM records WHERE collection = ? ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec := domain.Record{Collection: collection}
		if err := rows.Scan(&rec.ID, &rec.Data, &rec.Version, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
	}
	return out, nil
}

func (db *DB) Put(ctx context.Context, collection, id string, data []byte, expectedVersion int64) (int64, error) {
	now := time.Now().UTC()
	if expectedVersion == 0 {
		_, err := db.ExecContext(ctx,
			`INSERT INTO records (collection, id, data, version, updated_at) VALUES (?, ?, ?, 1, ?)`,
			collection, id, data, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("%s/%s already exists: %w", collection, id, domain.ErrVersionConflict)
			}
			return 0, fmt.Errorf("failed to create record: %w", err)
		}
		return 1, nil
	}

	result, err := db.ExecContext(ctx,
		`UPDATE records SET data = ?, version = version + 1, updated_at = ?
         WHERE collection = ? AND id = ? AND version = ?`,
		data, now, collection, id, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return 0, db.missOrConflict(ctx, collection, id)
	}
	return expectedVersion + 1, nil
}

func (db *DB) CreateBatch(ctx context.Context, collection string, records map[string][]byte) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (collection, id, data, version, updated_at) VALUES (?, ?, ?, 1, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for id, data := range records {
		if _, err := stmt.ExecContext(ctx, collection, id, data, now); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%s/%s already exists: %w", collection, id, domain.ErrVersionConflict)
			}
			return fmt.Errorf("failed to insert %s/%s: %w", collection, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, collection, id string, expectedVersion int64) error {
	query := `DELETE FROM records WHERE collection = ? AND id = ?`
	args := []interface{}{collection, id}
	if expectedVersion != 0 {
		query += ` AND version = ?`
		args = append(args, expectedVersion)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return db.missOrConflict(ctx, collection, id)
	}
	return nil
}

func (db *DB) missOrConflict(ctx context.Context, collection, id string) error {
	var version int64
	err := db.QueryRowContext(ctx,
		`SELECT version FROM records WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	return fmt.Errorf("%s/%s now at version %d: %w", collection, id, version, domain.ErrVersionConflict)
}
