package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	identity   TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS credentials_active ON credentials(active);
`

// sqliteBackend stores credential records as JSON documents in one table.
// All access goes through a single connection so transactions serialize.
type sqliteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// openSQLite opens the database file at path and applies the schema.
func openSQLite(ctx context.Context, path string, logger *slog.Logger) (*sqliteBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	logger.Info("sqlite backend opened", "path", path)
	return &sqliteBackend{db: db, logger: logger}, nil
}

// Get retrieves the record for identity.
func (s *sqliteBackend) Get(ctx context.Context, identity string) (*domain.CredentialRecord, error) {
	rec, err := s.selectRecord(ctx, s.db, identity)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Update applies fn inside a transaction and upserts the result.
func (s *sqliteBackend) Update(ctx context.Context, identity string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cur, err := s.selectRecord(ctx, tx, identity)
	if err != nil {
		return err
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		return tx.Commit()
	}

	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (identity, document, active, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			document = excluded.document,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		identity, string(doc), next.Active, next.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	return tx.Commit()
}

// Delete removes the record for identity.
func (s *sqliteBackend) Delete(ctx context.Context, identity string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE identity = ?`, identity)
	return err
}

// ActiveIdentities returns identities with active records, sorted.
func (s *sqliteBackend) ActiveIdentities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity FROM credentials WHERE active = 1 ORDER BY identity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *sqliteBackend) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	s.logger.Info("sqlite backend closed")
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *sqliteBackend) selectRecord(ctx context.Context, q queryer, identity string) (*domain.CredentialRecord, error) {
	var doc string
	err := q.QueryRowContext(ctx,
		`SELECT document FROM credentials WHERE identity = ?`, identity).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &domain.CredentialRecord{}
	if err := json.Unmarshal([]byte(doc), rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
