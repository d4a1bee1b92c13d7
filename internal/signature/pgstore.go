package signature

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// defaultTable is the signature cache's durable table name.
const defaultTable = "thought_signatures"

// PostgresStore is the Postgres-backed durable L2 backend, grounded on
// internal/store/postgresstore.go's sql.Open("pgx", ...)+upsert idiom.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// PostgresStoreConfig configures a PostgresStore.
type PostgresStoreConfig struct {
	DSN   string
	Table string
}

// NewPostgresStore opens a connection and ensures the signature table
// exists.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("signature pgstore: DSN is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("signature pgstore: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("signature pgstore: ping database: %w", err)
	}

	s := &PostgresStore{db: db, table: table}
	if err = s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			signature TEXT NOT NULL,
			thought_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("signature pgstore: create table: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	query := fmt.Sprintf(`SELECT signature, thought_text, created_at FROM %s WHERE id = $1`, s.table)
	row := s.db.QueryRowContext(ctx, query, id)
	var e Entry
	if err := row.Scan(&e.Signature, &e.ThoughtText, &e.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("signature pgstore: select failed: %w", err)
	}
	return e, true, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, id string, e Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, signature, thought_text, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET signature = EXCLUDED.signature, thought_text = EXCLUDED.thought_text, created_at = EXCLUDED.created_at
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query, id, e.Signature, e.ThoughtText, e.Timestamp); err != nil {
		return fmt.Errorf("signature pgstore: upsert failed: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("signature pgstore: delete failed: %w", err)
	}
	return nil
}

// Size implements Store.
func (s *PostgresStore) Size(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("signature pgstore: count failed: %w", err)
	}
	return n, nil
}

// DeleteOldestFraction implements Store.
func (s *PostgresStore) DeleteOldestFraction(ctx context.Context, fraction float64) error {
	size, err := s.Size(ctx)
	if err != nil {
		return err
	}
	n := int(float64(size) * fraction)
	if n <= 0 {
		return nil
	}
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE id IN (
			SELECT id FROM %s ORDER BY created_at ASC LIMIT $1
		)
	`, s.table, s.table)
	if _, err = s.db.ExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("signature pgstore: oldest-fraction eviction failed: %w", err)
	}
	return nil
}

// DeleteExpired implements Store.
func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, cutoff); err != nil {
		return fmt.Errorf("signature pgstore: expire sweep failed: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
