package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const ddl = `
CREATE TABLE IF NOT EXISTS host_records (
	deployment  TEXT    NOT NULL,
	generation  INTEGER NOT NULL,
	address     TEXT    NOT NULL,
	login_user  TEXT    NOT NULL,
	instance_id TEXT    NOT NULL,
	created_at  TEXT    NOT NULL,
	PRIMARY KEY (deployment, generation)
);
`

var _ Registry = (*sqlite)(nil)

type sqlite struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) a sqlite-backed registry at path.
func NewSQLite(path string) (Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	opts := url.Values{}
	opts.Set("_journal_mode", "WAL")
	opts.Set("_busy_timeout", "5000")

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?%s", path, opts.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}

	// Serialize writers; two stages never publish concurrently but a
	// crashed run can leave a second process around.
	db.SetMaxOpenConns(1)

	return &sqlite{db: db}, nil
}

func (s *sqlite) Publish(ctx context.Context, deployment string, rec Record, instanceID string) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to begin registry transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var generation uint64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(generation), 0) FROM host_records WHERE deployment = ?`,
		deployment,
	).Scan(&generation)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read latest generation: %w", err)
	}

	entry := Entry{
		Record:     rec,
		InstanceID: instanceID,
		Generation: generation + 1,
		CreatedAt:  now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO host_records (deployment, generation, address, login_user, instance_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		deployment, entry.Generation, rec.Address, rec.User, instanceID,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to publish host record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("failed to commit host record: %w", err)
	}
	return entry, nil
}

func (s *sqlite) Resolve(ctx context.Context, deployment string) (Entry, error) {
	var entry Entry
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT generation, address, login_user, instance_id, created_at
		 FROM host_records WHERE deployment = ?
		 ORDER BY generation DESC LIMIT 1`,
		deployment,
	).Scan(&entry.Generation, &entry.Record.Address, &entry.Record.User, &entry.InstanceID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoRecord, deployment)
	} else if err != nil {
		return Entry{}, fmt.Errorf("failed to resolve host record: %w", err)
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Entry{}, fmt.Errorf("failed to parse host record timestamp: %w", err)
	}
	return entry, nil
}

func (s *sqlite) ResolveAt(ctx context.Context, deployment string, generation uint64) (Entry, error) {
	latest, err := s.Resolve(ctx, deployment)
	if err != nil {
		return Entry{}, err
	}
	if latest.Generation != generation {
		return Entry{}, fmt.Errorf(
			"%w: requested generation %d, latest is %d",
			ErrStaleRecord, generation, latest.Generation,
		)
	}
	return latest, nil
}

func (s *sqlite) Invalidate(ctx context.Context, deployment string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM host_records WHERE deployment = ?`, deployment,
	); err != nil {
		return fmt.Errorf("failed to invalidate host records: %w", err)
	}
	return nil
}

func (s *sqlite) Close() error {
	return s.db.Close()
}
