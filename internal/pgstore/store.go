// Package pgstore implements runstore.Store on Postgres through the pgx
// database/sql driver.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/runstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS gridci_build_counters (
    job TEXT PRIMARY KEY,
    last_build INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS gridci_builds (
    job TEXT NOT NULL,
    build_number INTEGER NOT NULL,
    status TEXT NOT NULL,
    result JSONB NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (job, build_number)
);
`

// uniqueViolation is the Postgres SQLSTATE for a primary key conflict.
const uniqueViolation = "23505"

// Store is a Postgres backed runstore.Store.
type Store struct {
	db *sql.DB
}

var _ runstore.Store = (*Store)(nil)

// Open connects to Postgres and creates the tables if needed.
func Open(ctx context.Context, conn string) (*Store, error) {
	db, err := sql.Open("pgx", conn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NextBuildNumber allocates the next build number with an upsert.
func (s *Store) NextBuildNumber(ctx context.Context, job string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
INSERT INTO gridci_build_counters (job, last_build) VALUES ($1, 1)
ON CONFLICT (job) DO UPDATE SET last_build = gridci_build_counters.last_build + 1
RETURNING last_build`, job).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("allocate build number for %s: %w", job, err)
	}
	return n, nil
}

// Record inserts the result; a primary key conflict maps to
// runstore.ErrAlreadyRecorded.
func (s *Store) Record(ctx context.Context, result *model.RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO gridci_builds (job, build_number, status, result, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		result.Job,
		result.BuildNumber,
		string(result.Status),
		string(data),
		result.StartedAt,
		result.FinishedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s#%d", runstore.ErrAlreadyRecorded, result.Job, result.BuildNumber)
	}
	if err != nil {
		return fmt.Errorf("insert %s#%d: %w", result.Job, result.BuildNumber, err)
	}
	return nil
}

// Get reads one record.
func (s *Store) Get(ctx context.Context, job string, build int) (*model.RunResult, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM gridci_builds WHERE job=$1 AND build_number=$2`, job, build).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s#%d", runstore.ErrNotFound, job, build)
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// List reads a job's records, newest first.
func (s *Store) List(ctx context.Context, job string) ([]*model.RunResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM gridci_builds WHERE job=$1 ORDER BY build_number DESC`, job)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RunResult
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		r, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune applies a retention policy to a job inside one transaction.
func (s *Store) Prune(ctx context.Context, job string, retention model.Retention) ([]model.ArtifactReference, error) {
	history, err := s.List(ctx, job)
	if err != nil {
		return nil, err
	}
	plan := runstore.PlanRetention(history, retention)
	if plan.Empty() {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, b := range plan.Delete {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM gridci_builds WHERE job=$1 AND build_number=$2`, job, b); err != nil {
			return nil, fmt.Errorf("delete %s#%d: %w", job, b, err)
		}
	}
	for _, b := range plan.Strip {
		if _, err := tx.ExecContext(ctx,
			`UPDATE gridci_builds SET result = result - 'artifacts' WHERE job=$1 AND build_number=$2`, job, b); err != nil {
			return nil, fmt.Errorf("strip %s#%d: %w", job, b, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return plan.Released, nil
}

func decode(data []byte) (*model.RunResult, error) {
	var r model.RunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode run record: %w", err)
	}
	return &r, nil
}
