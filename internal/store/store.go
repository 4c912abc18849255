package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/pkg/report"
	"github.com/xkilldash9x/scalpel-ui/pkg/wait"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store runs test-data queries against PostgreSQL and keeps run results.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for url and wraps it in a Store.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Exec runs a statement and returns the number of affected rows.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		s.log.Debug("Statement failed.", zap.String("sql", sql), zap.Error(err))
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueryValue scans the single value returned by sql. pgx.ErrNoRows is passed
// through wrapped.
func QueryValue[T any](ctx context.Context, s *Store, sql string, args ...any) (T, error) {
	var v T
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&v); err != nil {
		return v, fmt.Errorf("failed to query value: %w", err)
	}
	return v, nil
}

// QueryStrings returns the first column of every row as text.
func (s *Store) QueryStrings(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows: %w", err)
	}
	return values, nil
}

// rowExists is satisfied once sql returns at least one row. Query errors are
// transient.
func rowExists(sql string, args []any) wait.Condition[DBPool, bool] {
	return wait.Predicate(func(ctx context.Context, pool DBPool) (bool, error) {
		rows, err := pool.Query(ctx, sql, args...)
		if err != nil {
			return false, err
		}
		defer rows.Close()
		found := rows.Next()
		return found, rows.Err()
	})
}

// WaitForRow polls sql until it yields a row or timeout elapses.
func (s *Store) WaitForRow(ctx context.Context, timeout, interval time.Duration, sql string, args ...any) bool {
	ok := wait.ForTrue(ctx, s.pool, rowExists(sql, args), wait.Options{
		Timeout:     timeout,
		Interval:    interval,
		Description: "row",
		Logger:      s.log,
	})
	if !ok {
		s.log.Info("Row did not appear.", zap.String("sql", sql), zap.Duration("timeout", timeout))
	}
	return ok
}

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Name     string
	Status   string // one of the report.Status* values
	Duration time.Duration
	Failure  string
	HARPath  string
}

// Run is one invocation of the suite.
type Run struct {
	ID        string
	StartedAt time.Time
	Cases     []CaseResult
}

const sqlInsertRun = `
        INSERT INTO ui_test_runs (id, started_at, finished_at, total, failed)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            finished_at = EXCLUDED.finished_at,
            total = EXCLUDED.total,
            failed = EXCLUDED.failed;
    `

const sqlDeleteCases = `DELETE FROM ui_test_cases WHERE run_id = $1;`

var caseColumns = []string{"run_id", "name", "status", "duration_ms", "failure", "har_path"}

// SaveRun stores a run and its cases in a single transaction. Saving a run
// again replaces its cases.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	failed := 0
	for _, c := range run.Cases {
		if c.Status == report.StatusFailed {
			failed++
		}
	}
	if _, err := tx.Exec(ctx, sqlInsertRun, run.ID, run.StartedAt.UTC(), time.Now().UTC(), len(run.Cases), failed); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteCases, run.ID); err != nil {
		return fmt.Errorf("failed to clear cases of run %s: %w", run.ID, err)
	}

	if len(run.Cases) > 0 {
		rows := make([][]any, len(run.Cases))
		for i, c := range run.Cases {
			rows[i] = []any{run.ID, c.Name, c.Status, c.Duration.Milliseconds(), c.Failure, c.HARPath}
		}
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"ui_test_cases"}, caseColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy cases: %w", err)
		}
		if int(copied) != len(run.Cases) {
			return fmt.Errorf("mismatch in copied cases count: expected %d, got %d", len(run.Cases), copied)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Run saved.", zap.String("run_id", run.ID), zap.Int("cases", len(run.Cases)), zap.Int("failed", failed))
	return nil
}

// SchemaDDL creates the tables SaveRun writes to. It is idempotent.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS ui_test_runs (
    id TEXT PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    total INTEGER NOT NULL,
    failed INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ui_test_cases (
    run_id TEXT NOT NULL REFERENCES ui_test_runs (id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    duration_ms BIGINT NOT NULL,
    failure TEXT NOT NULL DEFAULT '',
    har_path TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS ui_test_cases_run_id_idx ON ui_test_cases (run_id);
`

// Migrate creates the result tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, SchemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.log.Info("Schema applied.")
	return nil
}
