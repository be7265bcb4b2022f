package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// ErrRunNotFound is returned by GetRun when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Step rows are bulk loaded, so the column order here must match stepRow.
var stepColumns = []string{"run_id", "position", "name", "success", "matched_candidate", "error", "duration_ms"}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS automation_runs (
        id           TEXT PRIMARY KEY,
        started_at   TIMESTAMPTZ NOT NULL,
        finished_at  TIMESTAMPTZ NOT NULL,
        status       TEXT NOT NULL,
        aborted_step TEXT NOT NULL DEFAULT '',
        error        TEXT NOT NULL DEFAULT '',
        result       JSONB
    );`,
	`CREATE TABLE IF NOT EXISTS automation_run_steps (
        run_id            TEXT NOT NULL REFERENCES automation_runs (id) ON DELETE CASCADE,
        position          INTEGER NOT NULL,
        name              TEXT NOT NULL,
        success           BOOLEAN NOT NULL,
        matched_candidate INTEGER,
        error             TEXT NOT NULL DEFAULT '',
        duration_ms       BIGINT NOT NULL,
        PRIMARY KEY (run_id, position)
    );`,
	`CREATE INDEX IF NOT EXISTS automation_runs_started_at_idx ON automation_runs (started_at DESC);`,
}

const (
	sqlInsertRun = `
        INSERT INTO automation_runs (id, started_at, finished_at, status, aborted_step, error, result)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            finished_at = EXCLUDED.finished_at,
            status = EXCLUDED.status,
            aborted_step = EXCLUDED.aborted_step,
            error = EXCLUDED.error,
            result = EXCLUDED.result;
    `
	sqlDeleteSteps = `DELETE FROM automation_run_steps WHERE run_id = $1;`
	sqlSelectRun   = `
        SELECT id, started_at, finished_at, status, aborted_step, error, result
        FROM automation_runs
        WHERE id = $1;
    `
	sqlSelectSteps = `
        SELECT name, success, COALESCE(matched_candidate, -1), error, duration_ms
        FROM automation_run_steps
        WHERE run_id = $1
        ORDER BY position ASC;
    `
	sqlListRuns = `
        SELECT id, started_at, finished_at, status, aborted_step, error, result
        FROM automation_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
)

// Store persists automation run history in PostgreSQL.
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

// EnsureSchema creates the run history tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// RecordRun writes a run and its step outcomes in one transaction. Recording the
// same run ID twice replaces the earlier record.
func (s *Store) RecordRun(ctx context.Context, run schemas.RunRecord) error {
	result, err := encodeResult(run.Result)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlInsertRun,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		string(run.Status),
		run.AbortedStep,
		run.Error,
		result,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec(ctx, sqlDeleteSteps, run.ID); err != nil {
		return fmt.Errorf("failed to clear steps for run %s: %w", run.ID, err)
	}

	if len(run.Steps) > 0 {
		if err := s.persistSteps(ctx, tx, run.ID, run.Steps); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Recorded run.", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
	return nil
}

func (s *Store) persistSteps(ctx context.Context, tx pgx.Tx, runID string, steps []schemas.StepRecord) error {
	rows := make([][]interface{}, len(steps))
	for i, st := range steps {
		rows[i] = stepRow(runID, i, st)
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"automation_run_steps"}, stepColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy steps: %w", err)
	}
	if int(copyCount) != len(steps) {
		return fmt.Errorf("mismatch in copied steps count: expected %d, got %d", len(steps), copyCount)
	}
	return nil
}

func stepRow(runID string, position int, st schemas.StepRecord) []interface{} {
	var matched interface{}
	if st.MatchedCandidate != nil {
		matched = int32(*st.MatchedCandidate)
	}
	return []interface{}{runID, int32(position), st.Name, st.Success, matched, st.Error, st.DurationMs}
}

// GetRun loads a single run with its steps in execution order.
func (s *Store) GetRun(ctx context.Context, id string) (*schemas.RunRecord, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, sqlSelectRun, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlSelectSteps, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st schemas.StepRecord
		var matched int
		if err := rows.Scan(&st.Name, &st.Success, &matched, &st.Error, &st.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		if matched >= 0 {
			st.MatchedCandidate = &matched
		}
		run.Steps = append(run.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return run, nil
}

// ListRecentRuns returns up to limit runs, newest first, without their steps.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error) {
	if limit <= 0 {
		return []schemas.RunRecord{}, nil
	}

	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]schemas.RunRecord, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*schemas.RunRecord, error) {
	var run schemas.RunRecord
	var status string
	var result []byte
	if err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &status, &run.AbortedStep, &run.Error, &result); err != nil {
		return nil, err
	}
	run.Status = schemas.RunStatus(status)
	run.Steps = []schemas.StepRecord{}

	if len(result) > 0 && string(result) != "null" {
		run.Result = &schemas.AutomationResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// Aborted and failed runs carry no result; the column stays NULL for them.
func encodeResult(result *schemas.AutomationResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run result: %w", err)
	}
	return data, nil
}
