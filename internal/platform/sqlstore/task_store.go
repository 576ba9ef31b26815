package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adat-tool/adat-api/internal/platform/logger"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/adat-tool/adat-api/internal/task"
	"github.com/google/uuid"
)

const taskColumns = `id, type, session_id, payload, status, result, error_message, attempts,
	worker_id, claim_token, lease_expires_at, created_at, updated_at, finished_at, expires_at`

// TaskStore implements task.TaskStore on SQL.
type TaskStore struct {
	db      store.DBTX
	dialect Dialect
	logger  *slog.Logger
}

var _ task.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore over db.
func NewTaskStore(db *DB, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:      db.DB,
		dialect: db.Dialect,
		logger:  logger.With(slog.String("component", "task_store")),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Record, error) {
	var (
		rec                                     task.Record
		status                                  string
		payload, result                         []byte
		errMsg, workerID                        sql.NullString
		claimToken                              uuid.NullUUID
		lease, created, updated, finished, expy scanTime
	)
	err := row.Scan(
		&rec.ID, &rec.Type, &rec.SessionID, &payload, &status, &result, &errMsg, &rec.Attempts,
		&workerID, &claimToken, &lease, &created, &updated, &finished, &expy,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = task.Status(status)
	rec.Payload = payload
	if len(result) > 0 {
		rec.Result = result
	}
	rec.Error = errMsg.String
	rec.WorkerID = workerID.String
	if claimToken.Valid {
		rec.ClaimToken = claimToken.UUID
	}
	rec.LeaseExpiresAt = lease.ptr()
	rec.CreatedAt = created.Time
	rec.UpdatedAt = updated.Time
	rec.FinishedAt = finished.ptr()
	rec.ExpiresAt = expy.ptr()
	return &rec, nil
}

// Insert implements task.TaskStore.
func (s *TaskStore) Insert(ctx context.Context, rec *task.Record) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, session_id, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		rec.Type,
		rec.SessionID,
		string(rec.Payload),
		string(rec.Status),
		rec.Attempts,
		s.dialect.ts(rec.CreatedAt),
		s.dialect.ts(rec.UpdatedAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", task.ErrDuplicateTask, rec.ID)
		}
		log.Error("failed to insert task",
			"task_id", rec.ID,
			"task_type", rec.Type,
			"error", err)
		return fmt.Errorf("failed to insert task: %w", MapError(err))
	}
	return nil
}

// Get implements task.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	rec, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return rec, nil
}

// Claim implements task.TaskStore. The UPDATE targets the oldest claimable
// row; on PostgreSQL competing claimers skip rows locked by each other.
func (s *TaskStore) Claim(ctx context.Context, p task.ClaimParams) (*task.Record, error) {
	now := s.dialect.ts(p.Now)
	query := `
		UPDATE tasks
		SET status = 'PROCESSING',
			attempts = attempts + 1,
			worker_id = $1,
			claim_token = $2,
			lease_expires_at = $3,
			updated_at = $4
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = 'PENDING'
				OR (status = 'PROCESSING' AND lease_expires_at <= $4 AND attempts < $5)
			ORDER BY seq
			LIMIT 1` + s.dialect.claimLock() + `
		)
		RETURNING ` + taskColumns

	row := s.db.QueryRowContext(ctx, query,
		p.WorkerID,
		uuid.New(),
		s.dialect.ts(p.Now.Add(p.Lease)),
		now,
		p.MaxDeliveries,
	)
	rec, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", MapError(err))
	}
	return rec, nil
}

// Complete implements task.TaskStore.
func (s *TaskStore) Complete(ctx context.Context, p task.CompleteParams) error {
	var result, errMsg any
	if p.Outcome.Status == task.StatusSuccess {
		result = nullJSON(p.Outcome.Result)
	} else {
		errMsg = p.Outcome.Error
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1,
			result = $2,
			error_message = $3,
			updated_at = $4,
			finished_at = $4,
			expires_at = $5,
			lease_expires_at = NULL
		WHERE id = $6 AND claim_token = $7 AND status = 'PROCESSING'`,
		string(p.Outcome.Status),
		result,
		errMsg,
		s.dialect.ts(p.Now),
		s.dialect.ts(p.Now.Add(p.Retention)),
		p.ID,
		p.Token,
	)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", MapError(err))
	}

	if err := CheckRowsAffected(res, "task"); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, getErr := s.Get(ctx, p.ID); errors.Is(getErr, task.ErrTaskNotFound) {
			return task.ErrTaskNotFound
		}
		return task.ErrLeaseLost
	}
	return nil
}

// ExpireLeases implements task.TaskStore.
func (s *TaskStore) ExpireLeases(ctx context.Context, now time.Time, maxDeliveries int, retention time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'FAILURE',
			error_message = $1,
			result = NULL,
			updated_at = $2,
			finished_at = $2,
			expires_at = $3,
			lease_expires_at = NULL
		WHERE status = 'PROCESSING' AND lease_expires_at <= $2 AND attempts >= $4`,
		task.DetailWorkerLost,
		s.dialect.ts(now),
		s.dialect.ts(now.Add(retention)),
		maxDeliveries,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire task leases: %w", MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteExpired implements task.TaskStore.
func (s *TaskStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE status IN ('SUCCESS', 'FAILURE') AND expires_at <= $1`,
		s.dialect.ts(now),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
