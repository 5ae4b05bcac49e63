package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Graphflow/internal/domain"
)

// RunRepo — репозиторий run'ов.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, workflow_id, status, inputs, options, result, error,
	started_at, finished_at, created_at`

// Create сохраняет run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	inputsJSON, optionsJSON, resultJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (id, workflow_id, status, inputs, options, result, error,
		                  started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		nullString(run.WorkflowID),
		run.Status,
		inputsJSON,
		optionsJSON,
		resultJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// RunFilter — параметры фильтрации run'ов.
type RunFilter struct {
	WorkflowID string
	Status     domain.RunStatus
	Limit      int
	Offset     int
}

// List возвращает run'ы с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.WorkflowID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListPending возвращает run'ы в статусе pending, старые первыми.
func (r *RunRepo) ListPending(ctx context.Context, limit int) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// Finish сохраняет итог run'а, который находится в running.
// Возвращает ErrInvalidState, если run уже переведён в финальный статус
// (отменён до захвата или признан потерянным оркестратором).
func (r *RunRepo) Finish(ctx context.Context, run *domain.Run) error {
	_, _, resultJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs
		SET status = $2, result = $3, error = $4, started_at = $5, finished_at = $6
		WHERE id = $1 AND status = 'running'
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		resultJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// CancelPending переводит run из pending в aborted.
// Возвращает ErrInvalidState, если run уже забрал воркер или он завершён.
func (r *RunRepo) CancelPending(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE runs
		SET status = $2, error = $3, finished_at = $4
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		nullString(run.Error),
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ClaimPending атомарно переводит run из pending в running.
// Возвращает ErrInvalidState, если run уже забрал другой воркер.
func (r *RunRepo) ClaimPending(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE runs
		SET status = 'running', started_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING started_at
	`
	err := r.pool.QueryRow(ctx, query, run.ID).Scan(&run.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInvalidState
	}
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	run.Status = domain.RunStatusRunning
	return nil
}

// FailStale переводит в failed run'ы, которые находятся в running дольше
// допустимого (воркер пропал, не сохранив результат), и возвращает их.
// Строки, заблокированные другой транзакцией, пропускаются.
func (r *RunRepo) FailStale(ctx context.Context, startedBefore time.Time, message string, limit int) ([]domain.Run, error) {
	query := `
		UPDATE runs
		SET status = 'failed', error = $2, finished_at = now()
		WHERE id IN (
			SELECT id FROM runs
			WHERE status = 'running' AND started_at < $1
			ORDER BY started_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + runColumns
	rows, err := r.pool.Query(ctx, query, startedBefore, message, limit)
	if err != nil {
		return nil, fmt.Errorf("fail stale runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// --- Helpers ---

func marshalRun(run *domain.Run) (inputs, options, result []byte, err error) {
	if run.Inputs != nil {
		if inputs, err = json.Marshal(run.Inputs); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal inputs: %w", err)
		}
	}
	if options, err = json.Marshal(run.Options); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal options: %w", err)
	}
	if run.Result != nil {
		if result, err = json.Marshal(run.Result); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal result: %w", err)
		}
	}
	return inputs, options, result, nil
}

func collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует строку (pgx.Row или pgx.Rows) в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var (
		workflowID  *string
		inputsJSON  []byte
		optionsJSON []byte
		resultJSON  []byte
		runError    *string
	)

	err := row.Scan(
		&run.ID,
		&workflowID,
		&run.Status,
		&inputsJSON,
		&optionsJSON,
		&resultJSON,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if workflowID != nil {
		run.WorkflowID = *workflowID
	}
	if runError != nil {
		run.Error = *runError
	}
	if inputsJSON != nil {
		if err := json.Unmarshal(inputsJSON, &run.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if optionsJSON != nil {
		if err := json.Unmarshal(optionsJSON, &run.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if resultJSON != nil {
		run.Result = &domain.ExecutionResponse{}
		if err := json.Unmarshal(resultJSON, run.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
