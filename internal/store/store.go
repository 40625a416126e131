package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xjtu-graphics/judgerd/internal/domain"
)

// Store is the Manager's state store: the Task queue and the Executor
// table (spec.md §3). A single struct spans both tables because the
// dispatcher's assignment step (§4.3 step 4) must mutate them atomically.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-migrated pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateTask inserts a new Task for judgmentID and returns it populated with
// its assigned id and creation time.
func (s *Store) CreateTask(ctx context.Context, judgmentID int64) (*domain.Task, error) {
	var t domain.Task
	t.JudgmentID = judgmentID
	err := s.pool.QueryRow(ctx,
		"INSERT INTO tasks (judgment_id) VALUES ($1) RETURNING id, judgment_id, created_at",
		judgmentID,
	).Scan(&t.ID, &t.JudgmentID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

// OldestTask returns the lowest-id Task, or domain.ErrNotFound if the queue
// is empty (spec.md §4.3 step 1).
func (s *Store) OldestTask(ctx context.Context) (*domain.Task, error) {
	var t domain.Task
	err := s.pool.QueryRow(ctx,
		"SELECT id, judgment_id, created_at FROM tasks ORDER BY id ASC LIMIT 1",
	).Scan(&t.ID, &t.JudgmentID, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("oldest task: %w", err)
	}
	return &t, nil
}

// DeleteTask removes a Task row by id.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// UpsertHeartbeat creates or updates the Executor row for ip. A new
// Executor defaults to idle=true (it has no active assignment); an existing
// row's idle bit is left untouched — only the heartbeat data and timestamp
// change, matching original_source/judger/manager/models.py's Executor
// model and manager/__init__.py's update_executor_status.
func (s *Store) UpsertHeartbeat(ctx context.Context, ip string, data domain.HeartbeatPayload) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal heartbeat payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO executors (ip, data, last_updated, idle)
		VALUES ($1, $2, now(), true)
		ON CONFLICT (ip) DO UPDATE SET data = EXCLUDED.data, last_updated = now()
	`, ip, raw)
	if err != nil {
		return fmt.Errorf("upsert executor %s: %w", ip, err)
	}
	return nil
}

// IdleExecutors returns all executors with idle=true, ordered by id
// ascending (spec.md §4.3 step 2's iteration order).
func (s *Store) IdleExecutors(ctx context.Context) ([]domain.Executor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ip, data, last_updated, idle FROM executors
		WHERE idle = true ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list idle executors: %w", err)
	}
	defer rows.Close()

	var out []domain.Executor
	for rows.Next() {
		e, err := scanExecutor(rows)
		if err != nil {
			slog.ErrorContext(ctx, "store: skipping unreadable executor row", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetExecutorByIP looks up an Executor by its unique IP, or
// domain.ErrNotFound.
func (s *Store) GetExecutorByIP(ctx context.Context, ip string) (*domain.Executor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, ip, data, last_updated, idle FROM executors WHERE ip = $1
	`, ip)
	e, err := scanExecutor(row)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get executor by ip %s: %w", ip, err)
	}
	return &e, nil
}

// DeleteExecutor removes an Executor row by id — the dispatcher's failure
// reaping (spec.md §4.3 step 4, §4.8 "failure reaping coupling").
func (s *Store) DeleteExecutor(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM executors WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete executor %d: %w", id, err)
	}
	return nil
}

// AssignTask atomically marks executorID idle=false and deletes taskID,
// the success branch of the dispatcher's assignment step (spec.md §4.3
// step 4).
func (s *Store) AssignTask(ctx context.Context, taskID, executorID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin assign tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, "UPDATE executors SET idle = false WHERE id = $1", executorID); err != nil {
		return fmt.Errorf("mark executor %d busy: %w", executorID, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM tasks WHERE id = $1", taskID); err != nil {
		return fmt.Errorf("delete assigned task %d: %w", taskID, err)
	}
	return tx.Commit(ctx)
}

// SetExecutorIdle marks the Executor with the given ip idle=true,
// returning domain.ErrNotFound if no row matches — used by the Manager's
// result sink (spec.md §4.1), which must do this *before* forwarding to the
// Web backend.
func (s *Store) SetExecutorIdle(ctx context.Context, ip string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE executors SET idle = true WHERE ip = $1", ip)
	if err != nil {
		return fmt.Errorf("set executor %s idle: %w", ip, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecutor(row rowScanner) (domain.Executor, error) {
	var e domain.Executor
	var raw []byte
	var lastUpdated time.Time
	if err := row.Scan(&e.ID, &e.IP, &raw, &lastUpdated, &e.Idle); err != nil {
		return domain.Executor{}, err
	}
	e.LastUpdated = lastUpdated
	if err := json.Unmarshal(raw, &e.Data); err != nil {
		return domain.Executor{}, fmt.Errorf("decode executor data: %w", err)
	}
	return e, nil
}
