// Package dispatcher implements the Manager's dispatch loop: every tick it
// takes the oldest queued Task, finds the first alive idle Executor (ordered
// by ID), and hands the task off over HTTP. Grounded on
// original_source/judger/manager/distribute.py, restructured as a
// Start/Stop background goroutine in the shape of internal/scheduler (teacher).
package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xjtu-graphics/judgerd/internal/domain"
)

// defaultInterval matches distribute.py's 5-second poll.
const defaultInterval = 5 * time.Second

// dispatchTimeout bounds the POST to the chosen executor.
const dispatchTimeout = 5 * time.Second

// Store is the subset of *store.Store the dispatcher needs.
type Store interface {
	OldestTask(ctx context.Context) (*domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	IdleExecutors(ctx context.Context) ([]domain.Executor, error)
	AssignTask(ctx context.Context, taskID, executorID int64) error
	DeleteExecutor(ctx context.Context, id int64) error
}

// Dispatcher runs the dispatch loop as a background goroutine.
type Dispatcher struct {
	store        Store
	executorPort int
	interval     time.Duration
	httpClient   *http.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Dispatcher. executorPort is the port every Executor's HTTP
// face listens on (spec.md §6.4 EXECUTOR_PORT). interval is the poll period;
// pass 0 to use the default 5 seconds.
func New(store Store, executorPort int, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Dispatcher{
		store:        store,
		executorPort: executorPort,
		interval:     interval,
		httpClient:   &http.Client{Timeout: dispatchTimeout},
	}
}

// Start begins the background dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.tick(ctx)
			}
		}
	}()
}

// Stop cancels the background goroutine and waits for it to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.done != nil {
		<-d.done
	}
}

// tick performs at most one dispatch: oldest task, first alive idle
// executor, hand off. Any failure leaves the task queued for the next tick.
func (d *Dispatcher) tick(ctx context.Context) {
	task, err := d.store.OldestTask(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.ErrorContext(ctx, "dispatcher: fetch oldest task failed", "error", err)
		}
		return
	}

	idle, err := d.store.IdleExecutors(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "dispatcher: list idle executors failed", "error", err)
		return
	}

	var chosen *domain.Executor
	for i := range idle {
		if idle[i].Data.IsAlive {
			chosen = &idle[i]
			break
		}
	}
	if chosen == nil {
		slog.WarnContext(ctx, "dispatcher: no alive executor node")
		return
	}

	if err := d.send(ctx, chosen.IP, task.JudgmentID); err != nil {
		slog.WarnContext(ctx, "dispatcher: executor request failed, reaping",
			"executor_id", chosen.ID, "executor_ip", chosen.IP, "error", err)
		if derr := d.store.DeleteExecutor(ctx, chosen.ID); derr != nil {
			slog.ErrorContext(ctx, "dispatcher: reap executor failed", "executor_id", chosen.ID, "error", derr)
		}
		return
	}

	if err := d.store.AssignTask(ctx, task.ID, chosen.ID); err != nil {
		slog.ErrorContext(ctx, "dispatcher: assign task failed", "task_id", task.ID, "executor_id", chosen.ID, "error", err)
		return
	}

	slog.InfoContext(ctx, "dispatcher: task assigned",
		"judgment_id", task.JudgmentID, "executor_id", chosen.ID, "executor_ip", chosen.IP)
}

// send POSTs the judgment intake request to the chosen executor, returning
// an error unless the executor answers 202 Accepted.
func (d *Dispatcher) send(ctx context.Context, executorIP string, judgmentID int64) error {
	url := fmt.Sprintf("http://%s:%d/api/judge/%d", executorIP, d.executorPort, judgmentID)

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("executor responded %d", resp.StatusCode)
	}
	return nil
}
