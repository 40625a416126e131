package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjtu-graphics/judgerd/internal/domain"
	"github.com/xjtu-graphics/judgerd/internal/store"
)

// testPool returns a pgxpool.Pool connected to the test database, skipping
// the test if DATABASE_URL is not set, and wiping state before returning.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := store.NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, store.Migrate(ctx, pool))
	return pool
}

func TestStore_CreateAndDispatchTask(t *testing.T) {
	pool := testPool(t)
	s := store.New(pool)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), task.JudgmentID)

	_, err = s.OldestTask(ctx)
	require.NoError(t, err)

	require.NoError(t, s.UpsertHeartbeat(ctx, "10.0.0.2", domain.HeartbeatPayload{IsAlive: true}))
	idle, err := s.IdleExecutors(ctx)
	require.NoError(t, err)
	require.Len(t, idle, 1)

	require.NoError(t, s.AssignTask(ctx, task.ID, idle[0].ID))

	_, err = s.OldestTask(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	exec, err := s.GetExecutorByIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, exec.Idle)
}

func TestStore_HeartbeatUpsertPreservesIdleBit(t *testing.T) {
	pool := testPool(t)
	s := store.New(pool)
	ctx := context.Background()

	require.NoError(t, s.UpsertHeartbeat(ctx, "10.0.0.3", domain.HeartbeatPayload{IsAlive: true, NCPUs: 4}))
	exec, err := s.GetExecutorByIP(ctx, "10.0.0.3")
	require.NoError(t, err)
	require.NoError(t, s.SetExecutorIdle(ctx, "10.0.0.3")) // no-op, already idle
	assert.True(t, exec.Idle)

	task, err := s.CreateTask(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, s.AssignTask(ctx, task.ID, exec.ID))

	// A new heartbeat must not flip idle back to true.
	require.NoError(t, s.UpsertHeartbeat(ctx, "10.0.0.3", domain.HeartbeatPayload{IsAlive: true, NCPUs: 8}))
	exec2, err := s.GetExecutorByIP(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.False(t, exec2.Idle)
	assert.Equal(t, 8, exec2.Data.NCPUs)
}

func TestStore_SetExecutorIdleNotFound(t *testing.T) {
	pool := testPool(t)
	s := store.New(pool)
	err := s.SetExecutorIdle(context.Background(), "10.9.9.9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_DeleteExecutorReaping(t *testing.T) {
	pool := testPool(t)
	s := store.New(pool)
	ctx := context.Background()

	require.NoError(t, s.UpsertHeartbeat(ctx, "10.0.0.4", domain.HeartbeatPayload{IsAlive: true}))
	exec, err := s.GetExecutorByIP(ctx, "10.0.0.4")
	require.NoError(t, err)

	require.NoError(t, s.DeleteExecutor(ctx, exec.ID))
	_, err = s.GetExecutorByIP(ctx, "10.0.0.4")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
