package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrations_PostgresRoundTrip(t *testing.T) {
	store := rawStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	requireState := func(want MigrationState, step string) {
		t.Helper()
		got, err := store.MigrationStatus(ctx)
		require.NoError(t, err, step)
		require.Equal(t, want, got, step)
	}

	require.NoError(t, store.MigrateDown(ctx, 100))
	requireState(MigrationState{Version: 0, Applied: 0, Pending: 3}, "after reset")

	require.NoError(t, store.MigrateUp(ctx, 1))
	requireState(MigrationState{Version: 1, Applied: 1, Pending: 2}, "after one step")

	require.NoError(t, store.MigrateUp(ctx, 0))
	requireState(MigrationState{Version: 3, Applied: 3, Pending: 0}, "after up")

	require.NoError(t, store.MigrateUp(ctx, 0))
	requireState(MigrationState{Version: 3, Applied: 3, Pending: 0}, "repeated up is a no-op")

	require.NoError(t, store.MigrateDown(ctx, 0))
	requireState(MigrationState{Version: 2, Applied: 2, Pending: 1}, "down defaults to one step")

	require.NoError(t, store.MigrateDown(ctx, 100))
	require.NoError(t, store.MigrateDown(ctx, 1), "down on empty schema")
	requireState(MigrationState{Version: 0, Applied: 0, Pending: 3}, "after full rollback")

	require.NoError(t, store.MigrateUp(ctx, 0))
}
