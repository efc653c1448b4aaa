package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/sqlite"
)

func newTestConnection(t *testing.T) database.Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uow.db")
	conn, err := database.NewConnection(context.Background(), database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: path,
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTxFromContext_Empty(t *testing.T) {
	assert.Nil(t, database.TxFromContext(context.Background()))
	_, ok := database.TxInfoFromContext(context.Background())
	assert.False(t, ok)
}

func TestWithTx_RoundTrip(t *testing.T) {
	conn := newTestConnection(t)
	tx, err := conn.BeginTx(context.Background())
	require.NoError(t, err)
	defer tx.Rollback(context.Background())

	ctx := database.WithTx(context.Background(), tx, true)
	assert.Equal(t, tx, database.TxFromContext(ctx))

	info, ok := database.TxInfoFromContext(ctx)
	require.True(t, ok)
	assert.True(t, info.Owned)
}

func TestExecutorFromContext_PrefersTxOverConnection(t *testing.T) {
	conn := newTestConnection(t)
	tx, err := conn.BeginTx(context.Background())
	require.NoError(t, err)
	defer tx.Rollback(context.Background())

	ctx := database.WithTx(context.Background(), tx, true)
	assert.Equal(t, tx, database.ExecutorFromContext(ctx, conn))
	assert.Equal(t, conn, database.ExecutorFromContext(context.Background(), conn))
}
