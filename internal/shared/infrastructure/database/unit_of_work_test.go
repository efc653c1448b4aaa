package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
)

func seedTable(t *testing.T, conn database.Connection) {
	t.Helper()
	_, err := conn.Exec(context.Background(), `CREATE TABLE items (name TEXT)`)
	require.NoError(t, err)
}

func countItems(t *testing.T, conn database.Connection) int {
	t.Helper()
	row := conn.QueryRow(context.Background(), `SELECT COUNT(*) FROM items`)
	var n int
	require.NoError(t, row.Scan(&n))
	return n
}

func TestGenericUnitOfWork_CommitPersists(t *testing.T) {
	conn := newTestConnection(t)
	seedTable(t, conn)
	uow := database.NewUnitOfWork(conn)

	ctx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	exec := database.ExecutorFromContext(ctx, conn)
	_, err = exec.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "widget")
	require.NoError(t, err)

	require.NoError(t, uow.Commit(ctx))
	assert.Equal(t, 1, countItems(t, conn))
}

func TestGenericUnitOfWork_RollbackDiscards(t *testing.T) {
	conn := newTestConnection(t)
	seedTable(t, conn)
	uow := database.NewUnitOfWork(conn)

	ctx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	exec := database.ExecutorFromContext(ctx, conn)
	_, err = exec.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "widget")
	require.NoError(t, err)

	require.NoError(t, uow.Rollback(ctx))
	assert.Equal(t, 0, countItems(t, conn))
}

func TestGenericUnitOfWork_NestedBeginSharesTransaction(t *testing.T) {
	conn := newTestConnection(t)
	seedTable(t, conn)
	uow := database.NewUnitOfWork(conn)

	outer, err := uow.Begin(context.Background())
	require.NoError(t, err)

	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	info, ok := database.TxInfoFromContext(inner)
	require.True(t, ok)
	assert.False(t, info.Owned, "nested Begin should not claim ownership")
	assert.Equal(t, database.TxFromContext(outer), database.TxFromContext(inner))

	exec := database.ExecutorFromContext(inner, conn)
	_, err = exec.Exec(inner, `INSERT INTO items (name) VALUES (?)`, "widget")
	require.NoError(t, err)

	// The inner call's Commit is a no-op since it doesn't own the tx.
	require.NoError(t, uow.Commit(inner))
	require.NoError(t, uow.Commit(outer))
	assert.Equal(t, 1, countItems(t, conn))
}

func TestGenericUnitOfWork_CommitWithoutBeginErrors(t *testing.T) {
	conn := newTestConnection(t)
	uow := database.NewUnitOfWork(conn)

	err := uow.Commit(context.Background())
	assert.Error(t, err)

	err = uow.Rollback(context.Background())
	assert.Error(t, err)
}
