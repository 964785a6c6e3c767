// Package databasetest opens throwaway databases with the orders schema applied.
package databasetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orders/internal/config"
	"github.com/Additional-Code/orders/internal/database"
	"github.com/Additional-Code/orders/internal/migration"
)

// SQLiteConfig returns a config for a private, in-memory SQLite database.
func SQLiteConfig() config.Database {
	return config.Database{
		Driver:       "sqlite",
		WriterDSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// NewSQLite opens an in-memory SQLite database, applies all migrations and
// closes it when the test finishes.
func NewSQLite(t testing.TB) *database.Connections {
	t.Helper()

	conns, err := database.Open(SQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conns.Close()
	})

	Migrate(t, conns)

	return conns
}

// Migrate applies all migrations to conns.
func Migrate(t testing.TB, conns *database.Connections) {
	t.Helper()

	migrator, err := migration.New(conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up(context.Background()))
}
