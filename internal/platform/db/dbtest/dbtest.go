// Package dbtest opens throwaway sqlite databases for store tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"libradesk/internal/platform/db"
)

// Open returns a migrated sqlite database that lives in t.TempDir.
func Open(t testing.TB) *db.DB {
	t.Helper()

	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{
		Driver: db.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "libradesk.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.EnsureSchema(ctx))
	return conn
}
