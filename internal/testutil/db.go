// Package testutil builds throwaway databases for package tests.
package testutil

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/db"
)

// NewDB returns a migrated in-memory SQLite database that is closed when the test ends.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.Open(config.DB{Driver: config.DriverSQLite, SQLitePath: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}
