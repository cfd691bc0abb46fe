// Package storagetest opens throwaway SQLite stores for tests.
package storagetest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/storage"
)

// New returns a migrated SQLite store in a temp dir, closed on cleanup
func New(t testing.TB) storage.Storage {
	t.Helper()

	store, err := storage.Open(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "gamma-ops.db"),
		MaxConnections:   1,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
