package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_SQLite(t *testing.T) {
	store, err := NewStore(StoreConfig{
		Backend:          "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "s.db"),
	})
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*SQLiteStore)
	assert.True(t, ok)
}

func TestNewStore_DefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.db")
	store, err := NewStore(StoreConfig{ConnectionString: path})
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*SQLiteStore)
	assert.True(t, ok)
}

func TestNewStore_PostgresRequiresDSN(t *testing.T) {
	_, err := NewStore(StoreConfig{Backend: "postgres"})
	assert.Error(t, err)
}

func TestNewStore_UnsupportedBackend(t *testing.T) {
	_, err := NewStore(StoreConfig{Backend: "redis"})
	assert.Error(t, err)
}
