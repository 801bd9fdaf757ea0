package relmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap"
)

func TestConfigURL(t *testing.T) {
	cfg := relmap.Config{
		Dialect:  "postgres",
		Username: "app",
		Password: "p@ss:word",
		Host:     "db.internal",
		Port:     5432,
		Database: "orders",
	}
	dsn, err := cfg.URL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:p%40ss:word@db.internal:5432/orders", dsn)
}

func TestConfigURLSQLitePath(t *testing.T) {
	cfg := relmap.Config{Dialect: "sqlite", Database: ":memory:"}
	dsn, err := cfg.URL()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)
}

func TestConfigURLMissingDialect(t *testing.T) {
	_, err := relmap.Config{Database: "orders"}.URL()
	require.Error(t, err)
	var connErr *relmap.ConnError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "config", connErr.Stage)
}

func TestConfigName(t *testing.T) {
	assert.Equal(t, "postgres+pq", relmap.Config{Dialect: "postgres", Driver: "pq"}.Name())
	// Without a driver the identifier degrades to the dialect alone.
	assert.Equal(t, "sqlite", relmap.Config{Dialect: "sqlite"}.Name())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RELMAP_DIALECT", "sqlite")
	t.Setenv("RELMAP_DATABASE", ":memory:")

	cfg, err := relmap.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.Equal(t, ":memory:", cfg.Database)
}

func TestFromEnvMissingDialect(t *testing.T) {
	t.Setenv("RELMAP_DATABASE", "orders")

	_, err := relmap.FromEnv()
	require.Error(t, err)
	var connErr *relmap.ConnError
	assert.ErrorAs(t, err, &connErr)
}
