package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesOrdered(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_broadcasts.sql": {Data: []byte("--")},
		"migrations/001_rooms.sql":      {Data: []byte("--")},
		"migrations/README.md":          {Data: []byte("x")},
		"migrations/old/003_skip.sql":   {Data: []byte("--")},
	}
	names, err := migrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_rooms.sql", "002_broadcasts.sql"}, names)
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := migrationNames(migrationsFS)
	require.NoError(t, err)
	assert.Contains(t, names, "001_rooms.sql")
}
