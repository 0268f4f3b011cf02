package db_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/toonrelay/pipeline/internal/db"

	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "toonrelay-db-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "test.db")
	database, err := db.Open(dbPath)
	require.NoError(t, err)
	require.NotNil(t, database)
	defer database.Close()

	var name string
	err = database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='jobs'").Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "jobs", name)
}

func TestOpen_CreatesGlossaryTables(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "toonrelay-db-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	database, err := db.Open(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	defer database.Close()

	for _, table := range []string{"glossary_dictionaries", "glossary_entries", "settings"} {
		var name string
		err = database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "expected table %s to exist", table)
		require.Equal(t, table, name)
	}
}

func TestMigrate_ClosedDB(t *testing.T) {
	database, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Close())

	err = db.Migrate(database)
	require.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "toonrelay-db-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	database, err := db.Open(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, db.Migrate(database))
	require.NoError(t, db.Migrate(database))
}
