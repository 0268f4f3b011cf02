package db

import (
	"database/sql"
	"fmt"
)

// baseSchema creates every table the pipeline's sqlite store needs. IDs are
// snowflake-generated text, never AUTOINCREMENT.
const baseSchema = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  chapter_url TEXT NOT NULL,
  target_lang TEXT NOT NULL,
  backend INTEGER NOT NULL,
  series_name TEXT,
  status TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  result_ref TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_fingerprint ON jobs(chapter_url, target_lang, backend);

CREATE TABLE IF NOT EXISTS glossary_dictionaries (
  id TEXT PRIMARY KEY,
  series_id TEXT NOT NULL,
  source_lang TEXT NOT NULL,
  target_lang TEXT NOT NULL,
  capacity INTEGER NOT NULL,
  created_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_glossary_dict_series_langs
  ON glossary_dictionaries(series_id, source_lang, target_lang);

CREATE TABLE IF NOT EXISTS glossary_entries (
  id TEXT PRIMARY KEY,
  dictionary_id TEXT NOT NULL,
  original TEXT NOT NULL,
  original_fold TEXT NOT NULL,
  translation TEXT NOT NULL,
  is_proper_noun INTEGER NOT NULL DEFAULT 0,
  usage_count INTEGER NOT NULL DEFAULT 0,
  last_used_at TEXT NOT NULL,
  FOREIGN KEY (dictionary_id) REFERENCES glossary_dictionaries(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_glossary_entries_dict_term
  ON glossary_entries(dictionary_id, original_fold);
CREATE INDEX IF NOT EXISTS idx_glossary_entries_eviction
  ON glossary_entries(dictionary_id, usage_count, last_used_at);

CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`

// Migrate brings a freshly opened database up to the current schema.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(baseSchema); err != nil {
		return fmt.Errorf("migrate base schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental, additive changes on top of
// baseSchema. Each step checks pragma_table_info before altering so it is
// safe to run against both brand-new and long-lived databases.
func runMigrations(db *sql.DB) error {
	if err := addColumnIfMissing(db, "jobs", "attempt", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, ddl string) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil {
		return fmt.Errorf("check %s.%s column: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, ddl)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}
	return nil
}
