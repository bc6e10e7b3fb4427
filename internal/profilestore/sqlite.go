package profilestore

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"driftnet/internal/model"
)

// SQLiteStore keeps profiles in a local SQLite file. Handles compare
// case-insensitively via COLLATE NOCASE on the key columns.
type SQLiteStore struct{ sql *sql.DB }

func OpenSQLite(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;`); err != nil {
		return nil, err
	}
	s := &SQLiteStore{sql: d}
	if err := s.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.sql.Close() }

func (s *SQLiteStore) migrate() error {
	_, err := s.sql.Exec(`
	CREATE TABLE IF NOT EXISTS processed_profiles (
	  twitter_handle TEXT PRIMARY KEY COLLATE NOCASE,
	  first_discovered_date TEXT NOT NULL,
	  last_updated_date TEXT NOT NULL,
	  external_ref TEXT,
	  category TEXT CHECK (category IN ('Project','Profile')),
	  created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);
	CREATE TABLE IF NOT EXISTS source_relationships (
	  twitter_handle TEXT NOT NULL COLLATE NOCASE,
	  discovered_by_handle TEXT NOT NULL COLLATE NOCASE,
	  discovery_date TEXT NOT NULL,
	  PRIMARY KEY (twitter_handle, discovered_by_handle),
	  FOREIGN KEY (twitter_handle) REFERENCES processed_profiles(twitter_handle)
	);
	CREATE INDEX IF NOT EXISTS idx_rel_discovered_by ON source_relationships(discovered_by_handle);
	`)
	return err
}

func (s *SQLiteStore) FindByHandle(ctx context.Context, handle string) (*model.ProfileRecord, error) {
	row := s.sql.QueryRowContext(ctx, `
	SELECT twitter_handle, first_discovered_date, last_updated_date,
	       COALESCE(external_ref, ''), COALESCE(category, '')
	FROM processed_profiles WHERE twitter_handle = ? COLLATE NOCASE`, handle)
	rec, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) RecordOrUpdate(ctx context.Context, handle, externalRef, category string, now time.Time) error {
	ts := now.UTC().Format(time.RFC3339)
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO processed_profiles (twitter_handle, first_discovered_date, last_updated_date, external_ref, category)
	VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))
	ON CONFLICT(twitter_handle) DO UPDATE SET
	  last_updated_date = excluded.last_updated_date,
	  external_ref = COALESCE(processed_profiles.external_ref, excluded.external_ref),
	  category = COALESCE(processed_profiles.category, excluded.category)`,
		handle, ts, ts, externalRef, category)
	return err
}

func (s *SQLiteStore) AddRelationship(ctx context.Context, handle, discoveredBy string, when time.Time) error {
	_, err := s.sql.ExecContext(ctx, `
	INSERT OR IGNORE INTO source_relationships (twitter_handle, discovered_by_handle, discovery_date)
	VALUES (?, ?, ?)`, handle, discoveredBy, when.UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) RelationshipsFor(ctx context.Context, handle string) ([]model.SourceRelationship, error) {
	rows, err := s.sql.QueryContext(ctx, `
	SELECT twitter_handle, discovered_by_handle, discovery_date
	FROM source_relationships WHERE twitter_handle = ? COLLATE NOCASE
	ORDER BY discovery_date`, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SourceRelationship
	for rows.Next() {
		var rel model.SourceRelationship
		var date string
		if err := rows.Scan(&rel.Handle, &rel.DiscoveredBy, &date); err != nil {
			return nil, err
		}
		rel.DiscoveryDate, _ = time.Parse(time.RFC3339, date)
		out = append(out, rel)
	}
	return out, rows.Err()
}

// MergeCaseVariants collapses handles that differ only by case. It is
// needed for databases created before the NOCASE collation, where the
// same account could accumulate several rows.
func (s *SQLiteStore) MergeCaseVariants(ctx context.Context) (int, error) {
	rows, err := s.sql.QueryContext(ctx, `
	SELECT twitter_handle, first_discovered_date, last_updated_date,
	       COALESCE(external_ref, ''), COALESCE(category, '')
	FROM processed_profiles ORDER BY rowid`)
	if err != nil {
		return 0, err
	}
	all, err := collectProfiles(rows)
	if err != nil {
		return 0, err
	}

	tx, err := s.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	removed := 0
	for _, plan := range planMerges(all) {
		c := plan.canonical
		if _, err := tx.ExecContext(ctx, `
		UPDATE processed_profiles SET
		  first_discovered_date = ?, last_updated_date = ?,
		  external_ref = NULLIF(?, ''), category = NULLIF(?, '')
		WHERE twitter_handle = ?`,
			c.FirstDiscovered.UTC().Format(time.RFC3339),
			c.LastUpdated.UTC().Format(time.RFC3339),
			c.ExternalRef, c.Category, c.Handle); err != nil {
			return 0, err
		}
		for _, variant := range plan.variants {
			if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO source_relationships (twitter_handle, discovered_by_handle, discovery_date)
			SELECT ?, discovered_by_handle, discovery_date
			FROM source_relationships WHERE twitter_handle = ?`, c.Handle, variant); err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx, `
			DELETE FROM source_relationships WHERE twitter_handle = ?`, variant); err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx, `
			DELETE FROM processed_profiles WHERE twitter_handle = ? AND twitter_handle != ?`, variant, c.Handle); err != nil {
				return 0, err
			}
			removed++
		}
	}
	return removed, tx.Commit()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanProfile(row rowScanner) (*model.ProfileRecord, error) {
	var rec model.ProfileRecord
	var first, last string
	if err := row.Scan(&rec.Handle, &first, &last, &rec.ExternalRef, &rec.Category); err != nil {
		return nil, err
	}
	rec.FirstDiscovered, _ = time.Parse(time.RFC3339, first)
	rec.LastUpdated, _ = time.Parse(time.RFC3339, last)
	return &rec, nil
}

func collectProfiles(rows *sql.Rows) ([]model.ProfileRecord, error) {
	defer rows.Close()
	var out []model.ProfileRecord
	for rows.Next() {
		rec, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
