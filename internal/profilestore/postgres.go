package profilestore

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"driftnet/internal/model"
)

// PostgresStore keeps profiles in Postgres. Case-insensitivity comes
// from LOWER() comparisons backed by expression indexes.
type PostgresStore struct{ sql *sql.DB }

func OpenPostgres(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, err
	}
	s := &PostgresStore{sql: d}
	if err := s.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return s.sql.Close() }

func (s *PostgresStore) migrate() error {
	_, err := s.sql.Exec(`
	CREATE TABLE IF NOT EXISTS processed_profiles (
	  twitter_handle TEXT PRIMARY KEY,
	  first_discovered_date TIMESTAMPTZ NOT NULL,
	  last_updated_date TIMESTAMPTZ NOT NULL,
	  external_ref TEXT,
	  category TEXT CHECK (category IN ('Project','Profile')),
	  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_handle_lower
	  ON processed_profiles (LOWER(twitter_handle));
	CREATE TABLE IF NOT EXISTS source_relationships (
	  twitter_handle TEXT NOT NULL,
	  discovered_by_handle TEXT NOT NULL,
	  discovery_date TIMESTAMPTZ NOT NULL,
	  PRIMARY KEY (twitter_handle, discovered_by_handle)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_rel_pair_lower
	  ON source_relationships (LOWER(twitter_handle), LOWER(discovered_by_handle));
	`)
	return err
}

func (s *PostgresStore) FindByHandle(ctx context.Context, handle string) (*model.ProfileRecord, error) {
	row := s.sql.QueryRowContext(ctx, `
	SELECT twitter_handle, first_discovered_date, last_updated_date,
	       COALESCE(external_ref, ''), COALESCE(category, '')
	FROM processed_profiles WHERE LOWER(twitter_handle) = LOWER($1)`, handle)
	var rec model.ProfileRecord
	err := row.Scan(&rec.Handle, &rec.FirstDiscovered, &rec.LastUpdated, &rec.ExternalRef, &rec.Category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) RecordOrUpdate(ctx context.Context, handle, externalRef, category string, now time.Time) error {
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO processed_profiles (twitter_handle, first_discovered_date, last_updated_date, external_ref, category)
	VALUES ($1, $2, $2, NULLIF($3, ''), NULLIF($4, ''))
	ON CONFLICT (LOWER(twitter_handle)) DO UPDATE SET
	  last_updated_date = EXCLUDED.last_updated_date,
	  external_ref = COALESCE(processed_profiles.external_ref, EXCLUDED.external_ref),
	  category = COALESCE(processed_profiles.category, EXCLUDED.category)`,
		handle, now.UTC(), externalRef, category)
	return err
}

func (s *PostgresStore) AddRelationship(ctx context.Context, handle, discoveredBy string, when time.Time) error {
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO source_relationships (twitter_handle, discovered_by_handle, discovery_date)
	VALUES ($1, $2, $3)
	ON CONFLICT (LOWER(twitter_handle), LOWER(discovered_by_handle)) DO NOTHING`,
		handle, discoveredBy, when.UTC())
	return err
}

func (s *PostgresStore) RelationshipsFor(ctx context.Context, handle string) ([]model.SourceRelationship, error) {
	rows, err := s.sql.QueryContext(ctx, `
	SELECT twitter_handle, discovered_by_handle, discovery_date
	FROM source_relationships WHERE LOWER(twitter_handle) = LOWER($1)
	ORDER BY discovery_date`, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SourceRelationship
	for rows.Next() {
		var rel model.SourceRelationship
		if err := rows.Scan(&rel.Handle, &rel.DiscoveredBy, &rel.DiscoveryDate); err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// MergeCaseVariants collapses handles that differ only by case, for
// databases imported before the LOWER() unique index existed.
func (s *PostgresStore) MergeCaseVariants(ctx context.Context) (int, error) {
	rows, err := s.sql.QueryContext(ctx, `
	SELECT twitter_handle, first_discovered_date, last_updated_date,
	       COALESCE(external_ref, ''), COALESCE(category, '')
	FROM processed_profiles ORDER BY created_at`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var all []model.ProfileRecord
	for rows.Next() {
		var rec model.ProfileRecord
		if err := rows.Scan(&rec.Handle, &rec.FirstDiscovered, &rec.LastUpdated, &rec.ExternalRef, &rec.Category); err != nil {
			return 0, err
		}
		all = append(all, rec)
	}
	if err := rows.Err(); err != nil {
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
		  first_discovered_date = $1, last_updated_date = $2,
		  external_ref = NULLIF($3, ''), category = NULLIF($4, '')
		WHERE twitter_handle = $5`,
			c.FirstDiscovered.UTC(), c.LastUpdated.UTC(), c.ExternalRef, c.Category, c.Handle); err != nil {
			return 0, err
		}
		for _, variant := range plan.variants {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO source_relationships (twitter_handle, discovered_by_handle, discovery_date)
			SELECT $1, discovered_by_handle, discovery_date
			FROM source_relationships WHERE twitter_handle = $2
			ON CONFLICT (LOWER(twitter_handle), LOWER(discovered_by_handle)) DO NOTHING`, c.Handle, variant); err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx, `
			DELETE FROM source_relationships WHERE twitter_handle = $1`, variant); err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx, `
			DELETE FROM processed_profiles WHERE twitter_handle = $1`, variant); err != nil {
				return 0, err
			}
			removed++
		}
	}
	return removed, tx.Commit()
}
