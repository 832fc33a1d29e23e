// Package photo implements the metadata store for the archival collection on
// SQLite. The collection is fixed and small, so a single embedded database
// file holds every record and serves the lexical search path directly.
package photo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mtlarchive/fonds/internal/domain"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS photos (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	caption_text  TEXT NOT NULL DEFAULT '',
	image_location TEXT NOT NULL DEFAULT '',
	external_url  TEXT NOT NULL DEFAULT '',
	date_value    TEXT NOT NULL DEFAULT '',
	latitude      REAL,
	longitude     REAL
);
CREATE INDEX IF NOT EXISTS idx_photos_name ON photos(name);
`

// Store provides read and write access to photo metadata.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies the schema.
// Use ":memory:" for an ephemeral store in tests.
func New(path string) (*Store, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", domain.ErrMetadataStore, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %w", domain.ErrMetadataStore, err)
	}
	// SQLite benefits from a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %w", domain.ErrMetadataStore, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", domain.ErrMetadataStore, err)
	}
	return nil
}

const selectColumns = `id, name, description, caption_text, image_location, external_url, date_value, latitude, longitude`

// Get returns a single photo by id, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (domain.PhotoRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM photos WHERE id = ?`, id)
	rec, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PhotoRecord{}, fmt.Errorf("photo %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.PhotoRecord{}, fmt.Errorf("%w: get %s: %w", domain.ErrMetadataStore, id, err)
	}
	return rec, nil
}

// GetByIDs returns records for the given ids. Ids not present in the store
// are simply absent from the result; callers decide how to treat them.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]domain.PhotoRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM photos WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: get by ids: %w", domain.ErrMetadataStore, err)
	}
	defer rows.Close()

	return collectPhotos(rows)
}

// IDs returns every photo id in the store, ordered for stable export runs.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM photos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list ids: %w", domain.ErrMetadataStore, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan id: %w", domain.ErrMetadataStore, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list ids: %w", domain.ErrMetadataStore, err)
	}
	return ids, nil
}

// SearchSubstring runs a case-insensitive substring match over name,
// description and caption. Records with both a caption and a description
// rank before sparser ones, then alphabetically by name.
func (s *Store) SearchSubstring(ctx context.Context, query string, limit int) ([]domain.PhotoRecord, error) {
	pattern := "%" + escapeLike(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM photos
		WHERE name LIKE ? ESCAPE '\'
		   OR description LIKE ? ESCAPE '\'
		   OR caption_text LIKE ? ESCAPE '\'
		ORDER BY
			(CASE WHEN caption_text != '' THEN 1 ELSE 0 END
			 + CASE WHEN description != '' THEN 1 ELSE 0 END) DESC,
			name ASC
		LIMIT ?`,
		pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: substring search: %w", domain.ErrMetadataStore, err)
	}
	defer rows.Close()

	return collectPhotos(rows)
}

// Upsert inserts or replaces photo records. Used by the ingestion pipeline.
func (s *Store) Upsert(ctx context.Context, records []domain.PhotoRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrMetadataStore, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO photos (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			caption_text = excluded.caption_text,
			image_location = excluded.image_location,
			external_url = excluded.external_url,
			date_value = excluded.date_value,
			latitude = excluded.latitude,
			longitude = excluded.longitude`)
	if err != nil {
		return fmt.Errorf("%w: prepare upsert: %w", domain.ErrMetadataStore, err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", domain.ErrMetadataStore)
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Name, r.Description, r.CaptionText,
			r.ImageLocation, r.ExternalURL, r.DateValue,
			r.Latitude, r.Longitude)
		if err != nil {
			return fmt.Errorf("%w: upsert %s: %w", domain.ErrMetadataStore, r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrMetadataStore, err)
	}
	return nil
}

// Count returns the number of stored photos.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrMetadataStore, err)
	}
	return n, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (domain.PhotoRecord, error) {
	var rec domain.PhotoRecord
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Description, &rec.CaptionText,
		&rec.ImageLocation, &rec.ExternalURL, &rec.DateValue,
		&rec.Latitude, &rec.Longitude)
	return rec, err
}

func collectPhotos(rows *sql.Rows) ([]domain.PhotoRecord, error) {
	var out []domain.PhotoRecord
	for rows.Next() {
		rec, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrMetadataStore, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %w", domain.ErrMetadataStore, err)
	}
	return out, nil
}
