package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"foerderbande/models"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const sourceColumns = `id, name, url, source_type, description, is_active, selector, languages,
	keywords, exclude_keywords, last_polled_at, last_error, failure_count, created_at, updated_at`

func scanSource(row rowScanner) (models.Source, error) {
	var (
		s          models.Source
		sourceType string
		lastPolled sql.NullTime
		lastError  sql.NullString
	)

	err := row.Scan(
		&s.ID, &s.Name, &s.URL, &sourceType, &s.Description, &s.IsActive, &s.Selector,
		pq.Array(&s.Languages), pq.Array(&s.Keywords), pq.Array(&s.ExcludeKeywords),
		&lastPolled, &lastError, &s.FailureCount, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return s, err
	}

	s.Type = models.SourceType(sourceType)
	if lastPolled.Valid {
		t := lastPolled.Time
		s.LastPolledAt = &t
	}
	s.LastError = lastError.String

	return s, nil
}

func (db *DB) querySources(ctx context.Context, query string, args ...any) ([]models.Source, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	sources := []models.Source{}
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (db *DB) querySource(ctx context.Context, query string, args ...any) (models.Source, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	s, err := scanSource(db.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return s, translateError(err)
	}
	return s, nil
}

func normalizeSource(s models.Source) models.Source {
	if s.Type == "" {
		s.Type = models.SourceTypeRSS
	}
	if s.Languages == nil {
		s.Languages = []string{}
	}
	if s.Keywords == nil {
		s.Keywords = []string{}
	}
	if s.ExcludeKeywords == nil {
		s.ExcludeKeywords = []string{}
	}
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	return s
}

// SyncSources upserts the sources declared in the config file by name
func (db *DB) SyncSources(ctx context.Context, sources []models.Source) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, s := range sources {
		s = normalizeSource(s)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sources (name, url, source_type, description, is_active, selector, languages, keywords, exclude_keywords)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (name) DO UPDATE SET
				url = EXCLUDED.url,
				source_type = EXCLUDED.source_type,
				description = EXCLUDED.description,
				is_active = EXCLUDED.is_active,
				selector = EXCLUDED.selector,
				languages = EXCLUDED.languages,
				keywords = EXCLUDED.keywords,
				exclude_keywords = EXCLUDED.exclude_keywords,
				updated_at = NOW()`,
			s.Name, s.URL, string(s.Type), s.Description, s.IsActive, s.Selector,
			pq.Array(s.Languages), pq.Array(s.Keywords), pq.Array(s.ExcludeKeywords),
		)
		if err != nil {
			return fmt.Errorf("sync source %q: %w", s.Name, translateError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.WithFields(log.Fields{
		"count": len(sources),
	}).Info("Synced sources from config")

	return nil
}

// ListSources returns all sources ordered by name
func (db *DB) ListSources(ctx context.Context) ([]models.Source, error) {
	return db.querySources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
}

// ListActiveSources returns active sources, least recently polled first
func (db *DB) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	return db.querySources(ctx, `SELECT `+sourceColumns+` FROM sources
		WHERE is_active ORDER BY last_polled_at ASC NULLS FIRST, id`)
}

func (db *DB) GetSource(ctx context.Context, id int64) (models.Source, error) {
	s, err := db.querySource(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	if err != nil {
		return s, fmt.Errorf("get source %d: %w", id, err)
	}
	return s, nil
}

func (db *DB) GetSourceByName(ctx context.Context, name string) (models.Source, error) {
	s, err := db.querySource(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = $1`, name)
	if err != nil {
		return s, fmt.Errorf("get source %q: %w", name, err)
	}
	return s, nil
}

func (db *DB) CreateSource(ctx context.Context, s models.Source) (models.Source, error) {
	s = normalizeSource(s)
	created, err := db.querySource(ctx, `
		INSERT INTO sources (name, url, source_type, description, is_active, selector, languages, keywords, exclude_keywords)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+sourceColumns,
		s.Name, s.URL, string(s.Type), s.Description, s.IsActive, s.Selector,
		pq.Array(s.Languages), pq.Array(s.Keywords), pq.Array(s.ExcludeKeywords),
	)
	if err != nil {
		return created, fmt.Errorf("create source %q: %w", s.Name, err)
	}
	return created, nil
}

func (db *DB) UpdateSource(ctx context.Context, id int64, s models.Source) (models.Source, error) {
	s = normalizeSource(s)
	updated, err := db.querySource(ctx, `
		UPDATE sources SET
			name = $2, url = $3, source_type = $4, description = $5, is_active = $6,
			selector = $7, languages = $8, keywords = $9, exclude_keywords = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING `+sourceColumns,
		id, s.Name, s.URL, string(s.Type), s.Description, s.IsActive, s.Selector,
		pq.Array(s.Languages), pq.Array(s.Keywords), pq.Array(s.ExcludeKeywords),
	)
	if err != nil {
		return updated, fmt.Errorf("update source %d: %w", id, err)
	}
	return updated, nil
}

func (db *DB) DeleteSource(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := db.db.ExecContext(ctx, "DELETE FROM sources WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete source %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) SetSourceActive(ctx context.Context, id int64, active bool) (models.Source, error) {
	s, err := db.querySource(ctx, `UPDATE sources SET is_active = $2, updated_at = NOW()
		WHERE id = $1 RETURNING `+sourceColumns, id, active)
	if err != nil {
		return s, fmt.Errorf("set source %d active: %w", id, err)
	}
	return s, nil
}

func (db *DB) ToggleSourceActive(ctx context.Context, id int64) (models.Source, error) {
	s, err := db.querySource(ctx, `UPDATE sources SET is_active = NOT is_active, updated_at = NOW()
		WHERE id = $1 RETURNING `+sourceColumns, id)
	if err != nil {
		return s, fmt.Errorf("toggle source %d: %w", id, err)
	}
	return s, nil
}

// MarkSourcePolled records a successful poll and resets the failure counter
func (db *DB) MarkSourcePolled(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := db.db.ExecContext(ctx, `UPDATE sources SET
		last_polled_at = NOW(), last_error = NULL, failure_count = 0
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark source %d polled: %w", id, err)
	}
	return nil
}

// MarkSourceFailed records a failed poll
func (db *DB) MarkSourceFailed(ctx context.Context, id int64, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := db.db.ExecContext(ctx, `UPDATE sources SET
		last_polled_at = NOW(), last_error = $2, failure_count = failure_count + 1
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("mark source %d failed: %w", id, err)
	}
	return nil
}
