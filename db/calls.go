package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"foerderbande/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// CallColumns are the funding_calls columns in scan order
var CallColumns = []string{
	"funding_calls.id",
	"funding_calls.title",
	"funding_calls.description",
	"funding_calls.url",
	"funding_calls.source",
	"funding_calls.deadline",
	"funding_calls.created_at",
	"funding_calls.updated_at",
	"funding_calls.extra_data",
}

const callReturning = `id, title, description, url, source, deadline, created_at, updated_at, extra_data`

func scanCall(row rowScanner, extra ...any) (models.FundingCall, error) {
	var (
		call      models.FundingCall
		desc      sql.NullString
		deadline  sql.NullTime
		extraData []byte
	)

	dest := append([]any{
		&call.ID, &call.Title, &desc, &call.URL, &call.Source,
		&deadline, &call.CreatedAt, &call.UpdatedAt, &extraData,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return call, err
	}

	if desc.Valid {
		d := desc.String
		call.Description = &d
	}
	if deadline.Valid {
		t := deadline.Time
		call.Deadline = &t
	}

	call.ExtraData = map[string]any{}
	if len(extraData) > 0 {
		if err := json.Unmarshal(extraData, &call.ExtraData); err != nil {
			return call, fmt.Errorf("decode extra_data: %w", err)
		}
	}

	return call, nil
}

// deadlineOf returns the explicit deadline or the one found in the metadata bag
func deadlineOf(call models.FundingCall) *time.Time {
	if call.Deadline != nil {
		return call.Deadline
	}
	if raw, ok := call.ExtraData["deadline"].(string); ok {
		if t, ok := models.ParseDeadline(raw); ok {
			return &t
		}
	}
	return nil
}

// UpsertFundingCall inserts the call or, when a call with the same URL exists,
// refreshes title, description, source, deadline and merges extra_data.
// The returned bool is true when a new row was inserted.
func (db *DB) UpsertFundingCall(ctx context.Context, call models.FundingCall) (models.FundingCall, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	extra := call.ExtraData
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return call, false, fmt.Errorf("encode extra_data: %w", err)
	}

	log.WithFields(log.Fields{
		"url":    call.URL,
		"source": call.Source,
	}).Debug("Upserting funding call")

	row := db.db.QueryRowContext(ctx, `
		INSERT INTO funding_calls (title, description, url, source, deadline, extra_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			description = COALESCE(EXCLUDED.description, funding_calls.description),
			source = EXCLUDED.source,
			deadline = COALESCE(EXCLUDED.deadline, funding_calls.deadline),
			extra_data = funding_calls.extra_data || EXCLUDED.extra_data,
			updated_at = NOW()
		RETURNING `+callReturning+`, (xmax = 0) AS inserted`,
		call.Title,
		nullString(call.Description),
		call.URL,
		call.Source,
		nullTime(deadlineOf(call)),
		string(extraJSON),
	)

	var inserted bool
	stored, err := scanCall(row, &inserted)
	if err != nil {
		return call, false, fmt.Errorf("upsert funding call: %w", translateError(err))
	}

	return stored, inserted, nil
}

// ListFundingCalls returns funding calls newest first
func (db *DB) ListFundingCalls(ctx context.Context, q models.CallQuery) ([]models.FundingCall, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(CallColumns...).From("funding_calls")

	if q.Cursor != 0 {
		sb.Where(sb.LessThan("funding_calls.id", q.Cursor))
	}

	if q.Source != "" {
		sb.Where(sb.Equal("funding_calls.source", q.Source))
	}

	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		sb.Where(sb.Or(
			fmt.Sprintf("funding_calls.title ILIKE %s", sb.Args.Add(pattern)),
			fmt.Sprintf("funding_calls.description ILIKE %s", sb.Args.Add(pattern)),
		))
	}

	// Pages are cut on id, so paged results are ordered by id alone
	if q.Cursor != 0 || q.Limit > 0 {
		sb.OrderBy("funding_calls.id DESC")
	} else {
		sb.OrderBy("funding_calls.created_at DESC", "funding_calls.id DESC")
	}

	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}

	query, args := sb.Build()
	return db.QueryFundingCalls(ctx, query, args)
}

// QueryFundingCalls runs a prebuilt query selecting CallColumns, optionally followed by a score column
func (db *DB) QueryFundingCalls(ctx context.Context, query string, args []interface{}) ([]models.FundingCall, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"sql":  query,
		"args": args,
	}).Debug("Querying funding calls")

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	var extra []any
	for i := len(CallColumns); i < len(columns); i++ {
		var discard any
		extra = append(extra, &discard)
	}

	calls := []models.FundingCall{}
	for rows.Next() {
		call, err := scanCall(rows, extra...)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		calls = append(calls, call)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	return calls, nil
}

// GetFundingCall returns a single funding call by id
func (db *DB) GetFundingCall(ctx context.Context, id int64) (models.FundingCall, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := db.db.QueryRowContext(ctx,
		`SELECT `+callReturning+` FROM funding_calls WHERE id = $1`, id)

	call, err := scanCall(row)
	if err != nil {
		return call, fmt.Errorf("get funding call %d: %w", id, translateError(err))
	}
	return call, nil
}

// DeleteFundingCall removes a funding call and, by cascade, its user settings
func (db *DB) DeleteFundingCall(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := db.db.ExecContext(ctx, "DELETE FROM funding_calls WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete funding call %d: %w", id, ErrNotFound)
	}
	return nil
}
