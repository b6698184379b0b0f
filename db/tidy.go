package db

import (
	"context"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// TidyResult reports how many rows Tidy removed
type TidyResult struct {
	FundingCalls int64
	FeedEntries  int64
}

// Tidy removes funding calls whose deadline passed more than retention ago
// and raw feed entries that have not been seen for longer than retention
func (db *DB) Tidy(ctx context.Context, retention time.Duration) (TidyResult, error) {
	return db.tidy(ctx, time.Now().Add(-retention))
}

func (db *DB) tidy(ctx context.Context, cutoff time.Time) (TidyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var result TidyResult

	deleteCalls := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	deleteCalls.DeleteFrom("funding_calls").Where(
		deleteCalls.IsNotNull("deadline"),
		deleteCalls.LessThan("deadline", cutoff),
	)
	n, err := db.execDelete(ctx, deleteCalls)
	if err != nil {
		return result, err
	}
	result.FundingCalls = n

	deleteEntries := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	deleteEntries.DeleteFrom("feed_entries").Where(deleteEntries.LessThan("updated_at", cutoff))
	n, err = db.execDelete(ctx, deleteEntries)
	if err != nil {
		return result, err
	}
	result.FeedEntries = n

	log.WithFields(log.Fields{
		"cutoff":        cutoff.Format(time.RFC3339),
		"funding_calls": result.FundingCalls,
		"feed_entries":  result.FeedEntries,
	}).Info("Tidied database")

	return result, nil
}

func (db *DB) execDelete(ctx context.Context, b *sqlbuilder.DeleteBuilder) (int64, error) {
	sql, args := b.Build()

	log.WithFields(log.Fields{
		"sql":  sql,
		"args": args,
	}).Debug("Tidying database")

	res, err := db.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("tidy error: %w", err)
	}
	return res.RowsAffected()
}
