package db

import (
	"context"
	"encoding/json"
	"fmt"

	"foerderbande/models"
)

const settingsReturning = `user_id, funding_call_id, settings, created_at, updated_at`

func scanSettings(row rowScanner) (models.UserSettings, error) {
	var (
		s   models.UserSettings
		raw []byte
	)
	if err := row.Scan(&s.UserID, &s.FundingCallID, &raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return s, err
	}
	s.Settings = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.Settings); err != nil {
			return s, fmt.Errorf("decode settings: %w", err)
		}
	}
	return s, nil
}

// ListUserSettings returns all settings rows of a user, most recently changed first
func (db *DB) ListUserSettings(ctx context.Context, userID string) ([]models.UserSettings, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.db.QueryContext(ctx, `SELECT `+settingsReturning+` FROM user_funding_calls
		WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	settings := []models.UserSettings{}
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// UpdateUserSettings merges patch into the stored settings, creating the row if needed
func (db *DB) UpdateUserSettings(ctx context.Context, userID string, callID int64, patch map[string]any) (models.UserSettings, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	raw, err := json.Marshal(patch)
	if err != nil {
		return models.UserSettings{}, fmt.Errorf("encode settings: %w", err)
	}

	s, err := scanSettings(db.db.QueryRowContext(ctx, `
		INSERT INTO user_funding_calls (user_id, funding_call_id, settings)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, funding_call_id) DO UPDATE SET
			settings = user_funding_calls.settings || EXCLUDED.settings,
			updated_at = NOW()
		RETURNING `+settingsReturning,
		userID, callID, string(raw),
	))
	if err != nil {
		return s, fmt.Errorf("update settings of call %d: %w", callID, translateError(err))
	}
	return s, nil
}

// ToggleFavorite flips the favorite flag, which defaults to false
func (db *DB) ToggleFavorite(ctx context.Context, userID string, callID int64) (models.UserSettings, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	s, err := scanSettings(db.db.QueryRowContext(ctx, `
		INSERT INTO user_funding_calls (user_id, funding_call_id, settings)
		VALUES ($1, $2, '{"favorite": true}'::jsonb)
		ON CONFLICT (user_id, funding_call_id) DO UPDATE SET
			settings = jsonb_set(
				user_funding_calls.settings,
				'{favorite}',
				to_jsonb(NOT COALESCE((user_funding_calls.settings->>'favorite')::boolean, false))
			),
			updated_at = NOW()
		RETURNING `+settingsReturning,
		userID, callID,
	))
	if err != nil {
		return s, fmt.Errorf("toggle favorite of call %d: %w", callID, translateError(err))
	}
	return s, nil
}
