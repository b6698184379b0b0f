package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var settingsCols = []string{"user_id", "funding_call_id", "settings", "created_at", "updated_at"}

func TestUpdateUserSettingsMerges(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("settings = user_funding_calls.settings || EXCLUDED.settings")).
		WithArgs("user-1", int64(4), `{"notes":"Antrag vorbereiten"}`).
		WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow("user-1", 4, []byte(`{"favorite":true,"notes":"Antrag vorbereiten"}`), now, now))

	s, err := db.UpdateUserSettings(context.Background(), "user-1", 4, map[string]any{"notes": "Antrag vorbereiten"})
	require.NoError(t, err)
	assert.Equal(t, true, s.Settings["favorite"])
	assert.Equal(t, "Antrag vorbereiten", s.Settings["notes"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserSettingsUnknownCall(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO user_funding_calls")).
		WillReturnError(&pq.Error{Code: "23503"})

	_, err := db.UpdateUserSettings(context.Background(), "user-1", 404, map[string]any{"favorite": true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleFavorite(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("jsonb_set")).
		WithArgs("user-1", int64(4)).
		WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow("user-1", 4, []byte(`{"favorite":false}`), now, now))

	s, err := db.ToggleFavorite(context.Background(), "user-1", 4)
	require.NoError(t, err)
	assert.Equal(t, false, s.Settings["favorite"])
}

func TestListUserSettings(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_funding_calls")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow("user-1", 4, []byte(`{"priority":"high"}`), now, now).
			AddRow("user-1", 2, []byte(`{}`), now, now))

	settings, err := db.ListUserSettings(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, int64(4), settings[0].FundingCallID)
	assert.Equal(t, "high", settings[0].Settings["priority"])
}
