package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"foerderbande/config"
	"foerderbande/db"
	"foerderbande/feeds"
	"foerderbande/models"
	"foerderbande/server"

	"github.com/gofiber/fiber/v2"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	calls    []models.FundingCall
	sources  map[int64]models.Source
	settings map[int64]map[string]any
	pingErr  error

	lastQuery models.CallQuery
	lastUser  string
}

func newFakeStore() *fakeStore {
	desc := "Förderung für Vereine"
	created := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	return &fakeStore{
		calls: []models.FundingCall{
			{ID: 3, Title: "Kulturfonds 2025", Description: &desc, URL: "https://example.org/3", Source: "kulturstiftung", CreatedAt: created, ExtraData: map[string]any{}},
			{ID: 2, Title: "Jugendkulturpreis", URL: "https://example.org/2", Source: "land", CreatedAt: created.Add(-time.Hour), ExtraData: map[string]any{}},
			{ID: 1, Title: "Demokratie leben", URL: "https://example.org/1", Source: "bund", CreatedAt: created.Add(-2 * time.Hour), ExtraData: map[string]any{}},
		},
		sources: map[int64]models.Source{
			1: {ID: 1, Name: "kulturstiftung", URL: "https://example.org/feed", Type: models.SourceTypeRSS, IsActive: true},
		},
		settings: map[int64]map[string]any{},
	}
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) QueryFundingCalls(context.Context, string, []interface{}) ([]models.FundingCall, error) {
	return s.calls, nil
}

func (s *fakeStore) ListFundingCalls(_ context.Context, q models.CallQuery) ([]models.FundingCall, error) {
	s.lastQuery = q
	var out []models.FundingCall
	for _, call := range s.calls {
		if q.Cursor != 0 && call.ID >= q.Cursor {
			continue
		}
		if q.Source != "" && call.Source != q.Source {
			continue
		}
		out = append(out, call)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) GetFundingCall(_ context.Context, id int64) (models.FundingCall, error) {
	for _, call := range s.calls {
		if call.ID == id {
			return call, nil
		}
	}
	return models.FundingCall{}, fmt.Errorf("get funding call %d: %w", id, db.ErrNotFound)
}

func (s *fakeStore) ListSources(context.Context) ([]models.Source, error) {
	var out []models.Source
	for _, src := range s.sources {
		out = append(out, src)
	}
	return out, nil
}

func (s *fakeStore) GetSource(_ context.Context, id int64) (models.Source, error) {
	src, ok := s.sources[id]
	if !ok {
		return src, fmt.Errorf("get source %d: %w", id, db.ErrNotFound)
	}
	return src, nil
}

func (s *fakeStore) CreateSource(_ context.Context, src models.Source) (models.Source, error) {
	for _, existing := range s.sources {
		if existing.Name == src.Name {
			return src, fmt.Errorf("create source: %w", db.ErrConflict)
		}
	}
	src.ID = int64(len(s.sources) + 1)
	s.sources[src.ID] = src
	return src, nil
}

func (s *fakeStore) UpdateSource(_ context.Context, id int64, src models.Source) (models.Source, error) {
	if _, ok := s.sources[id]; !ok {
		return src, db.ErrNotFound
	}
	src.ID = id
	s.sources[id] = src
	return src, nil
}

func (s *fakeStore) DeleteSource(_ context.Context, id int64) error {
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("delete source %d: %w", id, db.ErrNotFound)
	}
	delete(s.sources, id)
	return nil
}

func (s *fakeStore) ToggleSourceActive(_ context.Context, id int64) (models.Source, error) {
	src, ok := s.sources[id]
	if !ok {
		return src, db.ErrNotFound
	}
	src.IsActive = !src.IsActive
	s.sources[id] = src
	return src, nil
}

func (s *fakeStore) ListUserSettings(_ context.Context, userID string) ([]models.UserSettings, error) {
	s.lastUser = userID
	var out []models.UserSettings
	for id, settings := range s.settings {
		out = append(out, models.UserSettings{UserID: userID, FundingCallID: id, Settings: settings})
	}
	return out, nil
}

func (s *fakeStore) UpdateUserSettings(_ context.Context, userID string, callID int64, patch map[string]any) (models.UserSettings, error) {
	s.lastUser = userID
	if _, err := s.GetFundingCall(context.Background(), callID); err != nil {
		return models.UserSettings{}, err
	}
	current, ok := s.settings[callID]
	if !ok {
		current = map[string]any{}
	}
	for k, v := range patch {
		current[k] = v
	}
	s.settings[callID] = current
	return models.UserSettings{UserID: userID, FundingCallID: callID, Settings: current}, nil
}

func (s *fakeStore) ToggleFavorite(ctx context.Context, userID string, callID int64) (models.UserSettings, error) {
	favorite, _ := s.settings[callID]["favorite"].(bool)
	return s.UpdateUserSettings(ctx, userID, callID, map[string]any{"favorite": !favorite})
}

func newApp(t *testing.T, store *fakeStore, adminKey string) *fiber.App {
	t.Helper()
	cfg := config.Default()
	cfg.Feeds = []config.FeedConfig{{ID: "offen", Title: "Offene Fristen", Filters: []config.FilterConfig{{Type: "open_deadline"}}}}
	feedMap, err := feeds.InitializeFeeds(cfg)
	require.NoError(t, err)

	return server.Server(&server.ServerConfig{
		Store:    store,
		Feeds:    feedMap,
		Channel:  feeds.ChannelFromConfig(cfg.RSS),
		AdminKey: adminKey,
	})
}

func do(t *testing.T, app *fiber.App, method, target, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestRootAndHello(t *testing.T) {
	app := newApp(t, newFakeStore(), "")

	resp, body := do(t, app, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message": "Funding Monitor API", "version": "0.1.0"}`, body)

	resp, body = do(t, app, http.MethodGet, "/hello/Kassel", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message": "Hello Kassel"}`, body)
}

func TestHealthz(t *testing.T) {
	store := newFakeStore()
	app := newApp(t, store, "")

	resp, _ := do(t, app, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	store.pingErr = errors.New("connection refused")
	resp, body := do(t, app, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "unavailable")
}

func TestMetrics(t *testing.T) {
	resp, body := do(t, newApp(t, newFakeStore(), ""), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "go_goroutines")
}

func TestListFundingCalls(t *testing.T) {
	store := newFakeStore()
	app := newApp(t, store, "")

	resp, body := do(t, app, http.MethodGet, "/api/funding-calls", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(server.NextCursorHeader))

	var calls []models.FundingCall
	require.NoError(t, json.Unmarshal([]byte(body), &calls))
	require.Len(t, calls, 3)
	assert.Equal(t, "Kulturfonds 2025", calls[0].Title)
	assert.Equal(t, "Förderung für Vereine", *calls[0].Description)
	assert.Nil(t, calls[1].Description)

	resp, body = do(t, app, http.MethodGet, "/api/funding-calls?limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(server.NextCursorHeader))

	resp, body = do(t, app, http.MethodGet, "/api/funding-calls?limit=2&cursor=2&q=%20demokratie%20", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(server.NextCursorHeader))
	require.NoError(t, json.Unmarshal([]byte(body), &calls))
	require.Len(t, calls, 1)
	assert.Equal(t, int64(1), calls[0].ID)
	assert.Equal(t, "demokratie", store.lastQuery.Search)
}

func TestListFundingCallsInvalidParams(t *testing.T) {
	app := newApp(t, newFakeStore(), "")

	for _, target := range []string{
		"/api/funding-calls?limit=0",
		"/api/funding-calls?limit=abc",
		"/api/funding-calls?limit=5000",
		"/api/funding-calls?cursor=-1",
	} {
		resp, body := do(t, app, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		assert.Contains(t, body, `"error"`, target)
	}
}

func TestGetFundingCall(t *testing.T) {
	app := newApp(t, newFakeStore(), "")

	resp, body := do(t, app, http.MethodGet, "/api/funding-calls/2", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Jugendkulturpreis")

	resp, body = do(t, app, http.MethodGet, "/api/funding-calls/99", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error": "funding call not found"}`, body)

	resp, _ = do(t, app, http.MethodGet, "/api/funding-calls/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFundingCallsRSS(t *testing.T) {
	app := newApp(t, newFakeStore(), "")

	resp, body := do(t, app, http.MethodGet, "/rss/funding-calls", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/rss+xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, "inline; filename=funding-calls.rss", resp.Header.Get("Content-Disposition"))

	feed, err := gofeed.NewParser().ParseString(body)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRSSTitle, feed.Title)
	require.Len(t, feed.Items, 3)
	assert.Equal(t, "https://example.org/3", feed.Items[0].Link)

	resp, _ = do(t, app, http.MethodGet, "/rss/feeds/offen", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "inline; filename=offen.rss", resp.Header.Get("Content-Disposition"))

	resp, body = do(t, app, http.MethodGet, "/rss/feeds/unbekannt", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error": "feed not found"}`, body)
}

func TestListFeeds(t *testing.T) {
	resp, body := do(t, newApp(t, newFakeStore(), ""), http.MethodGet, "/api/feeds", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "all", infos[0]["id"])
	assert.Equal(t, "/rss/funding-calls", infos[0]["url"])
	assert.Equal(t, "offen", infos[1]["id"])
	assert.Equal(t, "/rss/feeds/offen", infos[1]["url"])
}

func TestSourcesRequireAdminKey(t *testing.T) {
	body := `{"name": "land", "url": "https://land.example/feed"}`

	resp, _ := do(t, newApp(t, newFakeStore(), ""), http.MethodPost, "/api/sources", body, map[string]string{server.AdminKeyHeader: "geheim"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	app := newApp(t, newFakeStore(), "geheim")
	resp, _ = do(t, app, http.MethodPost, "/api/sources", body, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/api/sources", body, map[string]string{server.AdminKeyHeader: "falsch"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/api/sources", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSource(t *testing.T) {
	store := newFakeStore()
	app := newApp(t, store, "geheim")
	admin := map[string]string{server.AdminKeyHeader: "geheim"}

	resp, body := do(t, app, http.MethodPost, "/api/sources", `{"name": "land", "url": "https://land.example/feed", "source_type": "api"}`, admin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Source
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.Equal(t, int64(2), created.ID)
	assert.Equal(t, models.SourceTypeAPI, created.Type)
	assert.True(t, created.IsActive)

	resp, _ = do(t, app, http.MethodPost, "/api/sources", `{"name": "land", "url": "https://land.example/other"}`, admin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, app, http.MethodPost, "/api/sources", `{"name": "", "url": "kein link", "source_type": "ftp"}`, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.JSONEq(t, `{
		"error": "validation failed",
		"fields": {"name": "required", "url": "url", "source_type": "oneof"}
	}`, body)

	resp, _ = do(t, app, http.MethodPost, "/api/sources", `{`, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateSourceIsPartial(t *testing.T) {
	store := newFakeStore()
	app := newApp(t, store, "geheim")
	admin := map[string]string{server.AdminKeyHeader: "geheim"}

	resp, _ := do(t, app, http.MethodPatch, "/api/sources/1", `{"description": "Bundesweite Kulturförderung"}`, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := store.sources[1]
	assert.Equal(t, "Bundesweite Kulturförderung", updated.Description)
	assert.Equal(t, "kulturstiftung", updated.Name)
	assert.Equal(t, "https://example.org/feed", updated.URL)
	assert.True(t, updated.IsActive)

	resp, _ = do(t, app, http.MethodPatch, "/api/sources/7", `{"description": "x"}`, admin)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestToggleAndDeleteSource(t *testing.T) {
	store := newFakeStore()
	app := newApp(t, store, "geheim")
	admin := map[string]string{server.AdminKeyHeader: "geheim"}

	resp, body := do(t, app, http.MethodPost, "/api/sources/1/toggle", "", admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"is_active":false`)

	resp, _ = do(t, app, http.MethodDelete, "/api/sources/1", "", admin)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, store.sources)

	resp, _ = do(t, app, http.MethodDelete, "/api/sources/1", "", admin)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUserSettings(t *testing.T) {
	store := newFakeStore()
	app := newApp(t, store, "")
	user := map[string]string{server.UserIDHeader: "anna"}

	resp, _ := do(t, app, http.MethodGet, "/api/me/settings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := do(t, app, http.MethodPatch, "/api/me/funding-calls/3/settings", `{"notes": "Antrag vorbereiten", "priority": "high", "color": "rot"}`, user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Antrag vorbereiten")
	assert.Equal(t, "anna", store.lastUser)
	assert.Equal(t, "rot", store.settings[3]["color"])

	resp, body = do(t, app, http.MethodPatch, "/api/me/funding-calls/3/settings", `{"priority": "urgent", "reminder_date": "31.01.2025"}`, user)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.JSONEq(t, `{
		"error": "validation failed",
		"fields": {"priority": "oneof", "reminder_date": "datetime"}
	}`, body)

	resp, _ = do(t, app, http.MethodPatch, "/api/me/funding-calls/3/settings", `{}`, user)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPatch, "/api/me/funding-calls/99/settings", `{"notes": "x"}`, user)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, http.MethodGet, "/api/me/settings", "", user)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestToggleFavorite(t *testing.T) {
	store := newFakeStore()
	app := newApp(t, store, "")
	user := map[string]string{server.UserIDHeader: "anna"}

	resp, _ := do(t, app, http.MethodPost, "/api/me/funding-calls/2/favorite", "", user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, store.settings[2]["favorite"])

	resp, _ = do(t, app, http.MethodPost, "/api/me/funding-calls/2/favorite", "", user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, store.settings[2]["favorite"])
}

func TestRemoveUnknownSSEClient(t *testing.T) {
	resp, body := do(t, newApp(t, newFakeStore(), ""), http.MethodDelete, "/api/funding-calls/sse?key=unknown", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}
