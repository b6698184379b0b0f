package poller_test

import (
	"context"
	"testing"
	"time"

	"foerderbande/models"
	"foerderbande/poller"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasEnoughLetters(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{
			name:     "empty string",
			text:     "",
			expected: false,
		},
		{
			name:     "only special characters",
			text:     "!@#$%^&*()",
			expected: false,
		},
		{
			name:     "dates and amounts",
			text:     "31.12.2024 - 100.000 €",
			expected: false,
		},
		{
			name:     "enough regular letters",
			text:     "Neue Ausschreibung für Vereine",
			expected: true,
		},
		{
			name:     "enough letters with German characters",
			text:     "Förderung für Größere Maßnahmen",
			expected: true,
		},
		{
			name:     "mixed content with enough letters",
			text:     "Frist 31.01.2025: Jugendkulturpreis",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, poller.HasEnoughLetters(tt.text))
		})
	}
}

func TestContainsRepetitivePattern(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{
			name:     "empty string",
			text:     "",
			expected: false,
		},
		{
			name:     "short text",
			text:     "hi",
			expected: false,
		},
		{
			name:     "normal title",
			text:     "Förderprogramm Soziokultur 2025",
			expected: false,
		},
		{
			name:     "amounts are not repetition",
			text:     "Zuschüsse bis 100000 Euro",
			expected: false,
		},
		{
			name:     "repeated word twice",
			text:     "Kultur: Kulturförderung",
			expected: false,
		},
		{
			name:     "repeating characters",
			text:     "Förderung!!!! jeeeeetzt",
			expected: true,
		},
		{
			name:     "repeating pattern",
			text:     "hello hello hello hello",
			expected: true,
		},
		{
			name:     "repeating pattern with case variation",
			text:     "Hello HELLO hello HeLLo",
			expected: true,
		},
		{
			name:     "repeating emoji",
			text:     "🎉🎉🎉🎉🎉",
			expected: true,
		},
		{
			name:     "repeating two symbols",
			text:     "sksksksksksksksk what is this",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, poller.ContainsRepetitivePattern(tt.text))
		})
	}
}

func TestCleanHTML(t *testing.T) {
	assert.Equal(t, "Förderung für Vereine & Initiativen", poller.CleanHTML("<p>Förderung <em>für</em>\n Vereine &amp; Initiativen</p>"))
	assert.Equal(t, "", poller.CleanHTML("  <br/> "))
}

func TestMatchesKeywords(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		include  []string
		exclude  []string
		expected bool
	}{
		{name: "no lists", text: "Alles", expected: true},
		{name: "include matches", text: "Förderung Jugendarbeit", include: []string{"jugend*"}, expected: true},
		{name: "include case insensitive", text: "KULTURFONDS", include: []string{"kultur"}, expected: true},
		{name: "include missing", text: "Sportförderung", include: []string{"kultur", "jugend"}, expected: false},
		{name: "exclude wins", text: "Kultur für Unternehmen", include: []string{"kultur"}, exclude: []string{"unternehmen"}, expected: false},
		{name: "blank keyword ignored", text: "Kultur", include: []string{" ", "kultur"}, exclude: []string{""}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, poller.MatchesKeywords(tt.text, tt.include, tt.exclude))
		})
	}
}

func TestProcessSkipsItemsWithoutTitleAndLink(t *testing.T) {
	store := newFakeStore()
	p := poller.NewEntryProcessor(store, nil, testConfig())

	result, call, err := p.Process(context.Background(), models.Source{Name: "x"}, models.FetchedItem{Description: "nur Text"})
	require.NoError(t, err)
	assert.Equal(t, poller.ResultSkipped, result)
	assert.Nil(t, call)
	assert.Empty(t, store.entries)
}

func TestProcessUsesGUIDWhenLinkMissing(t *testing.T) {
	store := newFakeStore()
	p := poller.NewEntryProcessor(store, nil, testConfig())

	result, call, err := p.Process(context.Background(), models.Source{Name: "x"}, models.FetchedItem{
		Title: "Programm Engagiertes Ehrenamt",
		GUID:  "https://example.org/ehrenamt",
	})
	require.NoError(t, err)
	assert.Equal(t, poller.ResultInserted, result)
	require.NotNil(t, call)
	assert.Equal(t, "https://example.org/ehrenamt", call.URL)
	assert.Nil(t, call.Description)
}

func TestProcessUsesLinkAsTitle(t *testing.T) {
	store := newFakeStore()
	p := poller.NewEntryProcessor(store, nil, testConfig())

	result, call, err := p.Process(context.Background(), models.Source{Name: "x"}, models.FetchedItem{
		Link:        "https://example.org/ausschreibung",
		Description: "Eine neue Ausschreibung",
	})
	require.NoError(t, err)
	assert.Equal(t, poller.ResultInserted, result)
	assert.Equal(t, "https://example.org/ausschreibung", call.Title)
}

func TestProcessDuplicateLinkUpdates(t *testing.T) {
	store := newFakeStore()
	p := poller.NewEntryProcessor(store, nil, testConfig())
	source := models.Source{Name: "x"}
	item := models.FetchedItem{Title: "Förderaufruf Demokratie leben", Link: "https://example.org/demokratie"}

	first, _, err := p.Process(context.Background(), source, item)
	require.NoError(t, err)

	item.Title = "Förderaufruf Demokratie leben (verlängert)"
	second, call, err := p.Process(context.Background(), source, item)
	require.NoError(t, err)

	assert.Equal(t, poller.ResultInserted, first)
	assert.Equal(t, poller.ResultUpdated, second)
	assert.Equal(t, "Förderaufruf Demokratie leben (verlängert)", call.Title)
	assert.Equal(t, 1, store.callCount())
	assert.Len(t, store.entries, 2)
}

func TestDetectLanguage(t *testing.T) {
	cfg := testConfig()
	cfg.DetectLanguage = true
	p := poller.NewEntryProcessor(newFakeStore(), nil, cfg)

	german := "Die Stiftung fördert Projekte der kulturellen Bildung für Kinder und Jugendliche in Hessen."
	english := "The foundation supports cultural education projects for children and young people in the region."

	lang, ok := p.DetectLanguage(german, []string{"de"})
	assert.True(t, ok)
	assert.Equal(t, "de", lang)

	_, ok = p.DetectLanguage(english, []string{"de"})
	assert.False(t, ok)

	lang, ok = p.DetectLanguage("Kurzer Titel", []string{"de"})
	assert.True(t, ok)
	assert.Empty(t, lang)

	_, ok = p.DetectLanguage(english, nil)
	assert.True(t, ok)
}

func TestProcessPersistsChangedDescription(t *testing.T) {
	store := newFakeStore()
	seen, err := poller.NewMemorySeenCache(time.Hour)
	require.NoError(t, err)
	defer seen.Close()

	p := poller.NewEntryProcessor(store, seen, testConfig())
	source := models.Source{Name: "x"}
	item := models.FetchedItem{
		Title:       "Förderaufruf Nachbarschaftshilfe",
		Link:        "https://example.org/nachbarschaft",
		Description: "alt",
	}

	first, _, err := p.Process(context.Background(), source, item)
	require.NoError(t, err)
	assert.Equal(t, poller.ResultInserted, first)

	again, call, err := p.Process(context.Background(), source, item)
	require.NoError(t, err)
	assert.Equal(t, poller.ResultDuplicate, again)
	assert.Nil(t, call)

	item.Description = "neu und aktualisiert"
	changed, call, err := p.Process(context.Background(), source, item)
	require.NoError(t, err)
	assert.Equal(t, poller.ResultUpdated, changed)
	require.NotNil(t, call)
	require.NotNil(t, call.Description)
	assert.Equal(t, "neu und aktualisiert", *call.Description)

	entry := store.entries[models.EntryID(item.Link, item.Title)]
	assert.Equal(t, "neu und aktualisiert", entry.Description)
	assert.Equal(t, 1, store.callCount())
}

func TestProcessStoresRawEntryOfFilteredItems(t *testing.T) {
	tests := []struct {
		name   string
		source models.Source
		item   models.FetchedItem
	}{
		{
			name:   "keyword miss",
			source: models.Source{Name: "x", Keywords: []string{"kultur"}},
			item:   models.FetchedItem{Title: "Sportförderung für Vereine", Link: "https://example.org/sport"},
		},
		{
			name:   "title without link",
			source: models.Source{Name: "x"},
			item:   models.FetchedItem{Title: "Förderprogramm ohne Link"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			p := poller.NewEntryProcessor(store, nil, testConfig())

			result, call, err := p.Process(context.Background(), tt.source, tt.item)
			require.NoError(t, err)
			assert.Equal(t, poller.ResultSkipped, result)
			assert.Nil(t, call)
			assert.Equal(t, 0, store.callCount())

			entry, ok := store.entries[models.EntryID(tt.item.Link, tt.item.Title)]
			require.True(t, ok)
			assert.Equal(t, tt.item.Title, entry.Title)
			assert.Equal(t, tt.item.Link, entry.Link)
		})
	}
}
