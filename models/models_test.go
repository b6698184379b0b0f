package models_test

import (
	"foerderbande/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryID(t *testing.T) {
	// md5("https://example.org/callTitle")
	id := models.EntryID("https://example.org/call", "Title")
	assert.Len(t, id, 32)
	assert.Equal(t, id, models.EntryID("https://example.org/call", "Title"))
	assert.NotEqual(t, id, models.EntryID("https://example.org/call", "Other title"))
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", models.EntryID("", ""))
}

func TestParseDeadline(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		ok       bool
		expected time.Time
	}{
		{name: "empty", value: "", ok: false},
		{name: "date only", value: "2025-03-31", ok: true, expected: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)},
		{name: "rfc3339 zulu", value: "2025-03-31T12:00:00Z", ok: true, expected: time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)},
		{name: "naive datetime", value: "2025-03-31T12:30:00", ok: true, expected: time.Date(2025, 3, 31, 12, 30, 0, 0, time.UTC)},
		{name: "free text", value: "Ende März", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := models.ParseDeadline(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.expected.Equal(parsed))
			}
		})
	}
}

func TestSourceInputDefaults(t *testing.T) {
	inactive := false
	tests := []struct {
		name   string
		input  models.SourceInput
		typ    models.SourceType
		active bool
	}{
		{name: "defaults", input: models.SourceInput{Name: "a", URL: "https://a.example"}, typ: models.SourceTypeRSS, active: true},
		{name: "explicit", input: models.SourceInput{Name: "b", URL: "https://b.example", Type: "api", IsActive: &inactive}, typ: models.SourceTypeAPI, active: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.input.ToSource()
			assert.Equal(t, tt.typ, s.Type)
			assert.Equal(t, tt.active, s.IsActive)
		})
	}
}

func TestSourceInputRoundTrip(t *testing.T) {
	source := models.Source{
		Name:      "kulturstiftung",
		URL:       "https://example.org/feed",
		Type:      models.SourceTypeWebsite,
		IsActive:  false,
		Selector:  "div.calls a",
		Languages: []string{"de"},
	}

	in := source.Input()
	assert.Equal(t, "website", in.Type)
	assert.Equal(t, source.Name, in.ToSource().Name)
	assert.Equal(t, source.Selector, in.ToSource().Selector)
	assert.False(t, in.ToSource().IsActive)
}
