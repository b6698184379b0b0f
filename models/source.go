package models

import "time"

type SourceType string

const (
	SourceTypeRSS     SourceType = "rss"
	SourceTypeAPI     SourceType = "api"
	SourceTypeWebsite SourceType = "website"
)

// Source is a configured origin of funding calls
type Source struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	Type            SourceType `json:"source_type"`
	Description     string     `json:"description,omitempty"`
	IsActive        bool       `json:"is_active"`
	Selector        string     `json:"selector,omitempty"`
	Languages       []string   `json:"languages"`
	Keywords        []string   `json:"keywords"`
	ExcludeKeywords []string   `json:"exclude_keywords"`
	LastPolledAt    *time.Time `json:"last_polled_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	FailureCount    int        `json:"failure_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SourceInput is the payload accepted when creating or updating a source
type SourceInput struct {
	Name            string   `json:"name" validate:"required,max=200"`
	URL             string   `json:"url" validate:"required,url"`
	Type            string   `json:"source_type" validate:"omitempty,oneof=rss api website"`
	Description     string   `json:"description" validate:"max=2000"`
	IsActive        *bool    `json:"is_active"`
	Selector        string   `json:"selector" validate:"max=500"`
	Languages       []string `json:"languages" validate:"dive,len=2"`
	Keywords        []string `json:"keywords"`
	ExcludeKeywords []string `json:"exclude_keywords"`
}

// ToSource converts the input to a Source, applying defaults for missing fields
func (in SourceInput) ToSource() Source {
	s := Source{
		Name:            in.Name,
		URL:             in.URL,
		Type:            SourceType(in.Type),
		Description:     in.Description,
		IsActive:        true,
		Selector:        in.Selector,
		Languages:       in.Languages,
		Keywords:        in.Keywords,
		ExcludeKeywords: in.ExcludeKeywords,
	}
	if s.Type == "" {
		s.Type = SourceTypeRSS
	}
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	return s
}

// Input returns the source as an editable input, used to apply partial updates
func (s Source) Input() SourceInput {
	active := s.IsActive
	return SourceInput{
		Name:            s.Name,
		URL:             s.URL,
		Type:            string(s.Type),
		Description:     s.Description,
		IsActive:        &active,
		Selector:        s.Selector,
		Languages:       s.Languages,
		Keywords:        s.Keywords,
		ExcludeKeywords: s.ExcludeKeywords,
	}
}
