package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"foerderbande/models"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

const (
	DefaultRSSTitle       = "Fördermittel Monitor - Schlachthof Kassel"
	DefaultRSSLink        = "http://localhost:8000/rss/funding-calls"
	DefaultRSSDescription = "Aktuelle Fördermittelausschreibungen für gemeinnützige Organisationen"
	DefaultRSSLanguage    = "de"
	DefaultRSSGenerator   = "Funding Monitor v0.1.0"
	DefaultRSSLimit       = 50

	// DefaultFeedID is the id of the built-in feed of all funding calls
	DefaultFeedID = "all"
)

// RSSConfig holds the channel metadata of the generated RSS feeds
type RSSConfig struct {
	Title       string `toml:"title" yaml:"title"`
	Link        string `toml:"link" yaml:"link" validate:"omitempty,url"`
	Description string `toml:"description" yaml:"description"`
	Language    string `toml:"language" yaml:"language"`
	Generator   string `toml:"generator" yaml:"generator"`
	Limit       int    `toml:"limit" yaml:"limit" validate:"gte=0,lte=1000"`
}

// Keywords holds named keyword lists referenced by feed filters and scoring
type Keywords map[string][]string

// SourceConfig is a source declared in the config file
type SourceConfig struct {
	Name            string   `toml:"name" yaml:"name" validate:"required"`
	URL             string   `toml:"url" yaml:"url" validate:"required,url"`
	Type            string   `toml:"type" yaml:"type" validate:"omitempty,oneof=rss api website"`
	Description     string   `toml:"description" yaml:"description"`
	Enabled         *bool    `toml:"enabled" yaml:"enabled"`
	Selector        string   `toml:"selector" yaml:"selector"`
	Languages       []string `toml:"languages" yaml:"languages"`
	Keywords        []string `toml:"keywords" yaml:"keywords"`
	ExcludeKeywords []string `toml:"exclude_keywords" yaml:"exclude_keywords"`
}

// FilterConfig represents a filter of an output feed
type FilterConfig struct {
	Type    string   `toml:"type" yaml:"type" validate:"required,oneof=source keyword open_deadline"`
	Sources []string `toml:"sources" yaml:"sources"`
	Include []string `toml:"include" yaml:"include"` // References to keyword lists
	Exclude []string `toml:"exclude" yaml:"exclude"` // References to keyword lists
}

// ScoringConfig represents a scoring strategy of an output feed
type ScoringConfig struct {
	Type     string  `toml:"type" yaml:"type" validate:"required,oneof=time_decay deadline_urgency keyword"`
	Weight   float64 `toml:"weight" yaml:"weight"`
	Keywords string  `toml:"keywords" yaml:"keywords"` // Reference to keyword list
}

// FeedConfig is an output feed published under /rss/feeds/:id
type FeedConfig struct {
	ID          string          `toml:"id" yaml:"id" validate:"required,max=64"`
	Title       string          `toml:"title" yaml:"title"`
	Description string          `toml:"description" yaml:"description"`
	Limit       int             `toml:"limit" yaml:"limit" validate:"gte=0,lte=1000"`
	Filters     []FilterConfig  `toml:"filters" yaml:"filters" validate:"dive"`
	Scoring     []ScoringConfig `toml:"scoring" yaml:"scoring" validate:"dive"`
}

// Config represents the top-level configuration
type Config struct {
	RSS      RSSConfig      `toml:"rss" yaml:"rss"`
	Keywords Keywords       `toml:"keywords" yaml:"keywords"`
	Sources  []SourceConfig `toml:"sources" yaml:"sources" validate:"dive"`
	Feeds    []FeedConfig   `toml:"feeds" yaml:"feeds" validate:"dive"`
}

// yamlFeed is an entry of the YAML feeds list. Entries with a url and no id
// are sources in the `feeds: [{name, url}]` shape of older feeds.yaml files.
type yamlFeed struct {
	FeedConfig `yaml:",inline"`
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
}

type yamlConfig struct {
	RSS      RSSConfig      `yaml:"rss"`
	Keywords Keywords       `yaml:"keywords"`
	Sources  []SourceConfig `yaml:"sources"`
	Feeds    []yamlFeed     `yaml:"feeds"`
}

func (y yamlConfig) config() Config {
	c := Config{RSS: y.RSS, Keywords: y.Keywords, Sources: y.Sources}
	for _, f := range y.Feeds {
		if f.ID == "" && f.URL != "" {
			c.Sources = append(c.Sources, SourceConfig{Name: f.Name, URL: f.URL})
			continue
		}
		c.Feeds = append(c.Feeds, f.FeedConfig)
	}
	return c
}

// Default returns a configuration without sources or custom feeds
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a TOML or YAML (by file extension) configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw yamlConfig
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		config = raw.config()
	default:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.RSS.Title == "" {
		c.RSS.Title = DefaultRSSTitle
	}
	if c.RSS.Link == "" {
		c.RSS.Link = DefaultRSSLink
	}
	if c.RSS.Description == "" {
		c.RSS.Description = DefaultRSSDescription
	}
	if c.RSS.Language == "" {
		c.RSS.Language = DefaultRSSLanguage
	}
	if c.RSS.Generator == "" {
		c.RSS.Generator = DefaultRSSGenerator
	}
	if c.RSS.Limit == 0 {
		c.RSS.Limit = DefaultRSSLimit
	}
	if c.Keywords == nil {
		c.Keywords = Keywords{}
	}
	for i := range c.Sources {
		if c.Sources[i].Type == "" {
			c.Sources[i].Type = string(models.SourceTypeRSS)
		}
	}
	for i := range c.Feeds {
		for j := range c.Feeds[i].Scoring {
			if c.Feeds[i].Scoring[j].Weight == 0 {
				c.Feeds[i].Scoring[j].Weight = 1.0
			}
		}
	}
}

// Validate checks struct tags and cross references between feeds and keyword lists
func (c *Config) Validate() error {
	var errs []error

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed on %q", fe.Namespace(), fe.Tag()))
		}
	}

	seenSources := make(map[string]bool)
	for _, s := range c.Sources {
		if seenSources[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate source name %q", s.Name))
		}
		seenSources[s.Name] = true
	}

	seenFeeds := make(map[string]bool)
	for _, f := range c.Feeds {
		if seenFeeds[f.ID] {
			errs = append(errs, fmt.Errorf("duplicate feed id %q", f.ID))
		}
		seenFeeds[f.ID] = true
		if f.ID == DefaultFeedID {
			errs = append(errs, fmt.Errorf("feed id %q is reserved for the feed of all funding calls", f.ID))
		}

		for _, filter := range f.Filters {
			for _, ref := range append(append([]string{}, filter.Include...), filter.Exclude...) {
				if _, ok := c.Keywords[ref]; !ok {
					errs = append(errs, fmt.Errorf("feed %q references unknown keyword list %q", f.ID, ref))
				}
			}
		}
		for _, scoring := range f.Scoring {
			if scoring.Type != "keyword" {
				continue
			}
			if _, ok := c.Keywords[scoring.Keywords]; !ok {
				errs = append(errs, fmt.Errorf("feed %q references unknown keyword list %q", f.ID, scoring.Keywords))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ToSource converts a configured source into the stored representation
func (s SourceConfig) ToSource() models.Source {
	enabled := s.Enabled == nil || *s.Enabled
	return models.Source{
		Name:            s.Name,
		URL:             s.URL,
		Type:            models.SourceType(s.Type),
		Description:     s.Description,
		IsActive:        enabled,
		Selector:        s.Selector,
		Languages:       s.Languages,
		Keywords:        s.Keywords,
		ExcludeKeywords: s.ExcludeKeywords,
	}
}

// Resolve returns the union of the referenced keyword lists
func (k Keywords) Resolve(refs []string) []string {
	var out []string
	for _, ref := range refs {
		out = append(out, k[ref]...)
	}
	return out
}
