package feeds

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"foerderbande/config"
	"foerderbande/models"

	log "github.com/sirupsen/logrus"
)

// Calls returns the feed's funding calls, best ranked first
func (f *Feed) Calls(ctx context.Context, q CallQuerier, limit int, offset int) ([]models.FundingCall, error) {
	if limit <= 0 {
		limit = f.Limit
	}

	query, args := f.builder.Build(limit, offset)
	calls, err := q.QueryFundingCalls(ctx, query, args)
	if err != nil {
		log.WithFields(log.Fields{
			"feed": f.ID,
		}).Error("Error getting feed: ", err)
		return nil, fmt.Errorf("feed %s: %w", f.ID, err)
	}

	return calls, nil
}

// RSS renders the feed as an RSS document, using base for the channel fields the feed leaves empty
func (f *Feed) RSS(ctx context.Context, q CallQuerier, base ChannelInfo, now time.Time) (string, error) {
	calls, err := f.Calls(ctx, q, 0, 0)
	if err != nil {
		return "", err
	}

	channel := base
	if f.Title != "" {
		channel.Title = f.Title
	}
	if f.Description != "" {
		channel.Description = f.Description
	}

	return RenderRSS(channel, calls, now)
}

// IDs returns the feed IDs in sorted order
func (m FeedMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// prepareKeywordQuery turns keyword patterns into a tsquery. A trailing
// asterisk becomes a prefix match, multi-word keywords become phrases.
func prepareKeywordQuery(keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}

	var terms []string
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		hasWildcard := strings.HasSuffix(keyword, "*")

		var words []string
		for _, word := range strings.Fields(keyword) {
			if word = sanitizeWord(word); word != "" {
				words = append(words, word)
			}
		}
		if len(words) == 0 {
			continue
		}
		if hasWildcard {
			words[len(words)-1] += ":*"
		}

		term := strings.Join(words, " <-> ")
		if len(words) > 1 {
			term = "(" + term + ")"
		}
		terms = append(terms, term)
	}

	return strings.Join(terms, " | ")
}

func sanitizeWord(word string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, word)
}

// InitializeFeeds builds the configured output feeds plus the default feed
func InitializeFeeds(cfg *config.Config) (FeedMap, error) {
	feeds := make(FeedMap)

	feeds[DefaultFeedID] = &Feed{
		ID:          DefaultFeedID,
		Title:       cfg.RSS.Title,
		Description: cfg.RSS.Description,
		Limit:       cfg.RSS.Limit,
		builder:     NewFeedQueryBuilder(),
	}

	for _, feedCfg := range cfg.Feeds {
		builder := NewFeedQueryBuilder()

		for _, filterCfg := range feedCfg.Filters {
			switch filterCfg.Type {
			case "source":
				builder.AddFilter(&SourceFilter{Sources: filterCfg.Sources})
			case "keyword":
				builder.AddFilter(&KeywordFilter{
					IncludeKeywords: prepareKeywordQuery(cfg.Keywords.Resolve(filterCfg.Include)),
					ExcludeKeywords: prepareKeywordQuery(cfg.Keywords.Resolve(filterCfg.Exclude)),
				})
			case "open_deadline":
				builder.AddFilter(&OpenDeadlineFilter{})
			default:
				return nil, fmt.Errorf("feed %s: unknown filter type %q", feedCfg.ID, filterCfg.Type)
			}
		}

		for _, scoringCfg := range feedCfg.Scoring {
			switch scoringCfg.Type {
			case "time_decay":
				builder.AddScoringLayer(&TimeDecayScoring{}, scoringCfg.Weight)
			case "deadline_urgency":
				builder.AddScoringLayer(&DeadlineUrgencyScoring{}, scoringCfg.Weight)
			case "keyword":
				keywords := prepareKeywordQuery(cfg.Keywords[scoringCfg.Keywords])
				if keywords == "" {
					continue
				}
				builder.AddScoringLayer(&KeywordScoring{Keywords: keywords}, scoringCfg.Weight)
			default:
				return nil, fmt.Errorf("feed %s: unknown scoring type %q", feedCfg.ID, scoringCfg.Type)
			}
		}

		limit := feedCfg.Limit
		if limit == 0 {
			limit = cfg.RSS.Limit
		}

		feeds[feedCfg.ID] = &Feed{
			ID:          feedCfg.ID,
			Title:       feedCfg.Title,
			Description: feedCfg.Description,
			Limit:       limit,
			builder:     builder,
		}
	}

	log.WithFields(log.Fields{
		"feeds": feeds.IDs(),
	}).Debug("Initialized feeds")

	return feeds, nil
}
