package feeds

import (
	"fmt"
	"strings"

	"foerderbande/db"
	"foerderbande/query"

	"github.com/huandu/go-sqlbuilder"
)

// FeedQueryBuilder builds feed queries with scoring and filters
type FeedQueryBuilder struct {
	scoringLayers []scoringLayer
	filters       []query.FilterStrategy
}

type scoringLayer struct {
	strategy query.ScoringStrategy
	weight   float64
}

func NewFeedQueryBuilder() *FeedQueryBuilder {
	return &FeedQueryBuilder{
		scoringLayers: make([]scoringLayer, 0),
		filters:       make([]query.FilterStrategy, 0),
	}
}

func (b *FeedQueryBuilder) AddScoringLayer(strategy query.ScoringStrategy, weight float64) {
	b.scoringLayers = append(b.scoringLayers, scoringLayer{
		strategy: strategy,
		weight:   weight,
	})
}

func (b *FeedQueryBuilder) AddFilter(filter query.FilterStrategy) {
	b.filters = append(b.filters, filter)
}

func (b *FeedQueryBuilder) Build(limit int, offset int) (string, []interface{}) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()

	sb.Select(db.CallColumns...)

	// Sum of weighted scores
	if len(b.scoringLayers) > 0 {
		var scoreTerms []string
		for _, layer := range b.scoringLayers {
			expr := layer.strategy.ApplyScoring(sb)
			scoreTerms = append(scoreTerms, fmt.Sprintf("(%f * (%s))", layer.weight, expr))
		}
		sb.SelectMore(fmt.Sprintf("(%s) AS score", strings.Join(scoreTerms, " + ")))
	}

	sb.From("funding_calls")

	for _, filter := range b.filters {
		filter.ApplyFilter(sb)
	}

	// Order by score if we have scoring layers, otherwise by time
	if len(b.scoringLayers) > 0 {
		sb.OrderBy("score DESC", "funding_calls.created_at DESC", "funding_calls.id DESC")
	} else {
		sb.OrderBy("funding_calls.created_at DESC", "funding_calls.id DESC")
	}

	sb.Limit(limit)
	if offset > 0 {
		sb.Offset(offset)
	}

	return sb.Build()
}

var _ query.Builder = (*FeedQueryBuilder)(nil)
