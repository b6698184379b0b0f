package feeds

import (
	"fmt"

	"foerderbande/query"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
)

// SourceFilter keeps funding calls from the listed sources
type SourceFilter struct {
	Sources []string
}

func (f *SourceFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if len(f.Sources) > 0 {
		sb.Where(fmt.Sprintf("funding_calls.source = ANY(%s)", sb.Args.Add(pq.Array(f.Sources))))
	}
}

// OpenDeadlineFilter drops funding calls whose deadline has passed
type OpenDeadlineFilter struct{}

func (f *OpenDeadlineFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	sb.Where(sb.Or(
		sb.IsNull("funding_calls.deadline"),
		"funding_calls.deadline >= NOW()",
	))
}

// KeywordFilter filters funding calls based on included and excluded keywords
type KeywordFilter struct {
	IncludeKeywords string
	ExcludeKeywords string
}

func (f *KeywordFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if f.IncludeKeywords != "" {
		sb.Where(fmt.Sprintf(
			"funding_calls.search_vector @@ to_tsquery('simple', %s)",
			sb.Args.Add(f.IncludeKeywords),
		))
	}

	if f.ExcludeKeywords != "" {
		sb.Where(fmt.Sprintf(
			"NOT (funding_calls.search_vector @@ to_tsquery('simple', %s))",
			sb.Args.Add(f.ExcludeKeywords),
		))
	}
}

var _ query.FilterStrategy = (*SourceFilter)(nil)
var _ query.FilterStrategy = (*OpenDeadlineFilter)(nil)
var _ query.FilterStrategy = (*KeywordFilter)(nil)
