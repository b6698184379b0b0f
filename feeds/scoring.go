package feeds

import (
	"fmt"

	"foerderbande/query"

	"github.com/huandu/go-sqlbuilder"
)

// TimeDecayScoring scores funding calls based on how recently they were found
type TimeDecayScoring struct{}

func (s *TimeDecayScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder) string {
	return "(1.0 + (EXTRACT(EPOCH FROM (NOW() - funding_calls.created_at)) / 86400.0))^(-0.5)"
}

// DeadlineUrgencyScoring prefers calls whose deadline is close. Calls without
// a deadline get a neutral score, expired calls score zero.
type DeadlineUrgencyScoring struct{}

func (s *DeadlineUrgencyScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder) string {
	return `CASE
		WHEN funding_calls.deadline IS NULL THEN 0.25
		WHEN funding_calls.deadline < NOW() THEN 0.0
		ELSE 1.0 / (1.0 + EXTRACT(EPOCH FROM (funding_calls.deadline - NOW())) / 604800.0)
	END`
}

// KeywordScoring scores funding calls based on keyword matches
type KeywordScoring struct {
	Keywords string
}

func (s *KeywordScoring) ApplyScoring(sb *sqlbuilder.SelectBuilder) string {
	rank := fmt.Sprintf("ts_rank(funding_calls.search_vector, to_tsquery('simple', %s))", sb.Args.Add(s.Keywords))
	return fmt.Sprintf("%s / (1 + %s)", rank, rank)
}

var _ query.ScoringStrategy = (*TimeDecayScoring)(nil)
var _ query.ScoringStrategy = (*DeadlineUrgencyScoring)(nil)
var _ query.ScoringStrategy = (*KeywordScoring)(nil)
