package query

import (
	"github.com/huandu/go-sqlbuilder"
)

// Builder builds SQL queries for feed filtering and scoring
type Builder interface {
	Build(limit int, offset int) (string, []interface{})
}

// ScoringStrategy defines how funding calls should be ranked
type ScoringStrategy interface {
	// ApplyScoring returns the scoring expression, registering its arguments on sb
	ApplyScoring(sb *sqlbuilder.SelectBuilder) string
}

// FilterStrategy adds WHERE conditions to the query
type FilterStrategy interface {
	// ApplyFilter adds filter conditions to the query builder
	ApplyFilter(sb *sqlbuilder.SelectBuilder)
}
