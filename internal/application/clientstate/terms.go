package clientstate

import (
	"strings"

	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

// ParseTerms splits a search string on whitespace, dropping empty terms.
// A whitespace-only string yields no terms.
func ParseTerms(s string) []string {
	return strings.Fields(s)
}

// SearchQuery matches s against column. In per-term mode every term must
// partially match; in full text mode the terms are matched as one string.
// A blank s adds no predicate.
func SearchQuery(column, s string, mode query.SearchMode) query.Option {
	return query.WithSearch(column, ParseTerms(s), mode)
}
