// Package query describes backend selects independently of the storage
// engine: equality conditions, a text search, ordering and paging.
package query

import "strings"

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

type PageFilter struct {
	Page     int
	PageSize int
}

// Paged reports whether a page was requested. Unpaged queries return every
// matching row, which is what store bulk fetches use.
func (f PageFilter) Paged() bool {
	return f.Page > 0
}

func (f PageFilter) Offset() int {
	if f.Page <= 0 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}

func (f PageFilter) Limit() int {
	if f.PageSize <= 0 {
		return DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return f.PageSize
}

type SortFilter struct {
	SortBy    string
	SortOrder string
}

func (f SortFilter) IsDescending() bool {
	return strings.EqualFold(f.SortOrder, "desc")
}

func (f SortFilter) OrderClause() string {
	if f.SortBy == "" {
		return ""
	}
	order := "ASC"
	if f.IsDescending() {
		order = "DESC"
	}
	return f.SortBy + " " + order
}

// Condition is an equality predicate on one column.
type Condition struct {
	Column string
	Value  any
}

type SearchMode string

const (
	// SearchPerTerm requires every term to partially match, case-insensitively.
	SearchPerTerm SearchMode = "per_term"
	// SearchFullText matches the combined terms with the engine's text search.
	SearchFullText SearchMode = "full_text"
)

func ParseSearchMode(s string) SearchMode {
	if SearchMode(s) == SearchFullText {
		return SearchFullText
	}
	return SearchPerTerm
}

type TextSearch struct {
	Column string
	Terms  []string
	Mode   SearchMode
}

// Combined joins the terms back into one string for full text engines.
func (s TextSearch) Combined() string {
	return strings.Join(s.Terms, " ")
}

type Query struct {
	Conditions []Condition
	// AnyOf holds alternatives of which at least one must hold, ANDed with
	// Conditions.
	AnyOf  []Condition
	Search *TextSearch
	PageFilter
	SortFilter
}

type Option func(*Query)

func Where(column string, value any) Option {
	return func(q *Query) {
		q.Conditions = append(q.Conditions, Condition{Column: column, Value: value})
	}
}

func WhereAny(conds ...Condition) Option {
	return func(q *Query) {
		q.AnyOf = append(q.AnyOf, conds...)
	}
}

func WithSearch(column string, terms []string, mode SearchMode) Option {
	return func(q *Query) {
		if len(terms) == 0 {
			return
		}
		q.Search = &TextSearch{Column: column, Terms: terms, Mode: mode}
	}
}

func WithPage(page, pageSize int) Option {
	return func(q *Query) {
		q.Page = page
		q.PageSize = pageSize
	}
}

func WithSort(sortBy, sortOrder string) Option {
	return func(q *Query) {
		q.SortBy = sortBy
		q.SortOrder = sortOrder
	}
}

// New builds a query ordered newest first unless a sort option overrides it.
func New(opts ...Option) Query {
	q := Query{
		SortFilter: SortFilter{SortBy: "created_at", SortOrder: "desc"},
	}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}
