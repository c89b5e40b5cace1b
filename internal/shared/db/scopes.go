// Package db provides database utilities including transaction management and query scopes.
package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

// Columns is the set of columns a table allows in filters, searches and
// ordering. Column names are interpolated into SQL, so anything outside the
// set is rejected.
type Columns map[string]bool

func NewColumns(names ...string) Columns {
	c := make(Columns, len(names))
	for _, n := range names {
		c[n] = true
	}
	return c
}

// Conditions is a GORM scope applying equality conditions.
func Conditions(conds []query.Condition, allowed Columns) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		for _, c := range conds {
			if !allowed[c.Column] {
				_ = tx.AddError(fmt.Errorf("filter on unknown column %q", c.Column))
				return tx
			}
			tx = tx.Where(c.Column+" = ?", c.Value)
		}
		return tx
	}
}

// AnyOf is a GORM scope ORing equality conditions inside one group.
func AnyOf(conds []query.Condition, allowed Columns) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if len(conds) == 0 {
			return tx
		}
		group := tx.Session(&gorm.Session{NewDB: true})
		for i, c := range conds {
			if !allowed[c.Column] {
				_ = tx.AddError(fmt.Errorf("filter on unknown column %q", c.Column))
				return tx
			}
			if i == 0 {
				group = group.Where(c.Column+" = ?", c.Value)
			} else {
				group = group.Or(c.Column+" = ?", c.Value)
			}
		}
		return tx.Where(group)
	}
}

// TextSearch is a GORM scope for a text search. Per-term searches AND one
// case-insensitive partial match per term. Full text searches use the
// Postgres text search operators and fall back to a partial match of the
// combined string on other dialects.
func TextSearch(s *query.TextSearch, dialect string, allowed Columns) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if s == nil || len(s.Terms) == 0 {
			return tx
		}
		if !allowed[s.Column] {
			_ = tx.AddError(fmt.Errorf("search on unknown column %q", s.Column))
			return tx
		}

		if s.Mode == query.SearchFullText {
			if dialect == "postgres" {
				return tx.Where("to_tsvector('simple', "+s.Column+") @@ plainto_tsquery('simple', ?)", s.Combined())
			}
			return tx.Where("LOWER("+s.Column+") LIKE ? ESCAPE '!'", likePattern(s.Combined()))
		}

		for _, term := range s.Terms {
			tx = tx.Where("LOWER("+s.Column+") LIKE ? ESCAPE '!'", likePattern(term))
		}
		return tx
	}
}

// DefaultOrder is the ordering of store listings: newest first.
const DefaultOrder = "created_at DESC"

// Order is a GORM scope for ordering; an empty or unknown sort column falls
// back to fallback.
func Order(s query.SortFilter, allowed Columns, fallback string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if s.SortBy == "" || !allowed[s.SortBy] {
			return tx.Order(fallback)
		}
		return tx.Order(s.OrderClause())
	}
}

// Page is a GORM scope applying offset and limit for paged queries only.
func Page(p query.PageFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if !p.Paged() {
			return tx
		}
		return tx.Offset(p.Offset()).Limit(p.Limit())
	}
}

// Apply chains every scope for q. fallbackOrder is used when q names no
// usable sort column; empty means DefaultOrder.
func Apply(tx *gorm.DB, q query.Query, allowed Columns, fallbackOrder string) *gorm.DB {
	if fallbackOrder == "" {
		fallbackOrder = DefaultOrder
	}
	return tx.Scopes(
		Conditions(q.Conditions, allowed),
		AnyOf(q.AnyOf, allowed),
		TextSearch(q.Search, tx.Dialector.Name(), allowed),
		Order(q.SortFilter, allowed, fallbackOrder),
		Page(q.PageFilter),
	)
}

// '!' is the escape character on every dialect; a backslash would need
// different quoting on MySQL and Postgres.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
