// Package common holds helpers shared by the HTTP handlers.
package common

import (
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

// ListRequest is what every list endpoint accepts on the query string:
// search, page, page_size, sort_by and sort_order.
type ListRequest struct {
	Search     string
	Pagination utils.Pagination
	Paged      bool
	SortBy     string
	SortOrder  string
}

func ParseListRequest(c *gin.Context) ListRequest {
	p, paged := utils.OptionalPagination(c)
	return ListRequest{
		Search:     c.Query("search"),
		Pagination: p,
		Paged:      paged,
		SortBy:     c.Query("sort_by"),
		SortOrder:  c.DefaultQuery("sort_order", "desc"),
	}
}

// Query builds the backend select: the search term against searchColumn,
// then the caller's scope conditions, then paging and ordering.
func (r ListRequest) Query(searchColumn string, mode query.SearchMode, scope ...query.Option) query.Query {
	opts := make([]query.Option, 0, len(scope)+3)
	if searchColumn != "" {
		opts = append(opts, clientstate.SearchQuery(searchColumn, r.Search, mode))
	}
	opts = append(opts, scope...)
	if r.Paged {
		opts = append(opts, query.WithPage(r.Pagination.Page, r.Pagination.PageSize))
	}
	if r.SortBy != "" {
		opts = append(opts, query.WithSort(r.SortBy, r.SortOrder))
	}
	return query.New(opts...)
}

// RespondList writes items with the paging the request asked for.
func RespondList[T any](c *gin.Context, req ListRequest, items []T) {
	if items == nil {
		items = []T{}
	}
	if !req.Paged {
		utils.ListSuccessResponse(c, items, len(items), 0, 0)
		return
	}
	utils.ListSuccessResponse(c, items, len(items), req.Pagination.Page, req.Pagination.PageSize)
}
