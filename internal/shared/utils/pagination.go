package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/shared/constants"
)

type Pagination struct {
	Page     int
	PageSize int
}

// ValidatePagination clamps page to at least DefaultPage and page size to
// [1, MaxPageSize], using DefaultPageSize when unset.
func ValidatePagination(page, pageSize int) Pagination {
	if page < 1 {
		page = constants.DefaultPage
	}
	if pageSize < 1 {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func ParsePagination(c *gin.Context) Pagination {
	return ValidatePagination(parseQueryInt(c, "page", constants.DefaultPage), parseQueryInt(c, "page_size", constants.DefaultPageSize))
}

// OptionalPagination reports false when the request names neither page nor
// page_size; such listings return every row, like the store fetches.
func OptionalPagination(c *gin.Context) (Pagination, bool) {
	_, hasPage := c.GetQuery("page")
	_, hasSize := c.GetQuery("page_size")
	if !hasPage && !hasSize {
		return Pagination{}, false
	}
	return ParsePagination(c), true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 1 {
			return n
		}
	}
	return defaultVal
}
