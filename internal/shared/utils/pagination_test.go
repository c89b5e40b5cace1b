package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/autocrm-inc/autocrm/internal/shared/constants"
)

func TestValidatePagination(t *testing.T) {
	tests := []struct {
		name         string
		page         int
		pageSize     int
		wantPage     int
		wantPageSize int
	}{
		{name: "valid values", page: 2, pageSize: 20, wantPage: 2, wantPageSize: 20},
		{name: "page below one", page: 0, pageSize: 10, wantPage: constants.DefaultPage, wantPageSize: 10},
		{name: "negative page size", page: 1, pageSize: -5, wantPage: 1, wantPageSize: constants.DefaultPageSize},
		{name: "page size above max", page: 1, pageSize: 1000, wantPage: 1, wantPageSize: constants.MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePagination(tt.page, tt.pageSize)
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantPageSize, got.PageSize)
		})
	}
}

func newQueryContext(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?"+rawQuery, nil)
	return c
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name         string
		queryParams  string
		wantPage     int
		wantPageSize int
	}{
		{name: "no params", queryParams: "", wantPage: constants.DefaultPage, wantPageSize: constants.DefaultPageSize},
		{name: "valid params", queryParams: "page=3&page_size=25", wantPage: 3, wantPageSize: 25},
		{name: "invalid page", queryParams: "page=abc&page_size=20", wantPage: constants.DefaultPage, wantPageSize: 20},
		{name: "page size capped", queryParams: "page=1&page_size=500", wantPage: 1, wantPageSize: constants.MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePagination(newQueryContext(tt.queryParams))
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantPageSize, got.PageSize)
		})
	}
}

func TestOptionalPagination(t *testing.T) {
	_, paged := OptionalPagination(newQueryContext("search=printer"))
	assert.False(t, paged)

	p, paged := OptionalPagination(newQueryContext("page_size=5"))
	assert.True(t, paged)
	assert.Equal(t, Pagination{Page: constants.DefaultPage, PageSize: 5}, p)
}
