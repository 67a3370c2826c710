package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/marketplace/pkg/db/pagination"
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parsePage reads the zero-based page and size query parameters. Missing
// values are left zero for the service to default.
func parsePage(c *gin.Context) (pagination.Page, error) {
	var page pagination.Page

	p, err := parseOptionalInt(c.Query("page"))
	if err != nil || (p != nil && *p < 0) {
		return page, errors.New("invalid_page")
	}
	size, err := parseOptionalInt(c.Query("size"))
	if err != nil || (size != nil && *size < 1) {
		return page, errors.New("invalid_size")
	}

	if p != nil {
		page.Page = *p
	}
	if size != nil {
		page.Size = *size
	}
	return page, nil
}
