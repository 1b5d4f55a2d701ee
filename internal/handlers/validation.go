package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/response"
	appValidator "github.com/exiloncms/exiloncms/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and applies its validate
// tags. On failure the error envelope is written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := appValidator.Struct(dest); err != nil {
		var failures appValidator.Errors
		if !errors.As(err, &failures) {
			response.Error(c, appErrors.NewBadRequest("invalid request payload"))
			return false
		}
		response.Error(c, appErrors.NewBadRequest(failures.Error()))
		return false
	}
	return true
}

// pagination reads page and per_page, clamping per_page to [1, 100].
func pagination(c *gin.Context, defaultPerPage int) (int, int) {
	page := parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := parseIntQuery(c, "per_page", defaultPerPage)
	if perPage < 1 || perPage > 100 {
		perPage = defaultPerPage
	}
	return page, perPage
}

func parseBoolQuery(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && value
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
