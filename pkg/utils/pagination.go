package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type ListResponse struct {
	Data  interface{} `json:"data"`
	Limit int         `json:"limit"`
	Count int         `json:"count"`
}

// ParseLimit reads ?limit= and clamps it to [1, MaxLimit].
func ParseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if err != nil || limit < 1 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
