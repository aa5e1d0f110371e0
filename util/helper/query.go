package helper_util

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func GetPaginationParams(c *gin.Context) (limit int, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		return 0, 0, err
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		return 0, 0, err
	}
	if limit < 0 || offset < 0 {
		return 0, 0, fmt.Errorf("limit and offset must not be negative")
	}
	return limit, offset, nil
}

// GetTimeRange reads the RFC3339 "from" and "to" query parameters. Missing
// values default to the last window up to now.
func GetTimeRange(c *gin.Context, now time.Time, window time.Duration) (from, to time.Time, err error) {
	to, from = now, now.Add(-window)
	if s := c.Query("to"); s != "" {
		if to, err = ParseTime(s); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if s := c.Query("from"); s != "" {
		if from, err = ParseTime(s); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}

// Helper function to parse time
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	return t, err
}
