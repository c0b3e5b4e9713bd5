package server

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	dateOnlyLayout = "2006-01-02"
	maxListLimit   = 100
)

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// parseLimitOffset reads limit and offset, clamping limit to maxListLimit.
func parseLimitOffset(limitValue, offsetValue string) (int, int, error) {
	limit, err := parseOptionalInt64(limitValue)
	if err != nil || (limit != nil && *limit < 0) {
		return 0, 0, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	offset, err := parseOptionalInt64(offsetValue)
	if err != nil || (offset != nil && *offset < 0) {
		return 0, 0, newValidationError("offset", "invalid_offset", "invalid offset")
	}

	l, o := 0, 0
	if limit != nil {
		l = int(*limit)
	}
	if l > maxListLimit {
		l = maxListLimit
	}
	if offset != nil {
		o = int(*offset)
	}
	return l, o, nil
}
