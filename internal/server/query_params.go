package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/storeadmin/pkg/docstore"
)

const dateOnlyLayout = "2006-01-02"

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

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
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

var filterOperators = map[string]docstore.Operator{
	"eq":       docstore.OpEqual,
	"ne":       docstore.OpNotEqual,
	"lt":       docstore.OpLess,
	"lte":      docstore.OpLessOrEqual,
	"gt":       docstore.OpGreater,
	"gte":      docstore.OpGreaterOrEqual,
	"contains": docstore.OpArrayContains,
}

// parseFilter reads "field:op:value" or "field:value" (equality). Values that parse as numbers or booleans are
// compared as such.
func parseFilter(raw string) (docstore.Filter, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return docstore.Filter{}, errors.New("invalid_filter")
	}
	field := strings.TrimSpace(parts[0])
	op := docstore.OpEqual
	value := parts[1]
	if len(parts) == 3 {
		known, ok := filterOperators[strings.ToLower(strings.TrimSpace(parts[1]))]
		if !ok {
			return docstore.Filter{}, errors.New("invalid_filter")
		}
		op = known
		value = parts[2]
	}
	return docstore.Filter{Field: field, Op: op, Value: filterValue(value)}, nil
}

func filterValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}
