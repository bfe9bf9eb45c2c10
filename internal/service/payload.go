package service

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// payload wraps an event's decoded JSON body. Numbers arrive as float64 or
// json.Number depending on the decoder, dates as RFC 3339 strings.
type payload map[string]interface{}

// str returns the field as a non-empty string.
func (p payload) str(key string) (string, bool) {
	s, ok := p[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// id returns the field as an identifier, accepting strings and numbers.
func (p payload) id(key string) (string, bool) {
	switch v := p[key].(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

// timeLayouts are the ISO 8601 forms producers emit. Values without an
// offset are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// time returns the field as a timestamp.
func (p payload) time(key string) (time.Time, bool) {
	switch v := p[key].(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		v = strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// parseNumericID accepts the decimal integer ids used by every source table.
func parseNumericID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func titleOr(s *string, fallback string) string {
	if s != nil {
		if t := strings.TrimSpace(*s); t != "" {
			return t
		}
	}
	return fallback
}

func validInterval(start, end time.Time) bool {
	return !start.IsZero() && !end.IsZero() && end.After(start)
}
