package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	thousandsRe = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
	yearOnlyRe  = regexp.MustCompile(`^\d{4}$`)
)

// coerceString renders any raw field value as a trimmed string.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// coerceStringList accepts a JSON list, a scrape-extracted list, or a
// single delimited string ("A; B; C").
func coerceStringList(v any) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		for _, item := range t {
			add(coerceString(item))
		}
	case []string:
		for _, item := range t {
			add(item)
		}
	case string:
		for _, part := range strings.Split(t, ";") {
			add(part)
		}
	default:
		add(coerceString(v))
	}
	return out
}

// coerceInt parses numeric strings using a comma-thousands, dot-decimal
// convention ("1,234" -> 1234). JSON numbers pass through.
func coerceInt(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, fmt.Errorf("empty number")
		}
		if thousandsRe.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		}
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		return int(f), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// coerceDate parses free-text dates strictly: a value whose day/month
// assignment is ambiguous, or that lacks a year when no default year is
// configured, is rejected rather than guessed.
func coerceDate(v any, defaultYear int) (time.Time, error) {
	raw := coerceString(v)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	// JSON numbers like 2021 arrive as "2021"; bare years resolve to Jan 1.
	if yearOnlyRe.MatchString(raw) {
		year, _ := strconv.Atoi(raw)
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}

	at, err := dateparse.ParseStrict(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable or ambiguous date %q: %w", raw, err)
	}
	at = at.UTC()

	// dateparse resolves day-and-month strings like "May 11" to year zero
	// instead of failing; such a date is usable only with a default year.
	if at.Year() == 0 {
		if defaultYear <= 0 {
			return time.Time{}, fmt.Errorf("date %q has no year and no default year is configured", raw)
		}
		at = time.Date(defaultYear, at.Month(), at.Day(), at.Hour(), at.Minute(), at.Second(), at.Nanosecond(), time.UTC)
	}
	return at, nil
}
