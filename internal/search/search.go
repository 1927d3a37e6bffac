// Package search turns the free-text box on the transactions page into a
// single backend filter.
package search

import (
	"strings"
	"time"
)

// Field is the backend query parameter a filter is sent as
type Field string

const (
	FieldDate     Field = "created_at"
	FieldCategory Field = "category_name"
	FieldText     Field = "text"
)

// DateFormat is the canonical form dates are sent in
const DateFormat = "2006-01-02"

// dateLayouts are tried in order; day and month may be one or two digits
var dateLayouts = []string{
	"2006-01-02",
	"2/1/2006",
	"2/1/06",
}

// Filter is exactly one interpretation of a search input
type Filter struct {
	Field Field
	Value string
}

// IsZero reports whether f is the empty filter
func (f Filter) IsZero() bool {
	return f.Field == "" && f.Value == ""
}

func (f Filter) String() string {
	if f.IsZero() {
		return ""
	}
	return string(f.Field) + "=" + f.Value
}

// Blank reports whether input would perform no search at all
func Blank(input string) bool {
	return strings.TrimSpace(input) == ""
}

// Interpret normalises input and picks one filter for it: a date if it reads
// as one, otherwise a known category, otherwise free text. ok is false for
// blank input, in which case no search should be made.
func Interpret(input string, categories []string, now time.Time) (f Filter, ok bool) {
	term := strings.ToLower(strings.TrimSpace(input))
	if term == "" {
		return Filter{}, false
	}

	if d, ok := parseDate(term, now); ok {
		return Filter{Field: FieldDate, Value: d}, true
	}

	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c), term) {
			return Filter{Field: FieldCategory, Value: c}, true
		}
	}

	return Filter{Field: FieldText, Value: term}, true
}

func parseDate(term string, now time.Time) (string, bool) {
	switch term {
	case "today":
		return now.Format(DateFormat), true
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(DateFormat), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, term); err == nil {
			return t.Format(DateFormat), true
		}
	}
	return "", false
}
