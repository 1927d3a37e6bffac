package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	minAmount         = decimal.RequireFromString("0.01")
	minDescriptionLen = 3
)

// dateLayouts are the formats the transaction form accepts for its date field
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ValidationError maps form fields to the reason they were rejected.
// It is produced before any request reaches the backend.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid transaction: " + strings.Join(parts, "; ")
}

// FieldError is a ValidationError for a single field
func FieldError(field, msg string) *ValidationError {
	e := &ValidationError{}
	e.add(field, msg)
	return e
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// TransactionInput is the raw transaction form
type TransactionInput struct {
	Amount      string
	Description string
	Category    string
	Type        string
	Date        string
}

// Draft is a validated transaction ready to be sent to the backend
type Draft struct {
	Amount      decimal.Decimal
	Type        Type
	Category    string
	Description string
	Date        time.Time
}

// Validate checks the form and converts it into a Draft
func (in TransactionInput) Validate() (Draft, error) {
	var (
		d    Draft
		verr ValidationError
	)

	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	switch {
	case err != nil:
		verr.add("amount", "Amount must be a number")
	case amount.LessThan(minAmount):
		verr.add("amount", "Amount must be greater than 0")
	default:
		d.Amount = amount
	}

	d.Description = strings.TrimSpace(in.Description)
	if len([]rune(d.Description)) < minDescriptionLen {
		verr.add("description", "Description must be at least 3 characters")
	}

	d.Category = strings.TrimSpace(in.Category)
	if d.Category == "" {
		verr.add("category", "Category is required")
	}

	if t, err := ParseType(in.Type); err != nil {
		verr.add("type", "Type must be debit or credit")
	} else {
		d.Type = t
	}

	date := strings.TrimSpace(in.Date)
	if date == "" {
		verr.add("date", "Date is required")
	} else if t, ok := parseDate(date); !ok {
		verr.add("date", "Invalid date")
	} else {
		d.Date = t
	}

	if len(verr.Fields) > 0 {
		return Draft{}, &verr
	}
	return d, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
