// Package ledger holds the dashboard's view of the ledger backend's records
// plus the small amount of arithmetic the dashboard does on them.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the direction of a transaction
type Type string

const (
	Credit Type = "credit"
	Debit  Type = "debit"
)

// ParseType accepts "credit" or "debit" in any case
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Credit:
		return Credit, nil
	case Debit:
		return Debit, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Status is the lifecycle state of a transaction on the backend
type Status string

const (
	Active Status = "active"
	Undone Status = "undone"
)

// Transaction is a server-owned ledger entry. The dashboard never assigns IDs.
type Transaction struct {
	ID          string
	Amount      decimal.Decimal
	Type        Type
	Category    string
	Description string
	Date        time.Time
	Status      Status
}

// Category is a backend category used for the transaction form and search
type Category struct {
	ID   int64
	Name string
}

// CategoryNames returns the names of cats in order
func CategoryNames(cats []Category) []string {
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return names
}

// FindCategory looks a category up by name, ignoring case
func FindCategory(cats []Category, name string) (Category, bool) {
	for _, c := range cats {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return Category{}, false
}

// MonthlySummary is the backend's aggregate for the current month
type MonthlySummary struct {
	Month   string
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Budget is a per-category spending limit kept by the dashboard itself
type Budget struct {
	Category string
	Limit    decimal.Decimal
}

// DefaultBudgets are created for a user the first time their budgets are read
func DefaultBudgets() []Budget {
	return []Budget{
		{Category: "Food", Limit: decimal.NewFromInt(500)},
		{Category: "Transport", Limit: decimal.NewFromInt(300)},
		{Category: "Entertainment", Limit: decimal.NewFromInt(400)},
		{Category: "Shopping", Limit: decimal.NewFromInt(400)},
		{Category: "Utilities", Limit: decimal.NewFromInt(400)},
		{Category: "Miscellaneous", Limit: decimal.NewFromInt(400)},
	}
}

// Without returns a copy of txns minus the transaction with the given id
func Without(txns []Transaction, id string) []Transaction {
	out := make([]Transaction, 0, len(txns))
	for _, t := range txns {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// Replace returns a copy of txns with the transaction matching id swapped
// for the result of edit
func Replace(txns []Transaction, id string, edit func(Transaction) Transaction) []Transaction {
	out := make([]Transaction, len(txns))
	for i, t := range txns {
		if t.ID == id {
			t = edit(t)
		}
		out[i] = t
	}
	return out
}
