package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summary is the income/expense split over a set of transactions
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Summarize adds up credits and debits, skipping undone transactions
func Summarize(txns []Transaction) Summary {
	var s Summary
	for _, t := range txns {
		if t.Status == Undone {
			continue
		}
		switch t.Type {
		case Credit:
			s.Income = s.Income.Add(t.Amount)
		case Debit:
			s.Expense = s.Expense.Add(t.Amount)
		}
	}
	return s
}

// Recent returns at most n transactions, newest first
func Recent(txns []Transaction, n int) []Transaction {
	out := make([]Transaction, len(txns))
	copy(out, txns)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Spending sums debits per lowercased category for the month containing at
func Spending(txns []Transaction, at time.Time) map[string]decimal.Decimal {
	spent := make(map[string]decimal.Decimal)
	for _, t := range txns {
		if t.Type != Debit || t.Status == Undone {
			continue
		}
		d := t.Date.In(at.Location())
		if d.Year() != at.Year() || d.Month() != at.Month() {
			continue
		}
		k := strings.ToLower(t.Category)
		spent[k] = spent[k].Add(t.Amount)
	}
	return spent
}

// Usage is a budget compared to what was spent against it
type Usage struct {
	Category string
	Limit    decimal.Decimal
	Spent    decimal.Decimal
	Percent  decimal.Decimal
	Exceeded bool
}

// NewUsage caps Percent at 100. A zero limit with any spending counts as 100%.
func NewUsage(b Budget, spent decimal.Decimal) Usage {
	u := Usage{Category: b.Category, Limit: b.Limit, Spent: spent}
	switch {
	case b.Limit.IsPositive():
		u.Percent = decimal.Min(spent.Div(b.Limit).Mul(hundred), hundred).Round(0)
		u.Exceeded = spent.GreaterThan(b.Limit)
	case spent.IsPositive():
		u.Percent = hundred
	}
	return u
}

// BudgetReport lines up every backend category with its budget (zero when
// none was set) and the month's spending.
func BudgetReport(cats []Category, budgets []Budget, spent map[string]decimal.Decimal) []Usage {
	limits := make(map[string]Budget, len(budgets))
	for _, b := range budgets {
		limits[strings.ToLower(b.Category)] = b
	}
	out := make([]Usage, 0, len(cats))
	for _, c := range cats {
		k := strings.ToLower(c.Name)
		b, ok := limits[k]
		if !ok {
			b = Budget{Category: c.Name}
		}
		out = append(out, NewUsage(b, spent[k]))
	}
	return out
}
