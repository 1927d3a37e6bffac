// Package budget keeps per-category spending limits. Budgets belong to the
// dashboard, not the ledger backend: each user gets the defaults the first
// time they are listed and limits are only ever updated in place.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/briangreenhill/finboard/internal/ledger"
)

var ErrInvalid = errors.New("invalid budget")

// Store persists budgets per user
type Store interface {
	// List returns the user's budgets, creating the defaults if they have none
	List(ctx context.Context, userID string) ([]ledger.Budget, error)
	// Put sets the limit for a category, matched without regard to case
	Put(ctx context.Context, userID string, b ledger.Budget) error
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS budgets (
	user_id      TEXT NOT NULL,
	category     TEXT NOT NULL,
	category_key TEXT NOT NULL,
	limit_amount TEXT NOT NULL,
	PRIMARY KEY (user_id, category_key)
)`

const (
	countQuery = `SELECT COUNT(*) FROM budgets WHERE user_id = ?`
	listQuery  = `SELECT category, limit_amount FROM budgets WHERE user_id = ? ORDER BY category_key`
	seedQuery  = `INSERT INTO budgets (user_id, category, category_key, limit_amount) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, category_key) DO NOTHING`
	putQuery = `INSERT INTO budgets (user_id, category, category_key, limit_amount) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, category_key) DO UPDATE SET limit_amount = excluded.limit_amount`
)

// rebind turns ? placeholders into Postgres' $n form
func rebind(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func key(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func check(userID string, b ledger.Budget) (ledger.Budget, error) {
	b.Category = strings.TrimSpace(b.Category)
	switch {
	case userID == "":
		return b, fmt.Errorf("%w: user id is required", ErrInvalid)
	case b.Category == "":
		return b, fmt.Errorf("%w: category is required", ErrInvalid)
	case b.Limit.IsNegative():
		return b, fmt.Errorf("%w: limit must not be negative", ErrInvalid)
	}
	return b, nil
}

func parseLimit(category, raw string) (ledger.Budget, error) {
	limit, err := decimal.NewFromString(raw)
	if err != nil {
		return ledger.Budget{}, fmt.Errorf("budget %s: stored limit %q: %w", category, raw, err)
	}
	return ledger.Budget{Category: category, Limit: limit}, nil
}

// ParseLimit reads a limit typed into the budgets form
func ParseLimit(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: limit must be a number", ErrInvalid)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: limit must not be negative", ErrInvalid)
	}
	return d, nil
}
