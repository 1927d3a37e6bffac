package finance

import (
	"github.com/briangreenhill/finboard/internal/cache"
	"github.com/briangreenhill/finboard/internal/search"
)

// Cache operation names. Every per-user key carries the user id right after
// the operation so one prefix covers all of a user's entries for it.
const (
	OpBalance      = "balance"
	OpTransactions = "transactions"
	OpCount        = "transaction_count"
	OpSummary      = "monthly_summary"
	OpCategories   = "categories"
)

func BalanceKey(userID string) cache.Key {
	return cache.NewKey(OpBalance, userID)
}

func CountKey(userID string) cache.Key {
	return cache.NewKey(OpCount, userID)
}

func SummaryKey(userID string) cache.Key {
	return cache.NewKey(OpSummary, userID)
}

func CategoriesKey() cache.Key {
	return cache.NewKey(OpCategories)
}

// TransactionsKey is one page of the plain listing
func TransactionsKey(userID string, offset, limit int) cache.Key {
	return cache.NewKey(OpTransactions, userID, offset, limit)
}

// SearchKey sits under the same prefix as TransactionsKey so anything that
// invalidates a user's transactions also invalidates their searches.
func SearchKey(userID string, f search.Filter, offset, limit int) cache.Key {
	return cache.NewKey(OpTransactions, userID, offset, limit, string(f.Field), f.Value)
}

// TransactionsPrefix matches every listing and search of the user
func TransactionsPrefix(userID string) cache.Key {
	return cache.NewKey(OpTransactions, userID)
}
