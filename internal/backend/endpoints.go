package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/briangreenhill/finboard/internal/ledger"
	"github.com/briangreenhill/finboard/internal/search"
)

func pageQuery(userID string, offset, limit int) url.Values {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// Balance returns the user's current balance
func (c *Client) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var b balanceJSON
	if err := c.doJSON(ctx, http.MethodGet, "/balance", url.Values{"user_id": {userID}}, nil, &b); err != nil {
		return decimal.Zero, err
	}
	if b.Balance == nil {
		return decimal.Zero, fmt.Errorf("GET /balance: %w: missing balance", ErrMalformed)
	}
	return *b.Balance, nil
}

// Transactions returns one page of the user's transactions
func (c *Client) Transactions(ctx context.Context, userID string, offset, limit int) ([]ledger.Transaction, error) {
	var items []transactionJSON
	if err := c.doJSON(ctx, http.MethodGet, "/transactions", pageQuery(userID, offset, limit), nil, &items); err != nil {
		return nil, err
	}
	return toLedger(items)
}

// Search returns one page of transactions matching a single filter
func (c *Client) Search(ctx context.Context, userID string, f search.Filter, offset, limit int) ([]ledger.Transaction, error) {
	if f.IsZero() {
		return nil, fmt.Errorf("search without a filter")
	}
	q := pageQuery(userID, offset, limit)
	q.Set(string(f.Field), f.Value)

	var items []transactionJSON
	if err := c.doJSON(ctx, http.MethodGet, "/transactions/search", q, nil, &items); err != nil {
		return nil, err
	}
	return toLedger(items)
}

// CountTransactions returns how many transactions the user has
func (c *Client) CountTransactions(ctx context.Context, userID string) (int, error) {
	var n countJSON
	if err := c.doJSON(ctx, http.MethodGet, "/transactions/count/"+url.PathEscape(userID), nil, nil, &n); err != nil {
		return 0, err
	}
	if n.Total == nil || *n.Total < 0 {
		return 0, fmt.Errorf("GET /transactions/count: %w: missing total", ErrMalformed)
	}
	return *n.Total, nil
}

// CreateTransaction submits a new transaction and returns the stored record
func (c *Client) CreateTransaction(ctx context.Context, userID string, d ledger.Draft, categoryID int64) (ledger.Transaction, error) {
	req := createRequest{
		UserID:     userID,
		Amount:     jsonAmount(d.Amount),
		CategoryID: categoryID,
		Type:       d.Type,
		Reason:     d.Description,
		CreatedAt:  d.Date.Format(time.RFC3339),
	}
	var created transactionJSON
	if err := c.doJSON(ctx, http.MethodPost, "/transactions", nil, req, &created); err != nil {
		return ledger.Transaction{}, err
	}
	return created.toLedger()
}

// UndoTransaction asks the backend to reverse a transaction
func (c *Client) UndoTransaction(ctx context.Context, id string) error {
	var st statusJSON
	if err := c.doJSON(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), nil, nil, &st); err != nil {
		return err
	}
	return checkStatus("undo", id, st, "undone")
}

// UpdateTransaction edits type, amount, category and description in place
func (c *Client) UpdateTransaction(ctx context.Context, id string, d ledger.Draft, categoryID int64) error {
	req := updateRequest{
		Type:       d.Type,
		Amount:     jsonAmount(d.Amount),
		CategoryID: categoryID,
		Reason:     d.Description,
	}
	var st statusJSON
	if err := c.doJSON(ctx, http.MethodPatch, "/transactions/"+url.PathEscape(id), nil, req, &st); err != nil {
		return err
	}
	return checkStatus("update", id, st, "updated")
}

func checkStatus(op, id string, st statusJSON, want string) error {
	switch strings.ToLower(st.Status) {
	case want:
		return nil
	case "failed":
		return fmt.Errorf("%s transaction %s: %w", op, id, ErrRejected)
	default:
		return fmt.Errorf("%s transaction %s: %w: status %q", op, id, ErrMalformed, st.Status)
	}
}

// Categories returns every category the backend knows
func (c *Client) Categories(ctx context.Context) ([]ledger.Category, error) {
	var items []categoryJSON
	if err := c.doJSON(ctx, http.MethodGet, "/categories", nil, nil, &items); err != nil {
		return nil, err
	}
	out := make([]ledger.Category, 0, len(items))
	for _, it := range items {
		if it.ID == nil || strings.TrimSpace(it.Name) == "" {
			return nil, fmt.Errorf("GET /categories: %w: category needs id and name", ErrMalformed)
		}
		out = append(out, ledger.Category{ID: *it.ID, Name: it.Name})
	}
	return out, nil
}

// VerifyOTP exchanges a one-time code from the chat bot for a user id
func (c *Client) VerifyOTP(ctx context.Context, userName, otp string) (string, error) {
	var res otpJSON
	if err := c.doJSON(ctx, http.MethodPost, "/otp/verify", nil, otpRequest{UserName: userName, OTP: otp}, &res); err != nil {
		return "", err
	}
	if res.UserID == "" {
		return "", fmt.Errorf("POST /otp/verify: %w: missing user_id", ErrMalformed)
	}
	return string(res.UserID), nil
}

// MonthlySummary returns the backend's income and expense totals for the month
func (c *Client) MonthlySummary(ctx context.Context, userID string) (ledger.MonthlySummary, error) {
	var s summaryJSON
	if err := c.doJSON(ctx, http.MethodGet, "/monthly_summary", url.Values{"user_id": {userID}}, nil, &s); err != nil {
		return ledger.MonthlySummary{}, err
	}
	if s.Income == nil || s.Expense == nil {
		return ledger.MonthlySummary{}, fmt.Errorf("GET /monthly_summary: %w: missing totals", ErrMalformed)
	}
	return ledger.MonthlySummary{Month: s.Month, Income: *s.Income, Expense: *s.Expense}, nil
}
