package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/finboard/internal/ledger"
	"github.com/briangreenhill/finboard/internal/search"
)

// mockLedger records the last request and answers with a canned body
type mockLedger struct {
	server  *httptest.Server
	method  string
	path    string
	query   map[string]string
	body    map[string]any
	status  int
	respond string
}

func newMockLedger(t *testing.T) *mockLedger {
	t.Helper()
	m := &mockLedger{status: http.StatusOK}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.method = r.Method
		m.path = r.URL.Path
		m.query = map[string]string{}
		for k := range r.URL.Query() {
			m.query[k] = r.URL.Query().Get(k)
		}
		m.body = nil
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &m.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.status)
		_, _ = w.Write([]byte(m.respond))
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockLedger) client(t *testing.T) *Client {
	t.Helper()
	c, err := New(WithBaseURL(m.server.URL), WithHTTPClient(m.server.Client()))
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadScheme(t *testing.T) {
	_, err := New(WithBaseURL("ftp://ledger"))
	assert.Error(t, err)
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL.String())
}

func TestBalance(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `{"balance": 1234.56}`

	b, err := m.client(t).Balance(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, b.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, "/balance", m.path)
	assert.Equal(t, "42", m.query["user_id"])

	m.respond = `{}`
	_, err = m.client(t).Balance(context.Background(), "42")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTransactions(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `[
		{"id": 7, "amount": 12.5, "category_name": "Food", "created_at": "2024-03-05T10:00:00", "reason": "Lunch", "type": "debit", "status": "active"},
		{"id": "8", "amount": "100", "category_name": "Salary", "created_at": "2024-03-01T00:00:00Z", "reason": "Pay", "type": "CREDIT"}
	]`

	txns, err := m.client(t).Transactions(context.Background(), "42", 10, 6)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "/transactions", m.path)
	assert.Equal(t, map[string]string{"user_id": "42", "offset": "10", "limit": "6"}, m.query)

	assert.Equal(t, "7", txns[0].ID)
	assert.Equal(t, ledger.Debit, txns[0].Type)
	assert.Equal(t, "Lunch", txns[0].Description)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), txns[0].Date)
	assert.Equal(t, ledger.Active, txns[1].Status)
	assert.Equal(t, ledger.Credit, txns[1].Type)
	assert.True(t, txns[1].Amount.Equal(decimal.NewFromInt(100)))
}

func TestTransactionsMalformed(t *testing.T) {
	cases := map[string]string{
		"no id":       `[{"amount": 1, "created_at": "2024-03-05", "type": "debit"}]`,
		"no amount":   `[{"id": 1, "created_at": "2024-03-05", "type": "debit"}]`,
		"bad type":    `[{"id": 1, "amount": 1, "created_at": "2024-03-05", "type": "transfer"}]`,
		"bad date":    `[{"id": 1, "amount": 1, "created_at": "last week", "type": "debit"}]`,
		"bad status":  `[{"id": 1, "amount": 1, "created_at": "2024-03-05", "type": "debit", "status": "gone"}]`,
		"not a list":  `{"items": []}`,
		"bad payload": `<html>`,
	}
	m := newMockLedger(t)
	for name, body := range cases {
		m.respond = body
		_, err := m.client(t).Transactions(context.Background(), "42", 0, 10)
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestSearchSendsOneFilter(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `[]`

	txns, err := m.client(t).Search(context.Background(), "42", search.Filter{Field: search.FieldCategory, Value: "Food"}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Equal(t, "/transactions/search", m.path)
	assert.Equal(t, "Food", m.query["category_name"])
	_, hasText := m.query["text"]
	assert.False(t, hasText)

	_, err = m.client(t).Search(context.Background(), "42", search.Filter{}, 0, 10)
	assert.Error(t, err)
}

func TestCountTransactions(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `{"total": 20}`
	n, err := m.client(t).CountTransactions(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, "/transactions/count/42", m.path)
}

func TestCreateTransaction(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `{"id": 99, "amount": 12.5, "category_name": "Food", "created_at": "2024-03-05T00:00:00Z", "reason": "Lunch", "type": "debit", "status": "active"}`

	d := ledger.Draft{
		Amount:      decimal.RequireFromString("12.50"),
		Type:        ledger.Debit,
		Category:    "Food",
		Description: "Lunch",
		Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	created, err := m.client(t).CreateTransaction(context.Background(), "42", d, 3)
	require.NoError(t, err)
	assert.Equal(t, "99", created.ID)

	assert.Equal(t, http.MethodPost, m.method)
	assert.Equal(t, "/transactions", m.path)
	assert.Equal(t, "42", m.body["user_id"])
	assert.Equal(t, 12.5, m.body["amount"])
	assert.Equal(t, float64(3), m.body["category_id"])
	assert.Equal(t, "debit", m.body["type"])
	assert.Equal(t, "Lunch", m.body["reason"])
	assert.Equal(t, "2024-03-05T00:00:00Z", m.body["created_at"])
}

func TestUndoTransaction(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `{"transaction_id": 7, "status": "undone"}`
	require.NoError(t, m.client(t).UndoTransaction(context.Background(), "7"))
	assert.Equal(t, http.MethodDelete, m.method)
	assert.Equal(t, "/transactions/7", m.path)

	m.respond = `{"transaction_id": 7, "status": "failed"}`
	err := m.client(t).UndoTransaction(context.Background(), "7")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestUpdateTransaction(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `{"transaction_id": 7, "status": "updated"}`
	d := ledger.Draft{Amount: decimal.NewFromInt(5), Type: ledger.Credit, Description: "Refund"}
	require.NoError(t, m.client(t).UpdateTransaction(context.Background(), "7", d, 2))
	assert.Equal(t, http.MethodPatch, m.method)
	assert.Equal(t, "credit", m.body["type"])
	assert.Equal(t, float64(5), m.body["amount"])
	assert.Equal(t, "Refund", m.body["reason"])

	m.respond = `{"transaction_id": 7, "status": "weird"}`
	assert.ErrorIs(t, m.client(t).UpdateTransaction(context.Background(), "7", d, 2), ErrMalformed)
}

func TestCategories(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `[{"id": 1, "name": "Food"}, {"id": 2, "name": "Transport"}]`
	cats, err := m.client(t).Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ledger.Category{{ID: 1, Name: "Food"}, {ID: 2, Name: "Transport"}}, cats)

	m.respond = `[{"name": "Food"}]`
	_, err = m.client(t).Categories(context.Background())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyOTP(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `{"user_id": 4242}`
	id, err := m.client(t).VerifyOTP(context.Background(), "alice", "123456")
	require.NoError(t, err)
	assert.Equal(t, "4242", id)
	assert.Equal(t, "/otp/verify", m.path)
	assert.Equal(t, "alice", m.body["userName"])
	assert.Equal(t, "123456", m.body["otp"])

	m.status = http.StatusUnauthorized
	m.respond = `{"detail": "invalid otp"}`
	_, err = m.client(t).VerifyOTP(context.Background(), "alice", "000000")
	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, http.StatusUnauthorized, ne.Status)
	assert.True(t, HasStatus(err, http.StatusBadRequest, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "invalid otp")
}

func TestMonthlySummary(t *testing.T) {
	m := newMockLedger(t)
	m.respond = `{"month": "2024-03", "income": 2000, "expense": 550.25}`
	s, err := m.client(t).MonthlySummary(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", s.Month)
	assert.True(t, s.Expense.Equal(decimal.RequireFromString("550.25")))
}

func TestNetworkErrorWithoutResponse(t *testing.T) {
	m := newMockLedger(t)
	c := m.client(t)
	m.server.Close()

	_, err := c.Balance(context.Background(), "42")
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Zero(t, ne.Status)
	assert.False(t, HasStatus(err, http.StatusUnauthorized))
}
