package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/briangreenhill/finboard/internal/ledger"
)

// flexID accepts ids sent either as JSON numbers or strings
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// timestampLayouts covers what the backend has been seen to send for created_at
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

type balanceJSON struct {
	Balance *decimal.Decimal `json:"balance"`
}

type countJSON struct {
	Total *int `json:"total"`
}

type transactionJSON struct {
	ID           flexID           `json:"id"`
	Amount       *decimal.Decimal `json:"amount"`
	CategoryName string           `json:"category_name"`
	CreatedAt    string           `json:"created_at"`
	Reason       string           `json:"reason"`
	Type         string           `json:"type"`
	Status       string           `json:"status"`
}

func (t transactionJSON) toLedger() (ledger.Transaction, error) {
	if t.ID == "" {
		return ledger.Transaction{}, fmt.Errorf("%w: transaction without id", ErrMalformed)
	}
	if t.Amount == nil {
		return ledger.Transaction{}, fmt.Errorf("%w: transaction %s without amount", ErrMalformed, t.ID)
	}
	typ, err := ledger.ParseType(t.Type)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("%w: transaction %s: %v", ErrMalformed, t.ID, err)
	}
	date, err := parseTimestamp(t.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("%w: transaction %s: %v", ErrMalformed, t.ID, err)
	}
	status := ledger.Active
	switch ledger.Status(strings.ToLower(t.Status)) {
	case "", ledger.Active:
	case ledger.Undone:
		status = ledger.Undone
	default:
		return ledger.Transaction{}, fmt.Errorf("%w: transaction %s: unknown status %q", ErrMalformed, t.ID, t.Status)
	}
	return ledger.Transaction{
		ID:          string(t.ID),
		Amount:      *t.Amount,
		Type:        typ,
		Category:    t.CategoryName,
		Description: t.Reason,
		Date:        date,
		Status:      status,
	}, nil
}

func toLedger(items []transactionJSON) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0, len(items))
	for _, it := range items {
		t, err := it.toLedger()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// amounts go out as bare JSON numbers; decimal marshals to a quoted string
func jsonAmount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type createRequest struct {
	UserID     string      `json:"user_id"`
	Amount     json.Number `json:"amount"`
	CategoryID int64       `json:"category_id"`
	Type       ledger.Type `json:"type"`
	Reason     string      `json:"reason"`
	CreatedAt  string      `json:"created_at"`
}

type updateRequest struct {
	Type       ledger.Type `json:"type"`
	Amount     json.Number `json:"amount"`
	CategoryID int64       `json:"category_id"`
	Reason     string      `json:"reason"`
}

type statusJSON struct {
	TransactionID flexID `json:"transaction_id"`
	Status        string `json:"status"`
}

type categoryJSON struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

type otpRequest struct {
	UserName string `json:"userName"`
	OTP      string `json:"otp"`
}

type otpJSON struct {
	UserID flexID `json:"user_id"`
}

type summaryJSON struct {
	Month   string           `json:"month"`
	Income  *decimal.Decimal `json:"income"`
	Expense *decimal.Decimal `json:"expense"`
}
