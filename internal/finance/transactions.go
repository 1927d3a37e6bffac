package finance

import (
	"context"
	"time"

	"github.com/briangreenhill/finboard/internal/cache"
	"github.com/briangreenhill/finboard/internal/ledger"
	"github.com/briangreenhill/finboard/internal/query"
	"github.com/briangreenhill/finboard/internal/search"
)

// Listing is one page of transactions as a view renders it
type Listing struct {
	Items  []ledger.Transaction
	Page   ledger.Page
	Filter search.Filter
	Status cache.Status
	Stale  bool
}

func (s *Service) limit(n int) int {
	if n < 1 {
		return s.pageSize
	}
	return n
}

// Transactions returns the page at offset. The total comes from the count
// endpoint; an offset past it yields an empty page without asking for it.
func (s *Service) Transactions(ctx context.Context, offset, limit int) (Listing, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return Listing{Status: count.Status}, err
	}
	if count.Status == cache.Idle {
		return Listing{Status: cache.Idle}, nil
	}

	page := ledger.NewPage(offset, s.limit(limit), count.Data)
	if page.Beyond() {
		return Listing{Page: page, Status: cache.Success, Stale: count.Stale}, nil
	}

	res, err := read(ctx, s, TransactionsKey(s.userID, page.Offset, page.Limit), func(ctx context.Context) ([]ledger.Transaction, error) {
		return s.gw.Transactions(ctx, s.userID, page.Offset, page.Limit)
	})
	return Listing{
		Items:  res.Data,
		Page:   page,
		Status: res.Status,
		Stale:  res.Stale || count.Stale,
	}, err
}

// Search interprets input and returns one page of matches. Blank input
// returns an empty listing without touching the backend. There is no count
// for searches, so the page's total only says whether another page may
// follow.
func (s *Service) Search(ctx context.Context, input string, offset, limit int) (Listing, error) {
	if search.Blank(input) {
		return Listing{Status: cache.Success}, nil
	}
	if s.userID == "" {
		return Listing{Status: cache.Idle}, nil
	}

	f, _ := search.Interpret(input, s.categoryNames(ctx), s.now())
	page := ledger.NewPage(offset, s.limit(limit), 0)

	res, err := read(ctx, s, SearchKey(s.userID, f, page.Offset, page.Limit), func(ctx context.Context) ([]ledger.Transaction, error) {
		return s.gw.Search(ctx, s.userID, f, page.Offset, page.Limit)
	})

	page.Total = page.Offset + len(res.Data)
	if len(res.Data) == page.Limit {
		page.Total++
	}
	return Listing{
		Items:  res.Data,
		Page:   page,
		Filter: f,
		Status: res.Status,
		Stale:  res.Stale,
	}, err
}

// categoryNames falls back to none when categories cannot be loaded, which
// still leaves dates and free text searchable.
func (s *Service) categoryNames(ctx context.Context) []string {
	cats, err := s.Categories(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("searching without categories")
		return nil
	}
	return ledger.CategoryNames(cats.Data)
}

func (s *Service) category(ctx context.Context, name string) (ledger.Category, error) {
	cats, err := s.Categories(ctx)
	if err != nil {
		return ledger.Category{}, err
	}
	c, ok := ledger.FindCategory(cats.Data, name)
	if !ok {
		return ledger.Category{}, ledger.FieldError("category", "Unknown category")
	}
	return c, nil
}

// AddTransaction validates the form, creates the transaction and marks
// everything it changes as stale. Nothing is cached before the backend
// answers.
func (s *Service) AddTransaction(ctx context.Context, in ledger.TransactionInput) (ledger.Transaction, error) {
	d, err := in.Validate()
	if err != nil {
		return ledger.Transaction{}, err
	}
	if s.userID == "" {
		return ledger.Transaction{}, ErrNoIdentity
	}
	cat, err := s.category(ctx, d.Category)
	if err != nil {
		return ledger.Transaction{}, err
	}

	var created ledger.Transaction
	err = s.q.Mutate(ctx, "add transaction", func(ctx context.Context) error {
		var err error
		created, err = s.gw.CreateTransaction(ctx, s.userID, d, cat.ID)
		return err
	}, s.affected()...)
	if err != nil {
		return ledger.Transaction{}, err
	}

	s.logger.Info().Str("transaction_id", created.ID).Str("type", string(d.Type)).Msg("transaction added")
	return created, nil
}

// UndoTransaction drops the transaction from every cached page right away
// and puts the pages back if the backend refuses.
func (s *Service) UndoTransaction(ctx context.Context, id string) error {
	if s.userID == "" {
		return ErrNoIdentity
	}
	return s.q.Optimistic(ctx, query.Optimistic{
		Op:     "undo transaction",
		Prefix: TransactionsPrefix(s.userID),
		Apply: func(v any) any {
			txns, ok := v.([]ledger.Transaction)
			if !ok {
				return v
			}
			return ledger.Without(txns, id)
		},
		Call: func(ctx context.Context) error {
			return s.gw.UndoTransaction(ctx, id)
		},
		Invalidate: []cache.Key{CountKey(s.userID), BalanceKey(s.userID), SummaryKey(s.userID)},
	})
}

// UpdateTransaction edits a transaction in every cached page, then asks the
// backend; on failure the pages are restored.
func (s *Service) UpdateTransaction(ctx context.Context, id string, in ledger.TransactionInput) error {
	d, err := in.Validate()
	if err != nil {
		return err
	}
	if s.userID == "" {
		return ErrNoIdentity
	}
	cat, err := s.category(ctx, d.Category)
	if err != nil {
		return err
	}

	return s.q.Optimistic(ctx, query.Optimistic{
		Op:     "update transaction",
		Prefix: TransactionsPrefix(s.userID),
		Apply: func(v any) any {
			txns, ok := v.([]ledger.Transaction)
			if !ok {
				return v
			}
			return ledger.Replace(txns, id, func(t ledger.Transaction) ledger.Transaction {
				t.Amount = d.Amount
				t.Type = d.Type
				t.Category = cat.Name
				t.Description = d.Description
				return t
			})
		},
		Call: func(ctx context.Context) error {
			return s.gw.UpdateTransaction(ctx, id, d, cat.ID)
		},
		Invalidate: []cache.Key{BalanceKey(s.userID), SummaryKey(s.userID)},
	})
}

// Find returns a cached transaction by id from any page already loaded
func (s *Service) Find(id string) (ledger.Transaction, bool) {
	store := s.q.Cache()
	for _, k := range store.Keys(TransactionsPrefix(s.userID)) {
		v, ok := store.Snapshot(k)
		if !ok {
			continue
		}
		txns, _ := v.([]ledger.Transaction)
		for _, t := range txns {
			if t.ID == id {
				return t, true
			}
		}
	}
	return ledger.Transaction{}, false
}

// spendingWindow is how many recent transactions the budget page looks at
const spendingWindow = 100

// Budgets compares each limit with this month's spending in the most recent
// transactions.
func (s *Service) Budgets(ctx context.Context, budgets []ledger.Budget) ([]ledger.Usage, error) {
	cats, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := s.Transactions(ctx, 0, spendingWindow)
	if err != nil {
		return nil, err
	}
	return ledger.BudgetReport(cats.Data, budgets, ledger.Spending(txns.Items, s.now())), nil
}

// Today is the service clock's current time, for forms that prefill a date
func (s *Service) Today() time.Time {
	return s.now()
}
