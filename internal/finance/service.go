// Package finance is what the views talk to: every read and write of one
// user's ledger goes through here, keyed and cached through the query layer.
package finance

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/briangreenhill/finboard/internal/backend"
	"github.com/briangreenhill/finboard/internal/cache"
	"github.com/briangreenhill/finboard/internal/ledger"
	"github.com/briangreenhill/finboard/internal/live"
	"github.com/briangreenhill/finboard/internal/query"
	"github.com/briangreenhill/finboard/internal/search"
)

// ErrNoIdentity is returned by writes attempted before the user is known
var ErrNoIdentity = errors.New("no user identity")

// Gateway is the part of the ledger backend the service uses
type Gateway interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID string, offset, limit int) ([]ledger.Transaction, error)
	Search(ctx context.Context, userID string, f search.Filter, offset, limit int) ([]ledger.Transaction, error)
	CountTransactions(ctx context.Context, userID string) (int, error)
	CreateTransaction(ctx context.Context, userID string, d ledger.Draft, categoryID int64) (ledger.Transaction, error)
	UndoTransaction(ctx context.Context, id string) error
	UpdateTransaction(ctx context.Context, id string, d ledger.Draft, categoryID int64) error
	Categories(ctx context.Context) ([]ledger.Category, error)
	MonthlySummary(ctx context.Context, userID string) (ledger.MonthlySummary, error)
}

var _ Gateway = (*backend.Client)(nil)

// Service serves one identity. An empty user id is allowed: reads then
// report Idle and never reach the gateway.
type Service struct {
	userID   string
	gw       Gateway
	q        *query.Client
	pageSize int
	fresh    bool
	now      func() time.Time
	logger   zerolog.Logger
}

type Option func(*Service)

func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithFreshReads makes every read wait for a refetch when its entry is
// stale instead of returning the stale value. Server-rendered pages want
// this since they cannot re-render once the refetch lands.
func WithFreshReads() Option {
	return func(s *Service) { s.fresh = true }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(userID string, gw Gateway, q *query.Client, opts ...Option) *Service {
	s := &Service{
		userID:   userID,
		gw:       gw,
		q:        q,
		pageSize: ledger.DefaultPageSize,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) UserID() string { return s.userID }

func (s *Service) PageSize() int { return s.pageSize }

// Query exposes the underlying client, mainly for subscriptions
func (s *Service) Query() *query.Client { return s.q }

func read[T any](ctx context.Context, s *Service, key cache.Key, fetch func(context.Context) (T, error)) (query.Result[T], error) {
	if s.fresh {
		return query.GetFresh(ctx, s.q, key, fetch)
	}
	return query.Get(ctx, s.q, key, fetch)
}

func (s *Service) Balance(ctx context.Context) (query.Result[decimal.Decimal], error) {
	return read(ctx, s, BalanceKey(s.userID), func(ctx context.Context) (decimal.Decimal, error) {
		return s.gw.Balance(ctx, s.userID)
	})
}

func (s *Service) Count(ctx context.Context) (query.Result[int], error) {
	return read(ctx, s, CountKey(s.userID), func(ctx context.Context) (int, error) {
		return s.gw.CountTransactions(ctx, s.userID)
	})
}

func (s *Service) MonthlySummary(ctx context.Context) (query.Result[ledger.MonthlySummary], error) {
	return read(ctx, s, SummaryKey(s.userID), func(ctx context.Context) (ledger.MonthlySummary, error) {
		return s.gw.MonthlySummary(ctx, s.userID)
	})
}

// Categories are shared by every user; they back the transaction form and
// search interpretation.
func (s *Service) Categories(ctx context.Context) (query.Result[[]ledger.Category], error) {
	return read(ctx, s, CategoriesKey(), s.gw.Categories)
}

// Refresh marks everything a new transaction can change as stale
func (s *Service) Refresh() {
	s.q.Invalidate(s.affected()...)
}

// Register hooks the service's invalidations up to a live channel registry
func (s *Service) Register(reg *live.Registry) {
	reg.Register(live.ActionNewTransaction, live.Invalidates(s.q.Invalidate, s.affected()...))
}

func (s *Service) affected() []cache.Key {
	return []cache.Key{
		TransactionsPrefix(s.userID),
		CountKey(s.userID),
		BalanceKey(s.userID),
		SummaryKey(s.userID),
	}
}
