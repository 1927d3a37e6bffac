package finance

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/briangreenhill/finboard/internal/cache"
	"github.com/briangreenhill/finboard/internal/ledger"
)

// recentCount is how many transactions the dashboard lists
const recentCount = 5

// CategorySpend is one row of the dashboard's spending breakdown
type CategorySpend struct {
	Category string
	Amount   decimal.Decimal
}

type Dashboard struct {
	Status   cache.Status
	Balance  decimal.Decimal
	Summary  ledger.Summary
	Recent   []ledger.Transaction
	Spending []CategorySpend
	// Monthly is only set when the backend's summary endpoint answered
	Monthly *ledger.MonthlySummary
	Page    ledger.Page
}

// Dashboard loads balance, the first page of transactions and the monthly
// summary concurrently. A failing monthly summary is logged and left out;
// the other two are required.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		d       Dashboard
		listing Listing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.Balance(gctx)
		d.Balance = res.Data
		d.Status = res.Status
		return err
	})
	g.Go(func() error {
		var err error
		listing, err = s.Transactions(gctx, 0, s.pageSize)
		return err
	})
	g.Go(func() error {
		res, err := s.MonthlySummary(gctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("monthly summary unavailable")
			return nil
		}
		if res.Loaded {
			m := res.Data
			d.Monthly = &m
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{Status: cache.Error}, err
	}

	d.Page = listing.Page
	d.Summary = ledger.Summarize(listing.Items)
	d.Recent = ledger.Recent(listing.Items, recentCount)
	d.Spending = byCategory(listing.Items)
	return d, nil
}

// byCategory sums debits per category, largest first
func byCategory(txns []ledger.Transaction) []CategorySpend {
	sums := make(map[string]decimal.Decimal)
	for _, t := range txns {
		if t.Type != ledger.Debit || t.Status == ledger.Undone {
			continue
		}
		sums[t.Category] = sums[t.Category].Add(t.Amount)
	}
	out := make([]CategorySpend, 0, len(sums))
	for c, amt := range sums {
		out = append(out, CategorySpend{Category: c, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Category < out[j].Category
	})
	return out
}
