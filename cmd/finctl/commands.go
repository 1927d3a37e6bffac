package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/briangreenhill/finboard/internal/backend"
	"github.com/briangreenhill/finboard/internal/cache"
	"github.com/briangreenhill/finboard/internal/config"
	"github.com/briangreenhill/finboard/internal/finance"
	"github.com/briangreenhill/finboard/internal/ledger"
	"github.com/briangreenhill/finboard/internal/search"
	"github.com/briangreenhill/finboard/internal/workspace"
)

var commands = []subcommands.Command{
	&balanceCmd{},
	&transactionsCmd{},
	&watchCmd{},
}

// session is what every command needs: a workspace for one user
type session struct {
	cfg    config.Config
	spaces *workspace.Manager
	ws     *workspace.Workspace
}

func (s *session) Close() { s.spaces.Close() }

func openSession(userID string, live bool) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = cfg.Admin.UserID
	}
	if userID == "" {
		return nil, errors.New("no user: pass -user or set ADMIN_USER_ID")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	gw, err := backend.New(
		backend.WithBaseURL(cfg.APIURL),
		backend.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		backend.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	opts := []workspace.Option{
		workspace.WithLogger(logger),
		workspace.WithServiceOptions(finance.WithPageSize(cfg.PageSize)),
	}
	if live {
		opts = append(opts, workspace.WithLiveURL(cfg.LiveURL), workspace.WithRetryDelay(cfg.LiveRetryDelay))
	}
	spaces := workspace.NewManager(gw, opts...)
	ws, err := spaces.Get(userID)
	if err != nil {
		spaces.Close()
		return nil, err
	}
	return &session{cfg: cfg, spaces: spaces, ws: ws}, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

type balanceCmd struct {
	user string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print the current balance" }
func (*balanceCmd) Usage() string {
	return `finctl balance [-user <id>]
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User id. Defaults to ADMIN_USER_ID.")
}

func (c *balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(c.user, false)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	res, err := s.ws.Service.Balance(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Println(ledger.FormatMoney(res.Data, s.cfg.Currency))
	return subcommands.ExitSuccess
}

type transactionsCmd struct {
	user   string
	offset int
	limit  int
	query  string
}

func (*transactionsCmd) Name() string     { return "transactions" }
func (*transactionsCmd) Synopsis() string { return "list or search transactions" }
func (*transactionsCmd) Usage() string {
	return `finctl transactions [-user <id>] [-offset <n>] [-limit <n>] [-search <text>]

  Lists one page of transactions, newest first. With -search the text is read
  as a date (today, yesterday, 2024-03-05, 5/3/2024), then a category name,
  then free text.
`
}

func (c *transactionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User id. Defaults to ADMIN_USER_ID.")
	f.IntVar(&c.offset, "offset", 0, "Number of transactions to skip.")
	f.IntVar(&c.limit, "limit", 0, "Page size. Defaults to PAGE_SIZE.")
	f.StringVar(&c.query, "search", "", "Search input.")
}

func (c *transactionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(c.user, false)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	var listing finance.Listing
	if search.Blank(c.query) {
		listing, err = s.ws.Service.Transactions(ctx, c.offset, c.limit)
	} else {
		listing, err = s.ws.Service.Search(ctx, c.query, c.offset, c.limit)
	}
	if err != nil {
		return fail(err)
	}
	printListing(os.Stdout, listing, s.cfg.Currency)
	return subcommands.ExitSuccess
}

func printListing(out io.Writer, l finance.Listing, currency string) {
	if !l.Filter.IsZero() {
		fmt.Fprintf(out, "filter: %s\n", l.Filter)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, t := range l.Items {
		amount := ledger.FormatMoney(t.Amount, currency)
		if t.Type == ledger.Debit {
			amount = "-" + amount
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Date.Format("2006-01-02"), t.Type, t.Category, amount, t.Description)
	}
	_ = tw.Flush()
	if l.Page.Total > 0 {
		fmt.Fprintf(out, "page %d of %d\n", l.Page.Number(), l.Page.Count())
	}
}

type watchCmd struct {
	user string
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "print the balance every time the ledger changes" }
func (*watchCmd) Usage() string {
	return `finctl watch [-user <id>]

  Stays connected to the live channel and prints the balance again whenever
  a new transaction is announced. Stop with Ctrl-C.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User id. Defaults to ADMIN_USER_ID.")
}

func (c *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession(c.user, true)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	unsubscribe := s.ws.Store.Subscribe(finance.BalanceKey(s.ws.UserID), func(_ cache.Key, e cache.Entry) {
		printBalance(os.Stdout, e, s.cfg.Currency)
	})
	defer unsubscribe()

	if _, err := s.ws.Service.Balance(ctx); err != nil {
		return fail(err)
	}
	<-ctx.Done()
	return subcommands.ExitSuccess
}

// printBalance prints settled balance entries and skips loading and stale ones
func printBalance(out io.Writer, e cache.Entry, currency string) {
	switch {
	case e.Status == cache.Error:
		fmt.Fprintf(out, "balance unavailable: %v\n", e.Err)
	case e.Fresh():
		if d, ok := e.Value.(decimal.Decimal); ok {
			fmt.Fprintf(out, "%s  %s\n", e.UpdatedAt.Format("15:04:05"), ledger.FormatMoney(d, currency))
		}
	}
}
