package budget

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briangreenhill/finboard/internal/ledger"
)

// PGStore keeps budgets in Postgres, for deployments running more than one
// dashboard instance
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// OpenPostgres connects to url and creates the table
func OpenPostgres(ctx context.Context, url string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create budgets table: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) List(ctx context.Context, userID string) ([]ledger.Budget, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalid)
	}
	if err := s.seed(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, rebind(listQuery), userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []ledger.Budget
	for rows.Next() {
		var category, limit string
		if err := rows.Scan(&category, &limit); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b, err := parseLimit(category, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PGStore) seed(ctx context.Context, userID string) error {
	var n int
	if err := s.pool.QueryRow(ctx, rebind(countQuery), userID).Scan(&n); err != nil {
		return fmt.Errorf("count budgets: %w", err)
	}
	if n > 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range ledger.DefaultBudgets() {
		batch.Queue(rebind(seedQuery), userID, b.Category, key(b.Category), b.Limit.String())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed budgets: %w", err)
	}
	return nil
}

func (s *PGStore) Put(ctx context.Context, userID string, b ledger.Budget) error {
	b, err := check(userID, b)
	if err != nil {
		return err
	}
	if err := s.seed(ctx, userID); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, rebind(putQuery), userID, b.Category, key(b.Category), b.Limit.String()); err != nil {
		return fmt.Errorf("put budget %s: %w", b.Category, err)
	}
	return nil
}
