package budget

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/briangreenhill/finboard/internal/ledger"
)

// SQLStore keeps budgets in a local SQLite file
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens dsn (a path or file: URI) and creates the table
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps SQLite from reporting busy under concurrent requests
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create budgets table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) List(ctx context.Context, userID string) ([]ledger.Budget, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalid)
	}
	if err := s.seed(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, listQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (s *SQLStore) seed(ctx context.Context, userID string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, countQuery, userID).Scan(&n); err != nil {
		return fmt.Errorf("count budgets: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed budgets: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, b := range ledger.DefaultBudgets() {
		if _, err := tx.ExecContext(ctx, seedQuery, userID, b.Category, key(b.Category), b.Limit.String()); err != nil {
			return fmt.Errorf("seed budget %s: %w", b.Category, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Put(ctx context.Context, userID string, b ledger.Budget) error {
	b, err := check(userID, b)
	if err != nil {
		return err
	}
	if err := s.seed(ctx, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, putQuery, userID, b.Category, key(b.Category), b.Limit.String()); err != nil {
		return fmt.Errorf("put budget %s: %w", b.Category, err)
	}
	return nil
}
