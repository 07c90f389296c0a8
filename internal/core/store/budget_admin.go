package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/core"
)

// DayBudgetEntry pairs persisted budget state with its bookkeeping time.
type DayBudgetEntry struct {
	State     core.DayBudgetState
	UpdatedAt time.Time
}

// DayBudgetQuery selects accounts for admin list/reset operations.
type DayBudgetQuery struct {
	All     bool
	Account string
	Prefix  string
}

func (q DayBudgetQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Account) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --account, or --prefix")
}

func (q DayBudgetQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if account := strings.TrimSpace(q.Account); account != "" {
		return "WHERE account = ?", []any{account}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE account LIKE ?", []any{prefix + "%"}, nil
}

func (s *Store) ListDayBudgets(ctx context.Context, q DayBudgetQuery) ([]DayBudgetEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT account, used, day_start, updated_at
		FROM day_budgets
		%s
		ORDER BY account
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list day budgets: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []DayBudgetEntry{}
	for rows.Next() {
		var (
			account   string
			used      int
			dayStart  int64
			updatedAt sql.NullInt64
		)
		if err := rows.Scan(&account, &used, &dayStart, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan day budgets: %w", err)
		}

		entry := DayBudgetEntry{
			State: core.DayBudgetState{
				Account:  account,
				Used:     used,
				DayStart: time.Unix(dayStart, 0).UTC(),
			},
		}
		if updatedAt.Valid {
			entry.UpdatedAt = time.Unix(updatedAt.Int64, 0).UTC()
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list day budgets: %w", err)
	}

	return entries, nil
}

func (s *Store) CountDayBudgets(ctx context.Context, q DayBudgetQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM day_budgets
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count day budgets: %w", err)
	}
	return count, nil
}

func (s *Store) ResetDayBudgets(ctx context.Context, q DayBudgetQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM day_budgets
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset day budgets: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset day budgets: %w", err)
	}
	return affected, nil
}
