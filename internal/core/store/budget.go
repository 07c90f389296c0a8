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

// GetDayBudget returns persisted day-window state for an account, or nil
// when none has been recorded.
func (s *Store) GetDayBudget(ctx context.Context, account string) (*core.DayBudgetState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	account = strings.TrimSpace(account)
	if account == "" {
		return nil, errors.New("account is required")
	}

	var (
		used     int
		dayStart int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT used, day_start
		FROM day_budgets
		WHERE account = ?
	`, account)

	if err := row.Scan(&used, &dayStart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch day budget: %w", err)
	}

	return &core.DayBudgetState{
		Account:  account,
		Used:     used,
		DayStart: time.Unix(dayStart, 0).UTC(),
	}, nil
}

// SaveDayBudget upserts day-window state for an account.
func (s *Store) SaveDayBudget(ctx context.Context, state *core.DayBudgetState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if state == nil {
		return errors.New("day budget state is required")
	}

	account := strings.TrimSpace(state.Account)
	if account == "" {
		return errors.New("account is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO day_budgets (account, used, day_start, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			used = excluded.used,
			day_start = excluded.day_start,
			updated_at = excluded.updated_at
	`, account, state.Used, state.DayStart.UTC().Unix(), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store day budget: %w", err)
	}

	return nil
}
