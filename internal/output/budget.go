package output

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sellerdesk/sellerdesk/internal/core"
)

// BudgetRow is the CLI view of one account's persisted daily budget.
type BudgetRow struct {
	Account   string    `json:"account" yaml:"account"`
	Used      int       `json:"used" yaml:"used"`
	Ceiling   int       `json:"ceiling" yaml:"ceiling"`
	Remaining int       `json:"remaining" yaml:"remaining"`
	DayStart  time.Time `json:"day_start" yaml:"day_start"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewBudgetRow derives a row from persisted state and the configured ceiling.
func NewBudgetRow(state core.DayBudgetState, updatedAt time.Time, ceiling int) BudgetRow {
	remaining := ceiling - state.Used
	if remaining < 0 {
		remaining = 0
	}
	return BudgetRow{
		Account:   state.Account,
		Used:      state.Used,
		Ceiling:   ceiling,
		Remaining: remaining,
		DayStart:  state.DayStart,
		UpdatedAt: updatedAt,
	}
}

// FormatBudgets renders the daily budget listing in the requested format.
func FormatBudgets(format Format, rows []BudgetRow) (string, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(rows)
	case FormatYAML:
		return marshalYAML(rows)
	default:
		return formatBudgetTable(rows), nil
	}
}

func formatBudgetTable(rows []BudgetRow) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Account", "Used", "Ceiling", "Remaining", "Day Start (UTC)", "Updated"})

	for _, row := range rows {
		t.AppendRow(table.Row{
			row.Account,
			row.Used,
			row.Ceiling,
			row.Remaining,
			row.DayStart.UTC().Format("2006-01-02"),
			row.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	return t.Render()
}
