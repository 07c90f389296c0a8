package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sellerdesk/sellerdesk/internal/core"
)

// CallReport is the CLI view of a dispatched call: the upstream result
// plus the budget state after the call completed.
type CallReport struct {
	StatusCode int                `json:"status_code" yaml:"status_code"`
	Attempts   int                `json:"attempts" yaml:"attempts"`
	ElapsedMs  int64              `json:"elapsed_ms" yaml:"elapsed_ms"`
	Body       map[string]any     `json:"body,omitempty" yaml:"body,omitempty"`
	RateLimit  core.RateLimitInfo `json:"rate_limit" yaml:"rate_limit"`
}

// NewCallReport builds a report from a dispatch result.
func NewCallReport(result *core.Result, info core.RateLimitInfo) CallReport {
	report := CallReport{
		RateLimit: info,
	}
	if result != nil {
		report.StatusCode = result.StatusCode
		report.Attempts = result.Attempts
		report.ElapsedMs = result.Elapsed.Milliseconds()
		report.Body = result.JSON
	}
	return report
}

// FormatCall renders a call report in the requested format.
func FormatCall(format Format, report CallReport) (string, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(report)
	case FormatYAML:
		return marshalYAML(report)
	default:
		return formatCallTable(report)
	}
}

func formatCallTable(report CallReport) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Status", report.StatusCode})
	t.AppendRow(table.Row{"Attempts", report.Attempts})
	t.AppendRow(table.Row{"Elapsed", fmt.Sprintf("%dms", report.ElapsedMs)})
	t.AppendRow(table.Row{"Remaining (sec)", report.RateLimit.RemainingThisSecond})
	t.AppendRow(table.Row{"Remaining (day)", report.RateLimit.RemainingToday})

	rendered := t.Render()

	if len(report.Body) > 0 {
		body, err := json.MarshalIndent(report.Body, "", "  ")
		if err != nil {
			return "", err
		}
		rendered += "\n" + strings.TrimRight(string(body), "\n")
	}

	return rendered, nil
}
