package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/core/store"
	"github.com/sellerdesk/sellerdesk/internal/output"
)

var (
	rateLimitListOutput  string
	rateLimitListOut     string
	rateLimitListOutDir  string
	rateLimitListAll     bool
	rateLimitListAccount string
	rateLimitListPrefix  string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored daily budget state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitListOutput)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.DayBudgetQuery{
			All:     rateLimitListAll,
			Account: strings.TrimSpace(rateLimitListAccount),
			Prefix:  strings.TrimSpace(rateLimitListPrefix),
		}
		if !query.All && query.Account == "" && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListDayBudgets(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(rateLimitListOut)
		outDir := strings.TrimSpace(rateLimitListOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}

		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("rate-limit.list.%s", outputExtension(format)))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		ceiling := 0
		if cfg := config.GetConfig(); cfg != nil {
			ceiling = cfg.Marketplace.PerDay
		}

		rows := make([]output.BudgetRow, 0, len(entries))
		for _, entry := range entries {
			rows = append(rows, output.NewBudgetRow(entry.State, entry.UpdatedAt, ceiling))
		}

		rendered, err := output.FormatBudgets(format, rows)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml")
	rateLimitListCmd.Flags().StringVar(&rateLimitListOut, "out", "", "Write output to a file (default stdout)")
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutDir, "out-dir", "", "Write output to a directory")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all accounts")
	rateLimitListCmd.Flags().StringVar(&rateLimitListAccount, "account", "", "List a single account (exact match)")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List accounts with matching prefix")
}
