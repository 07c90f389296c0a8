package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/core"
	"github.com/sellerdesk/sellerdesk/internal/observability"
	"github.com/sellerdesk/sellerdesk/internal/output"
)

var (
	callMethod     string
	callQuery      []string
	callBody       string
	callBodyFile   string
	callIdempotent bool
	callTimeout    time.Duration
	callOutput     string
	callOut        string
)

var callCmd = &cobra.Command{
	Use:   "call <path>",
	Short: "Dispatch a single marketplace API call",
	Long: `Dispatch one call through the rate-limited client.

The call waits its turn when the per-second or per-day budget is
exhausted, and throttled responses are retried with backoff. The path is
relative to the configured marketplace base URL.

Examples:
  sellerdesk call /orders --query status=unshipped
  sellerdesk call /orders/123/ack --method POST --body '{"ack":true}'
  sellerdesk call /reports --method POST --body-file report-request.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(callOutput)
		if err != nil {
			return err
		}

		cfg := config.GetConfig()
		if cfg == nil {
			return fmt.Errorf("configuration not loaded")
		}

		query, err := parseQueryFlags(callQuery)
		if err != nil {
			return err
		}

		body, err := resolveCallBody()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		mc, err := buildClient(cfg, db, observability.CLILogger)
		if err != nil {
			return err
		}
		defer mc.Close()

		ctx := cmd.Context()
		if callTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, callTimeout)
			defer cancel()
		}

		op := core.Operation{
			Method:     strings.ToUpper(strings.TrimSpace(callMethod)),
			Path:       args[0],
			Query:      query,
			Body:       body,
			Idempotent: callIdempotent,
		}

		observability.CLILogger.Debug("Dispatching call",
			zap.String("method", op.Method),
			zap.String("path", op.Path))

		result, err := mc.Dispatch(ctx, op)
		if err != nil {
			return err
		}

		sink, err := openSink(callOut)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		report := output.NewCallReport(result, mc.RateLimitInfo())
		rendered, err := output.FormatCall(format, report)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func parseQueryFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	query := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", pair)
		}
		query[strings.TrimSpace(key)] = value
	}
	return query, nil
}

func resolveCallBody() ([]byte, error) {
	if callBody != "" && callBodyFile != "" {
		return nil, fmt.Errorf("--body and --body-file are mutually exclusive")
	}
	if callBody != "" {
		return []byte(callBody), nil
	}
	if callBodyFile != "" {
		data, err := os.ReadFile(callBodyFile)
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVarP(&callMethod, "method", "X", "GET", "HTTP method")
	callCmd.Flags().StringArrayVarP(&callQuery, "query", "q", nil, "Query parameter as key=value (repeatable)")
	callCmd.Flags().StringVar(&callBody, "body", "", "JSON request body")
	callCmd.Flags().StringVar(&callBodyFile, "body-file", "", "Read JSON request body from a file")
	callCmd.Flags().BoolVar(&callIdempotent, "idempotent", false, "Mark a write operation as safe to retry")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Overall call deadline including queue wait (0 = none)")
	callCmd.Flags().StringVar(&callOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml")
	callCmd.Flags().StringVar(&callOut, "out", "", "Write output to a file (default stdout)")
}
