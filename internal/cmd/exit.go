package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// ExitWithCode logs a fatal error with foundry exit-code metadata and
// terminates the process. Pass a nil logger for failures that happen
// before logging is up; those fall back to plain stderr output.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		printFatal(msg, err)
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_description", info.Description),
		zap.String("exit_category", info.Category),
	}
	fields, err = appendEnvelopeFields(fields, err)
	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr is the pre-logger variant; everything goes to stderr.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		printFatal(msg, err)
		fmt.Fprintf(os.Stderr, "(exit code: %d)\n", exitCode)
		os.Exit(int(exitCode))
	}

	printFatal(msg, err)
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)

	os.Exit(info.Code)
}

// appendEnvelopeFields unpacks an ErrorEnvelope into structured fields and
// returns the underlying error so zap.Error reports the root cause.
func appendEnvelopeFields(fields []zap.Field, err error) ([]zap.Field, error) {
	envelope, ok := err.(*errors.ErrorEnvelope)
	if !ok {
		return fields, err
	}

	fields = append(fields,
		zap.String("error_code", envelope.Code),
		zap.String("error_message", envelope.Message),
		zap.String("correlation_id", envelope.CorrelationID),
		zap.String("trace_id", envelope.TraceID),
	)
	if envelope.Context != nil {
		fields = append(fields, zap.Any("error_context", envelope.Context))
	}
	if original, ok := envelope.Original.(error); ok && original != nil {
		return fields, original
	}
	return fields, err
}

func printFatal(msg string, err error) {
	switch e := err.(type) {
	case nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	case *errors.ErrorEnvelope:
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %v (correlation: %s, trace: %s)\n",
			msg, e.Code, e.Message, e.CorrelationID, e.TraceID)
		if original, ok := e.Original.(error); ok && original != nil {
			fmt.Fprintf(os.Stderr, "Underlying error: %v\n", original)
		}
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	}
}
