package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/specialistvlad/gridci/internal/app"
)

// Exit codes.
const (
	CodeFailure = 1
	CodeUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: CodeUsage, Message: fmt.Sprintf(format, args...)}
}

// Failure wraps an error from a validation or execution failure.
func Failure(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: CodeFailure, Message: err.Error(), Err: err}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	command := app.CommandRun
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if c := app.Command(args[0]); slices.Contains(app.Commands, c) {
			command = c
			args = args[1:]
		}
	}

	flagSet := flag.NewFlagSet("gridci "+string(command), flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
gridci - A small CI pipeline orchestrator.

Usage:
  gridci [command] [options] PATH...

Commands:
  run       Run the pipeline once (default).
  validate  Load and validate every definition, then exit.
  promote   Publish the artifacts of a recorded build: promote -job J -build N.
  watch     Run the pipeline whenever its first job's repository changes.

Arguments:
  PATH
    A .hcl, .yaml or .yml file, or a directory containing them.

Options:
`)
		flagSet.PrintDefaults()
	}

	pipelineFlag := flagSet.String("pipeline", "", "Name of the pipeline to run. Optional when only one is defined.")
	namespaceFlag := flagSet.String("namespace", "", "Prefix for job names, e.g. a user name. Overrides GRIDCI_NAMESPACE.")
	settingsFlag := flagSet.String("settings", "", "Path to a settings file (yaml, json or toml).")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Maximum jobs of a parallel stage running at once. 0 uses the max_parallel setting.")
	traceFlag := flagSet.Bool("trace", false, "Write OpenTelemetry spans to stderr.")

	var promote app.PromoteOptions
	if command == app.CommandPromote {
		flagSet.StringVar(&promote.Job, "job", "", "Job whose build is promoted.")
		flagSet.IntVar(&promote.BuildNumber, "build", 0, "Build number to promote.")
		flagSet.StringVar(&promote.Repository, "repository", "", "Target repository. Defaults to the pipeline's promotion.")
		flagSet.StringVar(&promote.Pattern, "pattern", "", "Only promote artifacts matching this glob.")
	}

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: CodeUsage, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.", "command", command)

	paths := flagSet.Args()
	if len(paths) == 0 {
		slog.Debug("No definition path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if !slices.Contains(app.LogFormats, logFormat) {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}

	logLevel := strings.ToLower(*logLevelFlag)
	if !slices.Contains(app.LogLevels, logLevel) {
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Command:         command,
		Paths:           paths,
		Pipeline:        *pipelineFlag,
		Namespace:       *namespaceFlag,
		SettingsFile:    *settingsFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: *healthPortFlag,
		Workers:         *workersFlag,
		Trace:           *traceFlag,
		Promote:         promote,
	})
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
