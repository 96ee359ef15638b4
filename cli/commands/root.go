// Package commands implements the querykit command line.
package commands

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/querykit/cli/internal/ui"
	"github.com/satishbabariya/querykit/internal/config"
	"github.com/satishbabariya/querykit/internal/debug"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // validation failed or the query returned an error
	ExitCommandError = 2 // bad flags, unreadable config or definitions
)

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json"}

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigFile  string
	Definitions string
	Dialect     string
	LogLevel    string
	Format      string

	config *config.Config
}

// Config returns the configuration loaded before the command ran.
func (o *RootOptions) Config() *config.Config {
	return o.config
}

// JSON reports whether output is machine readable.
func (o *RootOptions) JSON() bool {
	return o.Format == "json"
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "querykit",
		Short: "Compile and run declarative SQL queries",
		Long: `querykit loads query definitions from YAML, compiles them into
paginated, dialect specific SQL and runs them against a database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default searches ./.querykit.yaml, ~/.querykit.yaml)")
	flags.StringVarP(&opts.Definitions, "definitions", "d", "", "definitions file or directory")
	flags.StringVar(&opts.Dialect, "dialect", "", "pagination dialect")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error|off)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDialectsCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return usageError(fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.LoadConfig(o.ConfigFile)
	if err != nil {
		return usageError(err)
	}
	if o.Definitions != "" {
		cfg.Definitions = o.Definitions
	}
	if o.Dialect != "" {
		cfg.Dialect = o.Dialect
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	o.config = cfg

	debug.InitWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	ui.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if o.JSON() {
		ui.DisableColor()
	}
	return nil
}

// commandError carries a dedicated exit code.
type commandError struct {
	code int
	err  error
}

func (e *commandError) Error() string { return e.err.Error() }
func (e *commandError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &commandError{code: ExitCommandError, err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ce *commandError
	if errors.As(err, &ce) {
		return ce.code
	}
	return ExitFailure
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := NewRootCommand().Execute()
	if err == nil {
		return ExitSuccess
	}

	ui.PrintError("%v", err)
	if isFlagError(err) {
		fmt.Fprintln(ui.Err, "Run 'querykit --help' for usage.")
		return ExitCommandError
	}
	return ExitCode(err)
}

func isFlagError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown flag", "unknown command", "unknown shorthand flag", "accepts ", "requires ", "invalid argument"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
