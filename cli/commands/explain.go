package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/querykit/cli/internal/ui"
	"github.com/satishbabariya/querykit/cli/internal/watch"
	"github.com/satishbabariya/querykit/query/executor"
)

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	req := &requestOptions{}
	var watchFiles bool

	cmd := &cobra.Command{
		Use:   "explain <query>",
		Short: "Show the SQL a request compiles to",
		Long: `Compile a request without executing it and print the data and count
statements, their arguments and the criteria that applied.

With --watch the definitions are reloaded and the request recompiled
whenever a definitions file changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explain := func() error {
				return runExplain(rootOpts, req, args[0], cmd.OutOrStdout())
			}
			if !watchFiles {
				return explain()
			}

			w, err := watch.NewWatcher(rootOpts.Config().Definitions, explain)
			if err != nil {
				return usageError(err)
			}
			w.OnError(func(err error) { ui.PrintError("%v", err) })

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
			defer stop()
			ui.PrintInfo("watching %s (ctrl-c to stop)", rootOpts.Config().Definitions)
			return w.Run(ctx)
		},
	}

	req.register(cmd)
	cmd.Flags().BoolVarP(&watchFiles, "watch", "w", false, "recompile when definitions change")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runExplain(opts *RootOptions, req *requestOptions, name string, w io.Writer) error {
	s, err := openSession(opts.Config(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	e := s.registry.Query(name)
	if err := req.apply(e, nil); err != nil {
		return err
	}
	plan, err := e.Explain()
	if err != nil {
		return err
	}

	if opts.JSON() {
		return writeJSON(w, plan)
	}
	printPlan(name, plan)
	return nil
}

func printPlan(name string, plan *executor.Plan) {
	ui.PrintHeader(name, "dialect "+plan.Strategy)

	ui.PrintSection("Query")
	ui.PrintCodeBlock(plan.SQL, "sql")
	if len(plan.Args) > 0 {
		ui.PrintList(formatArgs(plan.Args))
	}
	if len(plan.Binds) > 0 {
		ui.PrintSection("Binds")
		ui.PrintKeyValues(plan.Binds)
	}

	if plan.CountSQL != "" {
		ui.PrintSection("Count")
		ui.PrintCodeBlock(plan.CountSQL, "sql")
	}

	ui.PrintSection("Criteria")
	if len(plan.Applied) == 0 {
		ui.PrintInfo("no optional criteria applied")
	} else {
		ui.PrintList(plan.Applied)
	}
	for _, s := range plan.Skipped {
		ui.PrintWarning("%s on %s skipped: %s", s.Kind, s.Attribute, s.Reason)
	}

	if plan.Page != nil {
		ui.PrintInfo("rows %s", plan.Page)
	}
}

func formatArgs(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fmt.Sprintf("$%d = %s", i+1, strings.TrimSpace(ui.Cell(a)))
	}
	return out
}
