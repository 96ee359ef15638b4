package commands

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/querykit/cli/internal/ui"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/schema"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	req := &requestOptions{}

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Execute a query against the configured database",
		Long: `Execute a query and print the mapped rows.

Parameters, filters, sorts and the row window come from flags, or from
prompts with --interactive.`,
		Example: `  querykit run employees -p deptId=10 -f salary:gt:5000 -s lastName --page 0:20
  querykit run employees --interactive --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, rootOpts, req, args[0], nil)
		},
	}

	req.register(cmd)
	return cmd
}

func runQuery(cmd *cobra.Command, opts *RootOptions, req *requestOptions, name string, ask askFunc) error {
	s, err := openSession(opts.Config(), true)
	if err != nil {
		return err
	}
	defer s.Close()

	e := s.registry.Query(name)
	if err := req.apply(e, ask); err != nil {
		return err
	}

	if !opts.JSON() {
		if spinner, err := ui.PrintSpinner("running " + name); err == nil {
			defer spinner.Stop()
		}
	}
	result, err := e.Execute(commandContext(cmd))
	if err != nil {
		return err
	}

	if opts.JSON() {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return printResult(e.Definition(), result)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(def *schema.Definition, result *domain.Result) error {
	columns := resultColumns(def, result)
	rows := make([][]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = ui.Cell(row[c])
		}
		rows = append(rows, cells)
	}
	if err := ui.PrintTable(columns, rows); err != nil {
		return err
	}

	md := result.Metadata
	if md == nil {
		ui.PrintSuccess("%d row%s", len(result.Rows), plural(len(result.Rows), "", "s"))
		return nil
	}
	if p := md.Pagination; p != nil {
		ui.PrintSuccess("rows %d-%d of %d in %dms", p.Start, p.End, p.Total, md.ExecutionTimeMs)
	} else {
		ui.PrintSuccess("%d rows in %dms", len(result.Rows), md.ExecutionTimeMs)
	}
	if md.Cached {
		ui.PrintInfo("served from cache")
	}
	if len(md.AppliedCriteria) > 0 {
		ui.PrintInfo("criteria: %v", md.AppliedCriteria)
	}
	return nil
}

// resultColumns orders columns by attribute declaration. Dynamic columns
// follow in name order.
func resultColumns(def *schema.Definition, result *domain.Result) []string {
	seen := make(map[string]bool)
	var columns []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	present := make(map[string]bool)
	for _, row := range result.Rows {
		for k := range row {
			present[k] = true
		}
	}

	if result.Metadata != nil && len(result.Metadata.Attributes) > 0 {
		for _, a := range result.Metadata.Attributes {
			add(a.Name)
		}
	} else if def != nil {
		for _, a := range def.Attributes() {
			if present[a.Name] {
				add(a.Name)
			}
		}
	}

	var extra []string
	for k := range present {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		add(k)
	}
	return columns
}
