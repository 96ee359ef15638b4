package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/querykit/cli/internal/ui"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

// QuerySummary describes one loaded definition.
type QuerySummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Attributes  int    `json:"attributes"`
	Params      int    `json:"params"`
	Criteria    int    `json:"criteria"`
	PageSize    int    `json:"defaultPageSize,omitempty"`
	MaxPageSize int    `json:"maxPageSize,omitempty"`
	Cached      bool   `json:"cached"`
}

// ValidationReport is the output of the validate command.
type ValidationReport struct {
	Valid   bool              `json:"valid"`
	Path    string            `json:"path"`
	Queries []QuerySummary    `json:"queries,omitempty"`
	Error   *qerrors.Response `json:"error,omitempty"`
	Detail  string            `json:"detail,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [definitions-path]",
		Short: "Validate query definitions",
		Long: `Load and build every query definition without touching a database.

Reports YAML errors, unknown fields, unsupported apiVersions, duplicate
query names and definition errors such as unknown attribute references.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			if len(args) > 0 {
				cfg.Definitions = args[0]
			}
			return runValidate(rootOpts, cmd.OutOrStdout())
		},
	}
}

func runValidate(opts *RootOptions, w io.Writer) error {
	cfg := opts.Config()
	report := ValidationReport{Path: cfg.Definitions}

	defs, err := loadDefinitions(cfg)
	if err != nil {
		resp := qerrors.ToResponse(err)
		report.Error = &resp
		report.Detail = err.Error()
	} else {
		report.Valid = true
		for _, def := range defs {
			report.Queries = append(report.Queries, summarize(def))
		}
	}

	if opts.JSON() {
		if encErr := writeJSON(w, report); encErr != nil {
			return encErr
		}
		if err != nil {
			return &commandError{code: ExitFailure, err: err}
		}
		return nil
	}

	if err != nil {
		return err
	}

	ui.PrintHeader("querykit", "Validate definitions")
	rows := make([][]string, 0, len(report.Queries))
	for _, q := range report.Queries {
		rows = append(rows, []string{
			q.Name,
			strconv.Itoa(q.Attributes),
			strconv.Itoa(q.Params),
			strconv.Itoa(q.Criteria),
			pageLabel(q),
			strconv.FormatBool(q.Cached),
		})
	}
	if err := ui.PrintTable([]string{"Query", "Attributes", "Params", "Criteria", "Page", "Cached"}, rows); err != nil {
		return err
	}
	ui.PrintSuccess("%d quer%s valid in %s", len(defs), plural(len(defs), "y", "ies"), cfg.Definitions)
	return nil
}

func summarize(def *schema.Definition) QuerySummary {
	return QuerySummary{
		Name:        def.Name(),
		Description: def.Description(),
		Attributes:  len(def.Attributes()),
		Params:      len(def.Params()),
		Criteria:    len(def.Criteria()),
		PageSize:    def.DefaultPageSize(),
		MaxPageSize: def.MaxPageSize(),
		Cached:      def.CachePolicy().Enabled,
	}
}

func pageLabel(q QuerySummary) string {
	switch {
	case q.PageSize == 0 && q.MaxPageSize == 0:
		return "-"
	case q.MaxPageSize == 0:
		return strconv.Itoa(q.PageSize)
	}
	return fmt.Sprintf("%d (max %d)", q.PageSize, q.MaxPageSize)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
