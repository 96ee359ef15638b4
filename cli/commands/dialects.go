package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/querykit/cli/internal/ui"
	"github.com/satishbabariya/querykit/query/domain"
)

// DialectInfo describes a registered pagination strategy.
type DialectInfo struct {
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases"`
	BindStyle string   `json:"bindStyle"`
	Example   string   `json:"example"`
}

// NewDialectsCommand creates the dialects command.
func NewDialectsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List the supported pagination dialects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := listDialects()
			if rootOpts.JSON() {
				return writeJSON(cmd.OutOrStdout(), infos)
			}

			rows := make([][]string, 0, len(infos))
			for _, d := range infos {
				rows = append(rows, []string{d.Name, strings.Join(d.Aliases, ", "), d.BindStyle})
			}
			if err := ui.PrintTable([]string{"Dialect", "Aliases", "Binds"}, rows); err != nil {
				return err
			}
			for _, d := range infos {
				ui.PrintSection(d.Name)
				ui.PrintCodeBlock(d.Example, "sql")
			}
			return nil
		},
	}
}

func listDialects() []DialectInfo {
	names := dialects.Names()
	infos := make([]DialectInfo, 0, len(names))
	for _, name := range names {
		s, _ := dialects.Resolve(name)
		infos = append(infos, DialectInfo{
			Name:      name,
			Aliases:   dialects.Aliases(name),
			BindStyle: s.BindStyle().String(),
			Example:   s.Paginate("SELECT * FROM t", domain.Window(20, 40), map[string]any{}),
		})
	}
	return infos
}
