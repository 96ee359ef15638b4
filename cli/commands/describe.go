package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/querykit/cli/internal/ui"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/mapper"
	"github.com/satishbabariya/querykit/query/schema"
)

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <query>",
		Short: "Describe a query's attributes, parameters and criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(rootOpts.Config())
			if err != nil {
				return err
			}
			def, err := find(defs, args[0])
			if err != nil {
				return err
			}
			if rootOpts.JSON() {
				return writeJSON(cmd.OutOrStdout(), describe(def))
			}
			return ui.PrintMarkdown(describeMarkdown(def))
		},
	}
}

func find(defs []*schema.Definition, name string) (*schema.Definition, error) {
	for _, def := range defs {
		if def.Name() == name {
			return def, nil
		}
	}
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name())
	}
	return nil, usageError(fmt.Errorf("unknown query %q (available: %s)", name, strings.Join(names, ", ")))
}

// Description is the machine readable form of describe.
type Description struct {
	Name       string                 `json:"name"`
	Summary    string                 `json:"description,omitempty"`
	Attributes []domain.AttributeInfo `json:"attributes"`
	Params     []ParamInfo            `json:"params"`
	Criteria   []string               `json:"criteria"`
}

// ParamInfo describes one parameter.
type ParamInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

func describe(def *schema.Definition) Description {
	// Every attribute is listed, hidden ones included.
	qc := domain.NewContext()
	for _, a := range def.Attributes() {
		qc.Select(a.Name)
	}

	d := Description{
		Name:       def.Name(),
		Summary:    def.Description(),
		Attributes: mapper.New().Attributes(def, qc),
		Params:     []ParamInfo{},
		Criteria:   []string{},
	}
	for _, p := range def.Params() {
		d.Params = append(d.Params, ParamInfo{Name: p.Name, Type: p.Kind.String(), Required: p.Required, Default: p.Default})
	}
	for _, c := range def.Criteria() {
		d.Criteria = append(d.Criteria, c.Name)
	}
	return d
}

func describeMarkdown(def *schema.Definition) string {
	d := describe(def)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Name)
	if d.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", d.Summary)
	}

	b.WriteString("## Attributes\n\n| Name | Label | Type | Filterable | Sortable |\n|---|---|---|---|---|\n")
	for _, a := range d.Attributes {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", a.Name, a.Label, a.Type, yesNo(a.Filterable), yesNo(a.Sortable))
	}

	if len(d.Params) > 0 {
		b.WriteString("\n## Parameters\n\n| Name | Type | Required | Default |\n|---|---|---|---|\n")
		for _, p := range d.Params {
			value := ""
			if p.Default != nil {
				value = fmt.Sprint(p.Default)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", p.Name, p.Type, yesNo(p.Required), value)
		}
	}

	if len(d.Criteria) > 0 {
		b.WriteString("\n## Criteria\n\n")
		for _, c := range d.Criteria {
			fmt.Fprintf(&b, "- `%s`\n", c)
		}
	}

	fmt.Fprintf(&b, "\n## SQL\n\n```sql\n%s\n```\n", def.SQL())
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
