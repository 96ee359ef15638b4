package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/schema"
	"github.com/satishbabariya/querykit/runtime/client"
)

// requestOptions holds the flags that shape one query request.
type requestOptions struct {
	params      []string
	filters     []string
	sorts       []string
	page        string
	offset      int
	limit       int
	selects     []string
	security    string
	metadata    bool
	interactive bool
}

func (r *requestOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&r.params, "param", "p", nil, "parameter as name=value (repeatable)")
	flags.StringArrayVarP(&r.filters, "filter", "f", nil, "filter as attribute:operator[:value[,value...]] (repeatable)")
	flags.StringArrayVarP(&r.sorts, "sort", "s", nil, "sort as attribute[:asc|desc] (repeatable)")
	flags.StringVar(&r.page, "page", "", "row window as start:end")
	flags.IntVar(&r.offset, "offset", 0, "rows to skip (with --limit)")
	flags.IntVar(&r.limit, "limit", 0, "rows to return")
	flags.StringSliceVar(&r.selects, "select", nil, "hidden attributes to include")
	flags.StringVar(&r.security, "as", "", "security principal passed to security checks")
	flags.BoolVar(&r.metadata, "metadata", true, "include result metadata")
	flags.BoolVarP(&r.interactive, "interactive", "i", false, "prompt for parameters that were not given")
}

// apply copies the request onto e. Values stay strings; parameters and
// filters are converted to their declared kinds downstream.
func (r *requestOptions) apply(e *client.Execution, ask askFunc) error {
	given := make(map[string]string, len(r.params))
	for _, raw := range r.params {
		name, value, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return usageError(fmt.Errorf("invalid --param %q: want name=value", raw))
		}
		given[strings.TrimSpace(name)] = value
	}
	if r.interactive && e.Definition() != nil {
		if err := promptParams(e.Definition(), given, ask); err != nil {
			return err
		}
	}
	for name, value := range given {
		e.WithParam(name, value)
	}

	for _, raw := range r.filters {
		f, err := parseFilter(raw)
		if err != nil {
			return usageError(err)
		}
		e.Where(f.Attribute, f.Operator, f.Values...)
	}

	for _, raw := range r.sorts {
		attr, dir, _ := strings.Cut(raw, ":")
		d, err := domain.ParseDirection(dir)
		if err != nil {
			return usageError(fmt.Errorf("invalid --sort %q: %w", raw, err))
		}
		e.WithSort(attr, d)
	}

	switch {
	case r.page != "":
		start, end, err := parseWindow(r.page)
		if err != nil {
			return usageError(err)
		}
		e.WithPagination(start, end)
	case r.limit > 0:
		e.WithOffset(r.offset, r.limit)
	case r.offset > 0:
		e.WithPagination(r.offset, 0)
	}

	if len(r.selects) > 0 {
		e.Select(r.selects...)
	}
	if r.security != "" {
		e.WithSecurity(r.security)
	}
	e.WithMetadata(r.metadata)
	return nil
}

type parsedFilter struct {
	Attribute string
	Operator  domain.Operator
	Values    []any
}

// parseFilter reads attribute:operator[:values]. List and range operators
// take comma separated values.
func parseFilter(raw string) (parsedFilter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return parsedFilter{}, fmt.Errorf("invalid --filter %q: want attribute:operator[:value]", raw)
	}
	op, err := domain.ParseOperator(parts[1])
	if err != nil {
		return parsedFilter{}, fmt.Errorf("invalid --filter %q: %w", raw, err)
	}

	f := parsedFilter{Attribute: parts[0], Operator: op}
	if !op.NeedsValue() {
		return f, nil
	}
	if len(parts) < 3 {
		return parsedFilter{}, fmt.Errorf("invalid --filter %q: operator %s needs a value", raw, op)
	}
	if op.IsList() || op == domain.Between {
		for _, v := range strings.Split(parts[2], ",") {
			f.Values = append(f.Values, strings.TrimSpace(v))
		}
		return f, nil
	}
	f.Values = []any{parts[2]}
	return f, nil
}

func parseWindow(raw string) (int, int, error) {
	lo, hi, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid --page %q: want start:end", raw)
	}
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --page start %q", lo)
	}
	end := 0
	if strings.TrimSpace(hi) != "" {
		if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return 0, 0, fmt.Errorf("invalid --page end %q", hi)
		}
	}
	return start, end, nil
}

// askFunc asks for one parameter value. An empty answer leaves it unset.
type askFunc func(p schema.ParamDef) (string, error)

func promptParams(def *schema.Definition, given map[string]string, ask askFunc) error {
	if ask == nil {
		ask = surveyAsk
	}
	for _, p := range def.Params() {
		if _, ok := given[p.Name]; ok {
			continue
		}
		answer, err := ask(p)
		if err != nil {
			return fmt.Errorf("prompt %s: %w", p.Name, err)
		}
		if answer != "" {
			given[p.Name] = answer
		}
	}
	return nil
}

func surveyAsk(p schema.ParamDef) (string, error) {
	prompt := &survey.Input{
		Message: fmt.Sprintf("%s (%s):", p.Name, strings.ToLower(p.Kind.String())),
		Help:    p.Description,
	}
	if p.Default != nil {
		prompt.Default = fmt.Sprint(p.Default)
	}

	var opts []survey.AskOpt
	if p.Required {
		opts = append(opts, survey.WithValidator(survey.Required))
	}

	var answer string
	if err := survey.AskOne(prompt, &answer, opts...); err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
