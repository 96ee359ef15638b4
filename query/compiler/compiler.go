// Package compiler compiles a query definition and a per-call context into
// dialect specific SQL and a flat bind map.
package compiler

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/satishbabariya/querykit/internal/debug"
	"github.com/satishbabariya/querykit/query/dialect"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

// Compiled is the output of one compilation.
type Compiled struct {
	// SQL is the final statement, paginated when a window was requested.
	SQL string
	// CountSQL counts the rows matching the criteria and filters.
	CountSQL string
	// BaseSQL is the template after criteria splicing and cleanup.
	BaseSQL string
	// Binds holds every bind value referenced by SQL and CountSQL.
	Binds map[string]any
	// Applied lists the spliced criteria in application order.
	Applied []string
	// Skipped lists the filters and sorts that were dropped.
	Skipped []Skipped
	// Page is the effective window when Paginated is set.
	Page      domain.Pagination
	Paginated bool
	// Wrapped reports whether the base query was nested at least once.
	Wrapped bool
	// Levels is the number of subquery levels added around the base query.
	Levels int
}

// Skipped describes a filter or sort the compiler ignored.
type Skipped struct {
	Kind      string `json:"kind"`
	Attribute string `json:"attribute"`
	Reason    string `json:"reason"`
}

// Compiler turns definitions into SQL. It holds no per-call state and is
// safe for concurrent use.
type Compiler struct {
	strategy dialect.Strategy
	logger   *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger used for skipped filter and sort warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// New creates a compiler for a pagination strategy. A nil strategy selects
// the ROWNUM strategy.
func New(strategy dialect.Strategy, opts ...Option) *Compiler {
	if strategy == nil {
		strategy = dialect.RowNum{}
	}
	c := &Compiler{strategy: strategy}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strategy returns the pagination strategy.
func (c *Compiler) Strategy() dialect.Strategy {
	return c.strategy
}

func (c *Compiler) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return debug.Logger()
}

// Compile produces the SQL for def under ctx. It records the applied
// criteria on ctx.
func (c *Compiler) Compile(def *schema.Definition, ctx *domain.Context) (*Compiled, error) {
	ctx.ResetApplied()
	out := &Compiled{Binds: make(map[string]any)}

	spliced, generated, err := c.spliceCriteria(def, ctx)
	if err != nil {
		return nil, err
	}
	out.BaseSQL = cleanup(spliced)
	out.Applied = ctx.Applied()

	for _, name := range schema.BindNames(out.BaseSQL) {
		v, _ := ctx.Param(name)
		out.Binds[name] = v
	}
	maps.Copy(out.Binds, generated)

	predicates, err := c.buildFilters(def, ctx, out)
	if err != nil {
		return nil, err
	}
	orders := c.buildSorts(def, ctx, out)

	page, paginated := ctx.Pagination()
	if paginated {
		if err := def.CheckPage(page); err != nil {
			ve := &qerrors.ValidationError{Query: def.Name()}
			ve.AddCause("pagination", err)
			return nil, ve
		}
		out.Page = def.EffectivePage(page)
		out.Paginated = true
	}

	sql := out.BaseSQL
	count := out.BaseSQL
	if isComplex(out.BaseSQL) {
		sql = "SELECT * FROM (" + sql + ") base_q"
		count = sql
	}
	if len(predicates) > 0 || len(orders) > 0 || out.Paginated {
		sql = "SELECT * FROM (" + sql + ") filtered_q"
		if len(predicates) > 0 {
			where := " WHERE " + strings.Join(predicates, " AND ")
			sql += where
			count = "SELECT * FROM (" + count + ") filtered_q" + where
		}
		if len(orders) > 0 {
			sql += " ORDER BY " + strings.Join(orders, ", ")
		}
	}
	if out.Paginated {
		sql = c.strategy.Paginate(sql, out.Page, out.Binds)
	}

	out.SQL = sql
	out.CountSQL = "SELECT COUNT(*) FROM (" + count + ") count_q"
	out.Levels = strings.Count(sql, "FROM (") - strings.Count(out.BaseSQL, "FROM (")
	out.Wrapped = out.Levels > 0
	return out, nil
}

// spliceCriteria replaces every criteria placeholder, in ascending priority,
// with its fragment or with nothing.
func (c *Compiler) spliceCriteria(def *schema.Definition, ctx *domain.Context) (string, map[string]any, error) {
	sql := def.SQL()
	generated := make(map[string]any)

	for _, cr := range def.Criteria() {
		if !cr.Applies(ctx) {
			sql = schema.ReplacePlaceholder(sql, cr.Name, " ")
			continue
		}

		fragment := cr.SQL
		if cr.Generator != nil {
			frag, binds, err := cr.Generator(ctx)
			if err != nil {
				return "", nil, &qerrors.ExecutionError{
					Query: def.Name(),
					Op:    "compile",
					Cause: fmt.Errorf("%w: %s: %w", ErrGenerator, cr.Name, err),
				}
			}
			fragment = frag
			maps.Copy(generated, binds)
		}
		if strings.TrimSpace(fragment) == "" {
			sql = schema.ReplacePlaceholder(sql, cr.Name, " ")
			continue
		}

		sql = schema.ReplacePlaceholder(sql, cr.Name, " "+fragment+" ")
		ctx.MarkApplied(cr.Name)
	}
	return sql, generated, nil
}

func (c *Compiler) buildSorts(def *schema.Definition, ctx *domain.Context, out *Compiled) []string {
	var orders []string
	for _, s := range ctx.Sorts() {
		if err := def.CheckSort(s); err != nil {
			c.skip(def, out, "sort", s.Attribute, err.Error())
			continue
		}
		attr, _ := def.Attribute(s.Attribute)
		dir, _ := domain.ParseDirection(string(s.Direction))
		orders = append(orders, attr.ColumnName()+" "+string(dir))
	}
	return orders
}

func (c *Compiler) skip(def *schema.Definition, out *Compiled, kind, attribute, reason string) {
	out.Skipped = append(out.Skipped, Skipped{Kind: kind, Attribute: attribute, Reason: reason})
	c.log().Warn("skipping "+kind, "query", def.Name(), "attribute", attribute, "reason", reason)
}
