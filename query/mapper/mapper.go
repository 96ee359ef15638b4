// Package mapper turns raw result rows into attribute rows: extraction, type
// conversion, attribute security, virtual attributes, formatters and dynamic
// columns, in that order.
package mapper

import (
	"fmt"
	"log/slog"

	"github.com/satishbabariya/querykit/internal/debug"
	"github.com/satishbabariya/querykit/query/cache"
	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/schema"
)

// Rows is the part of *sql.Rows the mapper reads.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Mapper maps result rows for a definition. It is safe for concurrent use.
type Mapper struct {
	meta   *cache.MetadataCache
	ignore []string
	logger *slog.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithMetadataCache reuses column indexes across executions.
func WithMetadataCache(mc *cache.MetadataCache) Option {
	return func(m *Mapper) { m.meta = mc }
}

// WithIgnoredColumns excludes synthetic columns, such as a ROWNUM alias, from
// dynamic attributes.
func WithIgnoredColumns(columns ...string) Option {
	return func(m *Mapper) { m.ignore = append(m.ignore, columns...) }
}

// WithLogger sets the logger for conversion and calculation failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mapper) { m.logger = l }
}

// New creates a mapper.
func New(opts ...Option) *Mapper {
	m := &Mapper{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mapper) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return debug.Logger()
}

// Index returns the column index for a result-set shape.
func (m *Mapper) Index(def *schema.Definition, columns []string, ignore ...string) *cache.ColumnIndex {
	ignore = append(append([]string(nil), m.ignore...), ignore...)
	if m.meta != nil {
		return m.meta.Columns(def, columns, ignore...)
	}
	return cache.NewColumnIndex(def, columns, ignore...)
}

// MapRows reads every row of rows and maps it.
func (m *Mapper) MapRows(def *schema.Definition, rows Rows, ctx *domain.Context) ([]domain.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	ci := m.Index(def, columns)
	p := m.plan(def, ctx)

	out := make([]domain.Row, 0)
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		clear(values)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		row, err := m.mapRow(def, p, ci, values, ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// MapValues maps one row of raw values laid out as ci.Columns.
func (m *Mapper) MapValues(def *schema.Definition, ci *cache.ColumnIndex, values []any, ctx *domain.Context) (domain.Row, error) {
	return m.mapRow(def, m.plan(def, ctx), ci, values, ctx)
}

// attrPlan is the per-execution decision for one attribute.
type attrPlan struct {
	def      schema.AttributeDef
	selected bool
	allowed  bool
}

// plan evaluates selection and security once per execution; both depend
// only on the context.
func (m *Mapper) plan(def *schema.Definition, ctx *domain.Context) []attrPlan {
	attrs := def.Attributes()
	p := make([]attrPlan, len(attrs))
	for i, a := range attrs {
		p[i] = attrPlan{
			def:      a,
			selected: !a.Hidden || ctx.IsSelected(a.Name),
			allowed:  m.allowed(def, a, ctx),
		}
	}
	return p
}

func (m *Mapper) allowed(def *schema.Definition, a schema.AttributeDef, ctx *domain.Context) (ok bool) {
	if a.Security == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			m.log().Error("security rule panicked", "query", def.Name(), "attribute", a.Name, "panic", r)
			ok = false
		}
	}()
	return a.Security(ctx)
}

func (m *Mapper) mapRow(def *schema.Definition, plan []attrPlan, ci *cache.ColumnIndex, values []any, ctx *domain.Context) (domain.Row, error) {
	work := make(domain.Row, len(plan))

	// Column backed attributes. Hidden ones are converted too so that
	// calculators can read them.
	for _, p := range plan {
		if p.def.Virtual {
			continue
		}
		if !p.allowed {
			work[p.def.Name] = nil
			continue
		}
		var raw any
		if pos, ok := ci.Attributes[p.def.Name]; ok && pos >= 0 && pos < len(values) {
			raw = values[pos]
		}
		if raw == nil && p.def.Default != nil {
			raw = p.def.Default
		}
		work[p.def.Name] = m.convert(def, p.def, raw, ctx)
	}

	// Virtual attributes, in dependency order, reading the work row.
	byName := make(map[string]attrPlan, len(plan))
	for _, p := range plan {
		byName[p.def.Name] = p
	}
	for _, name := range def.VirtualOrder() {
		p := byName[name]
		if !p.allowed {
			work[name] = nil
			continue
		}
		work[name] = m.calculate(def, p.def, work, ctx)
	}

	// Formatters run on visible values only; denied attributes stay nil.
	for _, p := range plan {
		if p.def.Formatter == nil || !p.allowed || work[p.def.Name] == nil {
			continue
		}
		if s, ok := m.format(def, p.def, work[p.def.Name], ctx); ok {
			work[p.def.Name] = s
		}
	}

	row := make(domain.Row, len(plan))
	for _, p := range plan {
		if p.selected {
			row[p.def.Name] = work[p.def.Name]
		}
	}

	if def.IncludeDynamic() {
		for _, pos := range ci.Dynamic {
			col := ci.Columns[pos]
			if _, taken := row[col]; taken || pos >= len(values) {
				continue
			}
			row[col] = normalize(values[pos])
		}
	}

	for i, rp := range def.RowProcessors() {
		if err := rp(row, ctx); err != nil {
			return nil, fmt.Errorf("row processor %d: %w", i, err)
		}
	}
	return row, nil
}

// convert is best effort: a failure is logged and the raw value passes through.
func (m *Mapper) convert(def *schema.Definition, a schema.AttributeDef, raw any, ctx *domain.Context) (out any) {
	raw = normalize(raw)
	defer func() {
		if r := recover(); r != nil {
			m.log().Warn("attribute converter panicked", "query", def.Name(), "attribute", a.Name, "panic", r)
			out = raw
		}
	}()

	var err error
	if a.Converter != nil {
		out, err = a.Converter(raw, ctx)
	} else {
		out, err = convert.To(a.Kind, raw)
	}
	if err != nil {
		m.log().Warn("attribute conversion failed", "query", def.Name(), "attribute", a.Name, "error", err)
		return raw
	}
	return out
}

// calculate isolates calculator failures to the attribute.
func (m *Mapper) calculate(def *schema.Definition, a schema.AttributeDef, work domain.Row, ctx *domain.Context) (out any) {
	defer func() {
		if r := recover(); r != nil {
			m.log().Error("calculator panicked", "query", def.Name(), "attribute", a.Name, "panic", r)
			out = nil
		}
	}()

	v, err := a.Calculator(view{work}, ctx)
	if err != nil {
		m.log().Error("calculator failed", "query", def.Name(), "attribute", a.Name, "error", err)
		return nil
	}
	if v == nil {
		return nil
	}
	converted, err := convert.To(a.Kind, v)
	if err != nil {
		m.log().Warn("calculated value conversion failed", "query", def.Name(), "attribute", a.Name, "error", err)
		return v
	}
	return converted
}

func (m *Mapper) format(def *schema.Definition, a schema.AttributeDef, v any, ctx *domain.Context) (out string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log().Error("formatter panicked", "query", def.Name(), "attribute", a.Name, "panic", r)
			ok = false
		}
	}()

	s, err := a.Formatter(v, ctx)
	if err != nil {
		m.log().Error("formatter failed", "query", def.Name(), "attribute", a.Name, "error", err)
		return "", false
	}
	return s, true
}

// view exposes the work row read-only to calculators.
type view struct {
	row domain.Row
}

func (v view) Get(name string) (any, bool) {
	val, ok := v.row[name]
	return val, ok
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
