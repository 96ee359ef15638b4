// Package schema holds the immutable query definition model and the builder
// that validates it.
package schema

import (
	"math"
	"slices"
	"time"

	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/domain"
)

// FindByKeyPriority is the priority of find-by-key criteria. It sorts
// before every ordinary priority.
const FindByKeyPriority = math.MinInt32

// ReservedParams are bind names owned by the pagination strategies.
var ReservedParams = []string{"startRow", "endRow", "offset", "limit"}

// Converter replaces the kind table conversion for one attribute.
type Converter func(raw any, ctx *domain.Context) (any, error)

// Calculator computes a virtual attribute from the already mapped row.
type Calculator func(row domain.RowView, ctx *domain.Context) (any, error)

// Formatter renders an attribute value for display.
type Formatter func(value any, ctx *domain.Context) (string, error)

// SecurityRule decides whether the caller may see an attribute.
type SecurityRule func(ctx *domain.Context) bool

// ParamProcessor validates and normalizes a parameter value. It may write
// other parameters into the context.
type ParamProcessor func(value any, ctx *domain.Context) (any, error)

// Generator builds a criteria fragment and its bind values at compile time.
type Generator func(ctx *domain.Context) (fragment string, binds map[string]any, err error)

// Condition decides whether a criteria is spliced into the SQL.
type Condition func(ctx *domain.Context) bool

// PreProcessor runs before parameters are processed.
type PreProcessor func(ctx *domain.Context) error

// RowProcessor runs on every mapped row.
type RowProcessor func(row domain.Row, ctx *domain.Context) error

// PostProcessor runs on the complete result.
type PostProcessor func(result *domain.Result, ctx *domain.Context) error

// AttributeDef declares one output field of a query.
type AttributeDef struct {
	Name       string
	Column     string
	Kind       convert.Kind
	Label      string
	Filterable bool
	Sortable   bool
	PrimaryKey bool
	Virtual    bool
	Hidden     bool
	Operators  []domain.Operator
	Default    any
	DependsOn  []string

	Converter  Converter
	Calculator Calculator
	Formatter  Formatter
	Security   SecurityRule
}

// ColumnName returns the result column backing the attribute.
func (a AttributeDef) ColumnName() string {
	if a.Column != "" {
		return a.Column
	}
	return a.Name
}

// AllowedOperators returns the declared operators, or the defaults of the
// attribute kind when none were declared. Non-filterable attributes allow none.
func (a AttributeDef) AllowedOperators() []domain.Operator {
	if !a.Filterable {
		return nil
	}
	if len(a.Operators) > 0 {
		return slices.Clone(a.Operators)
	}
	return DefaultOperators(a.Kind)
}

// Supports reports whether a filter with op may target the attribute.
func (a AttributeDef) Supports(op domain.Operator) bool {
	return slices.Contains(a.AllowedOperators(), op)
}

// Restricted reports whether the attribute carries a security rule.
func (a AttributeDef) Restricted() bool {
	return a.Security != nil
}

var (
	textOperators = []domain.Operator{
		domain.Equals, domain.NotEquals,
		domain.Like, domain.NotLike, domain.Contains, domain.StartsWith, domain.EndsWith,
		domain.In, domain.NotIn,
		domain.IsNull, domain.IsNotNull,
	}
	orderedOperators = []domain.Operator{
		domain.Equals, domain.NotEquals,
		domain.GreaterThan, domain.GreaterThanOrEqual, domain.LessThan, domain.LessThanOrEqual,
		domain.In, domain.NotIn, domain.Between,
		domain.IsNull, domain.IsNotNull,
	}
	booleanOperators = []domain.Operator{
		domain.Equals, domain.NotEquals, domain.IsNull, domain.IsNotNull,
	}
)

// DefaultOperators returns the operators a filterable attribute of kind k
// supports when it declares none.
func DefaultOperators(k convert.Kind) []domain.Operator {
	switch k {
	case convert.String:
		return slices.Clone(textOperators)
	case convert.Boolean:
		return slices.Clone(booleanOperators)
	case convert.Any:
		return slices.Clone(domain.AllOperators)
	}
	return slices.Clone(orderedOperators)
}

// ParamDef declares one bind parameter.
type ParamDef struct {
	Name        string
	Kind        convert.Kind
	Default     any
	Required    bool
	Processor   ParamProcessor
	Description string
}

// CriteriaDef declares an optional SQL fragment bound to a --name placeholder.
type CriteriaDef struct {
	Name      string
	SQL       string
	Generator Generator
	Condition Condition
	Priority  int
	FindByKey bool
	Params    []string
}

// Applies evaluates the criteria condition. Without a condition a criteria
// applies when every parameter it references has a value.
func (c CriteriaDef) Applies(ctx *domain.Context) bool {
	if c.Condition != nil {
		return c.Condition(ctx)
	}
	for _, p := range c.Params {
		if !ctx.HasParam(p) {
			return false
		}
	}
	return true
}

// CachePolicy controls the result cache for a definition.
type CachePolicy struct {
	Enabled bool
	TTL     time.Duration
}

// Definition is an immutable, validated query declaration. It is safe for
// concurrent use.
type Definition struct {
	name        string
	sql         string
	description string

	attributes []AttributeDef
	attrIndex  map[string]int
	params     []ParamDef
	paramIndex map[string]int
	criteria   []CriteriaDef

	virtualOrder []string
	sqlBinds     []string

	pre  []PreProcessor
	row  []RowProcessor
	post []PostProcessor

	defaultPageSize int
	maxPageSize     int
	cache           CachePolicy
	timeout         time.Duration
	includeDynamic  bool
}

// Name returns the unique query name.
func (d *Definition) Name() string { return d.name }

// SQL returns the raw SQL template.
func (d *Definition) SQL() string { return d.sql }

// Description returns the free form description.
func (d *Definition) Description() string { return d.description }

// Attributes returns the attributes in declaration order.
func (d *Definition) Attributes() []AttributeDef { return slices.Clone(d.attributes) }

// Attribute looks up an attribute by name.
func (d *Definition) Attribute(name string) (AttributeDef, bool) {
	i, ok := d.attrIndex[name]
	if !ok {
		return AttributeDef{}, false
	}
	return d.attributes[i], true
}

// Params returns the parameters in declaration order.
func (d *Definition) Params() []ParamDef { return slices.Clone(d.params) }

// Param looks up a parameter by name.
func (d *Definition) Param(name string) (ParamDef, bool) {
	i, ok := d.paramIndex[name]
	if !ok {
		return ParamDef{}, false
	}
	return d.params[i], true
}

// Criteria returns the criteria in application order: ascending priority,
// ties in declaration order.
func (d *Definition) Criteria() []CriteriaDef { return slices.Clone(d.criteria) }

// VirtualOrder returns the virtual attribute names ordered so that every
// attribute follows the attributes it depends on.
func (d *Definition) VirtualOrder() []string { return slices.Clone(d.virtualOrder) }

// SQLBinds returns the bind names referenced by the SQL template.
func (d *Definition) SQLBinds() []string { return slices.Clone(d.sqlBinds) }

// PreProcessors returns the pre-processors in order.
func (d *Definition) PreProcessors() []PreProcessor { return slices.Clone(d.pre) }

// RowProcessors returns the row processors in order.
func (d *Definition) RowProcessors() []RowProcessor { return slices.Clone(d.row) }

// PostProcessors returns the post-processors in order.
func (d *Definition) PostProcessors() []PostProcessor { return slices.Clone(d.post) }

// DefaultPageSize returns the page size used when a window has no end. Zero
// means unbounded.
func (d *Definition) DefaultPageSize() int { return d.defaultPageSize }

// MaxPageSize returns the largest allowed window. Zero means unbounded.
func (d *Definition) MaxPageSize() int { return d.maxPageSize }

// CachePolicy returns the result cache policy.
func (d *Definition) CachePolicy() CachePolicy { return d.cache }

// Timeout returns the statement timeout. Zero means none.
func (d *Definition) Timeout() time.Duration { return d.timeout }

// IncludeDynamic reports whether undeclared result columns are returned.
func (d *Definition) IncludeDynamic() bool { return d.includeDynamic }
