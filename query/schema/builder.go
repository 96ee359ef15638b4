package schema

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/qerrors"
)

// Builder assembles a Definition. Build can be called any number of times;
// it never mutates the builder.
type Builder struct {
	name            string
	sql             string
	description     string
	attributes      []AttributeDef
	params          []ParamDef
	criteria        []CriteriaDef
	pre             []PreProcessor
	row             []RowProcessor
	post            []PostProcessor
	defaultPageSize int
	maxPageSize     int
	cache           CachePolicy
	timeout         time.Duration
	includeDynamic  bool
}

// NewBuilder starts a definition with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// SQL sets the SQL template.
func (b *Builder) SQL(sql string) *Builder {
	b.sql = sql
	return b
}

// Description sets a free form description.
func (b *Builder) Description(desc string) *Builder {
	b.description = desc
	return b
}

// Attribute appends an attribute.
func (b *Builder) Attribute(attr AttributeDef) *Builder {
	b.attributes = append(b.attributes, attr)
	return b
}

// Attributes appends several attributes.
func (b *Builder) Attributes(attrs ...AttributeDef) *Builder {
	b.attributes = append(b.attributes, attrs...)
	return b
}

// Param appends a parameter.
func (b *Builder) Param(param ParamDef) *Builder {
	b.params = append(b.params, param)
	return b
}

// Criteria appends a criteria.
func (b *Builder) Criteria(c CriteriaDef) *Builder {
	b.criteria = append(b.criteria, c)
	return b
}

// PreProcessor appends a pre-processor.
func (b *Builder) PreProcessor(p PreProcessor) *Builder {
	b.pre = append(b.pre, p)
	return b
}

// RowProcessor appends a row processor.
func (b *Builder) RowProcessor(p RowProcessor) *Builder {
	b.row = append(b.row, p)
	return b
}

// PostProcessor appends a post-processor.
func (b *Builder) PostProcessor(p PostProcessor) *Builder {
	b.post = append(b.post, p)
	return b
}

// PageSize sets the default and maximum page sizes.
func (b *Builder) PageSize(defaultSize, maxSize int) *Builder {
	b.defaultPageSize = defaultSize
	b.maxPageSize = maxSize
	return b
}

// Cache enables the result cache with the given TTL.
func (b *Builder) Cache(ttl time.Duration) *Builder {
	b.cache = CachePolicy{Enabled: true, TTL: ttl}
	return b
}

// Timeout sets the statement timeout.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// TimeoutSeconds sets the statement timeout in whole seconds.
func (b *Builder) TimeoutSeconds(s int) *Builder {
	return b.Timeout(time.Duration(s) * time.Second)
}

// IncludeDynamic returns undeclared result columns alongside the attributes.
func (b *Builder) IncludeDynamic(include bool) *Builder {
	b.includeDynamic = include
	return b
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Definition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// Build validates the builder state and returns an immutable Definition.
func (b *Builder) Build() (*Definition, error) {
	fail := func(subject, format string, args ...any) (*Definition, error) {
		return nil, qerrors.NewDefinitionError(b.name, subject, format, args...)
	}

	if strings.TrimSpace(b.name) == "" {
		return fail("name", "query name is empty")
	}
	if strings.TrimSpace(b.sql) == "" {
		return fail("sql", "sql template is empty")
	}
	if b.defaultPageSize < 0 || b.maxPageSize < 0 {
		return fail("pagination", "page sizes must not be negative")
	}
	if b.defaultPageSize > 0 && b.maxPageSize > 0 && b.maxPageSize < b.defaultPageSize {
		return fail("pagination", "max page size %d is below default page size %d", b.maxPageSize, b.defaultPageSize)
	}
	if b.timeout < 0 {
		return fail("timeout", "timeout must not be negative")
	}
	if b.cache.TTL < 0 {
		return fail("cache", "cache ttl must not be negative")
	}

	def := &Definition{
		name:            b.name,
		sql:             b.sql,
		description:     b.description,
		attrIndex:       make(map[string]int, len(b.attributes)),
		paramIndex:      make(map[string]int, len(b.params)),
		sqlBinds:        BindNames(b.sql),
		pre:             slices.Clone(b.pre),
		row:             slices.Clone(b.row),
		post:            slices.Clone(b.post),
		defaultPageSize: b.defaultPageSize,
		maxPageSize:     b.maxPageSize,
		cache:           b.cache,
		timeout:         b.timeout,
		includeDynamic:  b.includeDynamic,
	}

	if err := b.buildAttributes(def); err != nil {
		return nil, err
	}
	if err := b.buildParams(def); err != nil {
		return nil, err
	}
	if err := b.buildCriteria(def); err != nil {
		return nil, err
	}
	if err := b.checkRequiredParams(def); err != nil {
		return nil, err
	}
	return def, nil
}

func (b *Builder) buildAttributes(def *Definition) error {
	columns := make(map[string]string)
	for _, attr := range b.attributes {
		attr.Operators = slices.Clone(attr.Operators)
		attr.DependsOn = slices.Clone(attr.DependsOn)
		subject := "attribute " + attr.Name

		if strings.TrimSpace(attr.Name) == "" {
			return qerrors.NewDefinitionError(b.name, "attribute", "attribute name is empty")
		}
		if _, dup := def.attrIndex[attr.Name]; dup {
			return qerrors.NewDefinitionError(b.name, subject, "duplicate attribute name")
		}
		if !convert.Supported(attr.Kind) {
			return qerrors.NewDefinitionError(b.name, subject, "unsupported kind %s", attr.Kind)
		}
		if attr.Virtual {
			if attr.Calculator == nil {
				return qerrors.NewDefinitionError(b.name, subject, "virtual attribute has no calculator")
			}
			if attr.Converter != nil {
				return qerrors.NewDefinitionError(b.name, subject, "virtual attribute cannot declare a converter")
			}
		} else {
			if attr.Calculator != nil {
				return qerrors.NewDefinitionError(b.name, subject, "calculator declared on a column backed attribute")
			}
			key := strings.ToUpper(attr.ColumnName())
			if other, dup := columns[key]; dup {
				return qerrors.NewDefinitionError(b.name, subject, "column %q is already used by attribute %q", attr.ColumnName(), other)
			}
			columns[key] = attr.Name
		}
		if len(attr.Operators) > 0 && !attr.Filterable {
			return qerrors.NewDefinitionError(b.name, subject, "operators declared on a non-filterable attribute")
		}
		for _, op := range attr.Operators {
			if !slices.Contains(domain.AllOperators, op) {
				return qerrors.NewDefinitionError(b.name, subject, "unknown operator %q", op)
			}
		}

		def.attrIndex[attr.Name] = len(def.attributes)
		def.attributes = append(def.attributes, attr)
	}

	for _, attr := range def.attributes {
		for _, dep := range attr.DependsOn {
			if _, ok := def.attrIndex[dep]; !ok {
				return qerrors.NewDefinitionError(b.name, "attribute "+attr.Name, "depends on unknown attribute %q", dep)
			}
			if dep == attr.Name {
				return qerrors.NewDefinitionError(b.name, "attribute "+attr.Name, "depends on itself")
			}
		}
	}

	order, err := virtualOrder(def)
	if err != nil {
		return err
	}
	def.virtualOrder = order
	return nil
}

// virtualOrder sorts virtual attributes topologically, keeping declaration
// order among independent attributes.
func virtualOrder(def *Definition) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var order []string

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		attr := def.attributes[def.attrIndex[name]]
		if !attr.Virtual {
			return nil
		}
		switch state[name] {
		case done:
			return nil
		case visiting:
			cycle := append(slices.Clone(path), name)
			return qerrors.NewDefinitionError(def.name, "attribute "+name, "dependency cycle %s", strings.Join(cycle, " -> "))
		}
		state[name] = visiting
		next := append(slices.Clone(path), name)
		for _, dep := range attr.DependsOn {
			if err := visit(dep, next); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, attr := range def.attributes {
		if attr.Virtual && state[attr.Name] == unvisited {
			if err := visit(attr.Name, nil); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

func (b *Builder) buildParams(def *Definition) error {
	for _, p := range b.params {
		subject := "param " + p.Name
		if strings.TrimSpace(p.Name) == "" {
			return qerrors.NewDefinitionError(b.name, "param", "parameter name is empty")
		}
		if _, dup := def.paramIndex[p.Name]; dup {
			return qerrors.NewDefinitionError(b.name, subject, "duplicate parameter name")
		}
		if slices.Contains(ReservedParams, p.Name) {
			return qerrors.NewDefinitionError(b.name, subject, "name is reserved for pagination binds")
		}
		if !convert.Supported(p.Kind) {
			return qerrors.NewDefinitionError(b.name, subject, "unsupported kind %s", p.Kind)
		}
		def.paramIndex[p.Name] = len(def.params)
		def.params = append(def.params, p)
	}
	return nil
}

func (b *Builder) buildCriteria(def *Definition) error {
	seen := make(map[string]bool)
	placeholders := Placeholders(b.sql)
	for _, c := range b.criteria {
		subject := "criteria " + c.Name
		if strings.TrimSpace(c.Name) == "" {
			return qerrors.NewDefinitionError(b.name, "criteria", "criteria name is empty")
		}
		if seen[c.Name] {
			return qerrors.NewDefinitionError(b.name, subject, "duplicate criteria name")
		}
		seen[c.Name] = true

		hasSQL := strings.TrimSpace(c.SQL) != ""
		if hasSQL == (c.Generator != nil) {
			return qerrors.NewDefinitionError(b.name, subject, "criteria needs exactly one of a sql fragment or a generator")
		}
		if !slices.Contains(placeholders, c.Name) {
			return qerrors.NewDefinitionError(b.name, subject, "sql template has no --%s placeholder", c.Name)
		}

		if hasSQL {
			c.Params = BindNames(c.SQL)
		} else {
			c.Params = slices.Clone(c.Params)
		}
		if c.FindByKey {
			c.Priority = FindByKeyPriority
		}
		def.criteria = append(def.criteria, c)
	}
	slices.SortStableFunc(def.criteria, func(a, b CriteriaDef) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return nil
}

func (b *Builder) checkRequiredParams(def *Definition) error {
	referenced := make(map[string]bool)
	for _, name := range def.sqlBinds {
		referenced[name] = true
	}
	for _, c := range def.criteria {
		for _, name := range c.Params {
			referenced[name] = true
		}
	}
	for _, p := range def.params {
		if p.Required && !referenced[p.Name] {
			return qerrors.NewDefinitionError(b.name, "param "+p.Name, "required parameter is not referenced by the sql or any criteria")
		}
	}
	return nil
}
