// Package loader reads query definitions from YAML files.
//
// A definitions file looks like:
//
//	apiVersion: "1.0"
//	queries:
//	  - name: employees
//	    sql: SELECT id, name FROM emp WHERE 1=1 --deptFilter
//	    attributes:
//	      - {name: id, type: LONG, primaryKey: true, sortable: true}
//	      - {name: name, type: STRING, filterable: true, sortable: true}
//	    params:
//	      - {name: deptId, type: INTEGER}
//	    criteria:
//	      - {name: deptFilter, sql: "AND dept_id = :deptId", when: "hasParam(deptId)"}
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/querykit/query/condition"
	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/params"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

// SupportedAPIVersions is the apiVersion constraint of definitions files.
const SupportedAPIVersions = ">= 1.0, < 2.0"

var supported = mustConstraint(SupportedAPIVersions)

func mustConstraint(c string) version.Constraints {
	constraints, err := version.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraints
}

// Loader turns definitions files into validated definitions.
type Loader struct {
	fs        afero.Fs
	functions *Functions

	defaultPageSize int
	maxPageSize     int
}

// New creates a loader reading from fs. A nil fs means the OS filesystem;
// nil functions means no named functions are available.
func New(fs afero.Fs, functions *Functions) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if functions == nil {
		functions = NewFunctions()
	}
	return &Loader{fs: fs, functions: functions}
}

// PageDefaults sets the page sizes used by queries whose pageSize section
// leaves them unset. A max smaller than the query's default is not applied.
func (l *Loader) PageDefaults(defaultSize, maxSize int) *Loader {
	l.defaultPageSize = defaultSize
	l.maxPageSize = maxSize
	return l
}

// Decode parses a definitions document without building it.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("definitions document is empty")
		}
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	if err := CheckAPIVersion(doc.APIVersion); err != nil {
		return nil, err
	}
	return &doc, nil
}

// CheckAPIVersion reports whether a definitions apiVersion is supported.
func CheckAPIVersion(v string) error {
	if v == "" {
		return errors.New("apiVersion is required")
	}
	parsed, err := version.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid apiVersion %q: %w", v, err)
	}
	if !supported.Check(parsed) {
		return fmt.Errorf("apiVersion %s is not supported (want %s)", v, SupportedAPIVersions)
	}
	return nil
}

// Load reads and builds every definition in r.
func (l *Loader) Load(r io.Reader) ([]*schema.Definition, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return l.Build(doc)
}

// LoadFile reads one definitions file.
func (l *Loader) LoadFile(path string) ([]*schema.Definition, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	defs, err := l.Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// LoadPath loads a single file, or every .yaml and .yml file of a directory
// in name order. Query names must be unique across files.
func (l *Loader) LoadPath(path string) ([]*schema.Definition, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	if !info.IsDir() {
		return l.LoadFile(path)
	}

	entries, err := afero.ReadDir(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		out  []*schema.Definition
		seen = make(map[string]string)
	)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		file := filepath.Join(path, entry.Name())
		defs, err := l.LoadFile(file)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if other, dup := seen[def.Name()]; dup {
				return nil, fmt.Errorf("%s: %w (also defined in %s)", file, qerrors.NewConflictError(def.Name()), other)
			}
			seen[def.Name()] = file
			out = append(out, def)
		}
	}
	return out, nil
}

// Build builds every query of doc. Query names must be unique.
func (l *Loader) Build(doc *Document) ([]*schema.Definition, error) {
	defs := make([]*schema.Definition, 0, len(doc.Queries))
	seen := make(map[string]bool, len(doc.Queries))
	for _, q := range doc.Queries {
		if seen[q.Name] {
			return nil, qerrors.NewConflictError(q.Name)
		}
		seen[q.Name] = true

		def, err := l.build(q)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (l *Loader) pageSizes(spec *PageSizeSpec) (int, int) {
	var size, limit int
	if spec != nil {
		size, limit = spec.Default, spec.Max
	}
	if size == 0 {
		size = l.defaultPageSize
		if limit > 0 && size > limit {
			size = limit
		}
	}
	if limit == 0 && l.maxPageSize >= size {
		limit = l.maxPageSize
	}
	return size, limit
}

func (l *Loader) build(q QuerySpec) (*schema.Definition, error) {
	b := schema.NewBuilder(q.Name).
		SQL(q.SQL).
		Description(q.Description).
		TimeoutSeconds(q.Timeout).
		IncludeDynamic(q.IncludeDynamic)

	b.PageSize(l.pageSizes(q.PageSize))
	if q.Cache != nil {
		ttl := time.Duration(0)
		if q.Cache.TTL != "" {
			d, err := time.ParseDuration(q.Cache.TTL)
			if err != nil {
				return nil, qerrors.NewDefinitionError(q.Name, "cache", "invalid ttl %q", q.Cache.TTL)
			}
			ttl = d
		}
		b.Cache(ttl)
	}

	for _, a := range q.Attributes {
		attr, err := l.attribute(q.Name, a)
		if err != nil {
			return nil, err
		}
		b.Attribute(attr)
	}
	for _, p := range q.Params {
		param, err := l.param(q.Name, p)
		if err != nil {
			return nil, err
		}
		b.Param(param)
	}
	for _, c := range q.Criteria {
		cr, err := l.criteria(q.Name, c)
		if err != nil {
			return nil, err
		}
		b.Criteria(cr)
	}

	for _, name := range q.PreProcessors {
		fn, err := lookup(l.functions.pre, "pre-processor", name)
		if err != nil {
			return nil, qerrors.NewDefinitionError(q.Name, "preProcessors", "%v", err)
		}
		b.PreProcessor(fn)
	}
	for _, name := range q.RowProcessors {
		fn, err := lookup(l.functions.rows, "row processor", name)
		if err != nil {
			return nil, qerrors.NewDefinitionError(q.Name, "rowProcessors", "%v", err)
		}
		b.RowProcessor(fn)
	}
	for _, name := range q.PostProcessors {
		fn, err := lookup(l.functions.post, "post-processor", name)
		if err != nil {
			return nil, qerrors.NewDefinitionError(q.Name, "postProcessors", "%v", err)
		}
		b.PostProcessor(fn)
	}

	return b.Build()
}

func (l *Loader) attribute(query string, a AttributeSpec) (schema.AttributeDef, error) {
	subject := "attribute " + a.Name
	kind, err := parseKind(a.Type)
	if err != nil {
		return schema.AttributeDef{}, qerrors.NewDefinitionError(query, subject, "%v", err)
	}
	attr := schema.AttributeDef{
		Name:       a.Name,
		Column:     a.Column,
		Kind:       kind,
		Label:      a.Label,
		Filterable: a.Filterable,
		Sortable:   a.Sortable,
		PrimaryKey: a.PrimaryKey,
		Virtual:    a.Virtual,
		Hidden:     a.Hidden,
		Default:    a.Default,
		DependsOn:  a.DependsOn,
	}
	for _, name := range a.Operators {
		op, err := domain.ParseOperator(name)
		if err != nil {
			return attr, qerrors.NewDefinitionError(query, subject, "%v", err)
		}
		attr.Operators = append(attr.Operators, op)
	}

	if a.Converter != "" {
		if attr.Converter, err = lookup(l.functions.converters, "converter", a.Converter); err != nil {
			return attr, qerrors.NewDefinitionError(query, subject, "%v", err)
		}
	}
	if a.Calculator != "" {
		if attr.Calculator, err = lookup(l.functions.calculators, "calculator", a.Calculator); err != nil {
			return attr, qerrors.NewDefinitionError(query, subject, "%v", err)
		}
	}
	if a.Formatter != "" {
		if attr.Formatter, err = lookup(l.functions.formatters, "formatter", a.Formatter); err != nil {
			return attr, qerrors.NewDefinitionError(query, subject, "%v", err)
		}
	}
	if a.Security != "" {
		cond, err := condition.Parse(a.Security)
		if err != nil {
			return attr, qerrors.NewDefinitionError(query, subject, "invalid security expression: %v", err)
		}
		attr.Security = schema.SecurityRule(cond)
	}
	return attr, nil
}

func (l *Loader) param(query string, p ParamSpec) (schema.ParamDef, error) {
	subject := "param " + p.Name
	kind, err := parseKind(p.Type)
	if err != nil {
		return schema.ParamDef{}, qerrors.NewDefinitionError(query, subject, "%v", err)
	}
	param := schema.ParamDef{
		Name:        p.Name,
		Kind:        kind,
		Default:     p.Default,
		Required:    p.Required,
		Description: p.Description,
	}

	var chain []schema.ParamProcessor
	if p.Trim {
		chain = append(chain, params.Trim())
	}
	if p.MinLength != nil {
		chain = append(chain, params.MinLength(*p.MinLength))
	}
	if p.MaxLength != nil {
		chain = append(chain, params.MaxLength(*p.MaxLength))
	}
	if p.Pattern != "" {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return param, qerrors.NewDefinitionError(query, subject, "invalid pattern: %v", err)
		}
		chain = append(chain, params.Matches(p.Pattern))
	}
	if len(p.OneOf) > 0 {
		chain = append(chain, params.OneOf(p.OneOf...))
	}
	if len(p.Range) > 0 {
		if len(p.Range) != 2 || p.Range[0] > p.Range[1] {
			return param, qerrors.NewDefinitionError(query, subject, "range must be [min, max]")
		}
		chain = append(chain, params.Between(p.Range[0], p.Range[1]))
	}
	if p.DaysAgo != "" {
		chain = append(chain, params.DaysAgo(p.DaysAgo))
	}
	if p.Processor != "" {
		fn, err := lookup(l.functions.processors, "processor", p.Processor)
		if err != nil {
			return param, qerrors.NewDefinitionError(query, subject, "%v", err)
		}
		chain = append(chain, fn)
	}

	switch len(chain) {
	case 0:
	case 1:
		param.Processor = chain[0]
	default:
		param.Processor = params.Chain(chain...)
	}
	return param, nil
}

func (l *Loader) criteria(query string, c CriteriaSpec) (schema.CriteriaDef, error) {
	subject := "criteria " + c.Name
	cr := schema.CriteriaDef{
		Name:      c.Name,
		SQL:       c.SQL,
		Priority:  c.Priority,
		FindByKey: c.FindByKey,
		Params:    c.Params,
	}
	if c.Generator != "" {
		fn, err := lookup(l.functions.generators, "generator", c.Generator)
		if err != nil {
			return cr, qerrors.NewDefinitionError(query, subject, "%v", err)
		}
		cr.Generator = fn
	}
	if c.When != "" {
		cond, err := condition.Parse(c.When)
		if err != nil {
			return cr, qerrors.NewDefinitionError(query, subject, "invalid when expression: %v", err)
		}
		cr.Condition = cond
	}
	return cr, nil
}

func parseKind(s string) (convert.Kind, error) {
	if strings.TrimSpace(s) == "" {
		return convert.Any, nil
	}
	return convert.ParseKind(s)
}
