package compiler

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

var comparisons = map[domain.Operator]string{
	domain.Equals:             "=",
	domain.NotEquals:          "!=",
	domain.GreaterThan:        ">",
	domain.GreaterThanOrEqual: ">=",
	domain.LessThan:           "<",
	domain.LessThanOrEqual:    "<=",
}

// buildFilters translates the context filters into predicates against the
// attribute columns and writes their bind values into out.Binds.
func (c *Compiler) buildFilters(def *schema.Definition, ctx *domain.Context, out *Compiled) ([]string, error) {
	var predicates []string

	for _, f := range ctx.Filters() {
		if err := def.CheckFilter(f); err != nil {
			c.skip(def, out, "filter", f.Attribute, err.Error())
			continue
		}
		attr, _ := def.Attribute(f.Attribute)

		// Every bind of filter n starts with "f<n>_", so names never
		// collide across filters whatever the attribute names are.
		bind := fmt.Sprintf("f%d_%s", len(predicates), bindSafe(f.Attribute))
		values := make(map[string]any)

		pred, err := c.predicate(attr, f, bind, values)
		if err != nil {
			return nil, &qerrors.ExecutionError{Query: def.Name(), Op: "compile", Cause: err}
		}
		if pred == "" {
			c.skip(def, out, "filter", f.Attribute, fmt.Sprintf("operator %s has no usable operand", f.Operator))
			continue
		}
		maps.Copy(out.Binds, values)
		predicates = append(predicates, pred)
	}
	return predicates, nil
}

// predicate emits one filter predicate. An empty predicate means the filter
// is omitted.
func (c *Compiler) predicate(attr schema.AttributeDef, f domain.Filter, bind string, binds map[string]any) (string, error) {
	col := attr.ColumnName()

	if sym, ok := comparisons[f.Operator]; ok {
		v, ok := operand(attr, f.Value)
		if !ok {
			return "", nil
		}
		binds[bind] = v
		return fmt.Sprintf("%s %s :%s", col, sym, bind), nil
	}

	switch f.Operator {
	case domain.Like, domain.NotLike, domain.Contains, domain.StartsWith, domain.EndsWith:
		if f.Value == nil {
			return "", nil
		}
		s, err := cast.ToStringE(f.Value)
		if err != nil {
			return "", nil
		}
		keyword := "LIKE"
		switch f.Operator {
		case domain.NotLike:
			keyword = "NOT LIKE"
		case domain.Contains:
			s = "%" + s + "%"
		case domain.StartsWith:
			s = s + "%"
		case domain.EndsWith:
			s = "%" + s
		}
		binds[bind] = s
		return fmt.Sprintf("UPPER(%s) %s UPPER(:%s)", col, keyword, bind), nil

	case domain.In, domain.NotIn:
		values := f.ListValues()
		if len(values) == 0 {
			return "", nil
		}
		markers := make([]string, 0, len(values))
		for i, raw := range values {
			v, ok := operand(attr, raw)
			if !ok {
				return "", nil
			}
			name := bind + "_" + strconv.Itoa(i)
			binds[name] = v
			markers = append(markers, ":"+name)
		}
		keyword := "IN"
		if f.Operator == domain.NotIn {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, keyword, strings.Join(markers, ", ")), nil

	case domain.Between:
		lo, hi, ok := f.Bounds()
		if !ok {
			return "", nil
		}
		lov, okLo := operand(attr, lo)
		hiv, okHi := operand(attr, hi)
		if !okLo || !okHi {
			return "", nil
		}
		binds[bind+"_lo"] = lov
		binds[bind+"_hi"] = hiv
		return fmt.Sprintf("%s BETWEEN :%s_lo AND :%s_hi", col, bind, bind), nil

	case domain.IsNull:
		return col + " IS NULL", nil
	case domain.IsNotNull:
		return col + " IS NOT NULL", nil
	}
	return "", fmt.Errorf("%w %q on attribute %q", ErrUnsupportedOperator, f.Operator, attr.Name)
}

// operand converts a filter operand to the attribute kind. A nil or
// unconvertible operand is unusable.
func operand(attr schema.AttributeDef, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	out, err := convert.To(attr.Kind, v)
	if err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func bindSafe(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
