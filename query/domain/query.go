// Package domain contains the request and result types shared by the query engine.
package domain

import (
	"fmt"
	"strings"
)

// Operator is a filter comparison operator.
type Operator string

const (
	// Equals matches values equal to the operand.
	Equals Operator = "EQUALS"
	// NotEquals matches values different from the operand.
	NotEquals Operator = "NOT_EQUALS"
	// GreaterThan matches values greater than the operand.
	GreaterThan Operator = "GREATER_THAN"
	// GreaterThanOrEqual matches values greater than or equal to the operand.
	GreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	// LessThan matches values less than the operand.
	LessThan Operator = "LESS_THAN"
	// LessThanOrEqual matches values less than or equal to the operand.
	LessThanOrEqual Operator = "LESS_THAN_OR_EQUAL"
	// Like matches a caller supplied LIKE pattern.
	Like Operator = "LIKE"
	// NotLike excludes a caller supplied LIKE pattern.
	NotLike Operator = "NOT_LIKE"
	// Contains matches values containing the operand.
	Contains Operator = "CONTAINS"
	// StartsWith matches values starting with the operand.
	StartsWith Operator = "STARTS_WITH"
	// EndsWith matches values ending with the operand.
	EndsWith Operator = "ENDS_WITH"
	// In matches values contained in a list.
	In Operator = "IN"
	// NotIn matches values absent from a list.
	NotIn Operator = "NOT_IN"
	// Between matches values inside an inclusive range.
	Between Operator = "BETWEEN"
	// IsNull matches NULL values.
	IsNull Operator = "IS_NULL"
	// IsNotNull matches non-NULL values.
	IsNotNull Operator = "IS_NOT_NULL"
)

// AllOperators lists every operator the compiler understands.
var AllOperators = []Operator{
	Equals, NotEquals,
	GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual,
	Like, NotLike, Contains, StartsWith, EndsWith,
	In, NotIn, Between,
	IsNull, IsNotNull,
}

var operatorAliases = map[string]Operator{
	"=":           Equals,
	"==":          Equals,
	"eq":          Equals,
	"!=":          NotEquals,
	"<>":          NotEquals,
	"ne":          NotEquals,
	"neq":         NotEquals,
	">":           GreaterThan,
	"gt":          GreaterThan,
	">=":          GreaterThanOrEqual,
	"gte":         GreaterThanOrEqual,
	"<":           LessThan,
	"lt":          LessThan,
	"<=":          LessThanOrEqual,
	"lte":         LessThanOrEqual,
	"nin":         NotIn,
	"startswith":  StartsWith,
	"endswith":    EndsWith,
	"isnull":      IsNull,
	"isnotnull":   IsNotNull,
	"not_null":    IsNotNull,
	"notlike":     NotLike,
	"not like":    NotLike,
	"not in":      NotIn,
	"is null":     IsNull,
	"is not null": IsNotNull,
}

// ParseOperator resolves an operator name. Canonical names are matched
// case-insensitively; a few symbolic and short forms are accepted as well.
func ParseOperator(s string) (Operator, error) {
	trimmed := strings.TrimSpace(s)
	upper := Operator(strings.ToUpper(trimmed))
	for _, op := range AllOperators {
		if op == upper {
			return op, nil
		}
	}
	if op, ok := operatorAliases[strings.ToLower(trimmed)]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown filter operator %q", s)
}

// NeedsValue reports whether the operator binds at least one value.
func (o Operator) NeedsValue() bool {
	return o != IsNull && o != IsNotNull
}

// IsList reports whether the operator takes a list of values.
func (o Operator) IsList() bool {
	return o == In || o == NotIn
}

// IsPattern reports whether the operator is part of the LIKE family.
func (o Operator) IsPattern() bool {
	switch o {
	case Like, NotLike, Contains, StartsWith, EndsWith:
		return true
	}
	return false
}

// Filter is a single caller supplied predicate on an attribute.
type Filter struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	Operator  Operator `json:"operator" yaml:"operator"`
	Value     any      `json:"value,omitempty" yaml:"value,omitempty"`
	Values    []any    `json:"values,omitempty" yaml:"values,omitempty"`
	Value2    any      `json:"value2,omitempty" yaml:"value2,omitempty"`
}

// ListValues returns the operands of a list operator. A scalar Value is
// treated as a single element list.
func (f Filter) ListValues() []any {
	if len(f.Values) > 0 {
		return f.Values
	}
	if f.Value == nil {
		return nil
	}
	if vs, ok := f.Value.([]any); ok {
		return vs
	}
	return []any{f.Value}
}

// Bounds returns the lower and upper operands of a BETWEEN filter.
func (f Filter) Bounds() (lo, hi any, ok bool) {
	lo, hi = f.Value, f.Value2
	if len(f.Values) == 2 {
		lo, hi = f.Values[0], f.Values[1]
	}
	return lo, hi, lo != nil && hi != nil
}

// SortDirection is the direction of a sort spec.
type SortDirection string

const (
	// Asc sorts ascending.
	Asc SortDirection = "ASC"
	// Desc sorts descending.
	Desc SortDirection = "DESC"
)

// ParseDirection resolves "asc"/"desc" in any case. Empty input yields Asc.
func ParseDirection(s string) (SortDirection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC", "ASCENDING":
		return Asc, nil
	case "DESC", "DESCENDING":
		return Desc, nil
	}
	return "", fmt.Errorf("unknown sort direction %q", s)
}

// Sort orders the result by one attribute.
type Sort struct {
	Attribute string        `json:"attribute" yaml:"attribute"`
	Direction SortDirection `json:"direction" yaml:"direction"`
}

// Pagination is a half-open row window [Start, End).
type Pagination struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Window creates a pagination window from row bounds.
func Window(start, end int) Pagination {
	return Pagination{Start: start, End: end}
}

// Page creates a pagination window from an offset and a limit.
func Page(offset, limit int) Pagination {
	return Pagination{Start: offset, End: offset + limit}
}

// Offset returns the number of rows skipped.
func (p Pagination) Offset() int { return p.Start }

// Limit returns the number of rows in the window.
func (p Pagination) Limit() int { return p.End - p.Start }

// IsOpen reports whether the window has no upper bound yet.
func (p Pagination) IsOpen() bool { return p.End <= 0 }

func (p Pagination) String() string {
	return fmt.Sprintf("[%d, %d)", p.Start, p.End)
}
