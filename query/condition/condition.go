// Package condition parses the boolean expressions that decide whether a
// criteria fragment is spliced into a query.
//
// Grammar:
//
//	expr  := and ("||" and)*
//	and   := unary ("&&" unary)*
//	unary := "!" unary | "(" expr ")" | "true" | "false" | call
//	call  := ident "(" [arg ("," arg)*] ")"
//
// Arguments are bare identifiers, quoted strings, numbers or booleans.
package condition

import (
	"fmt"
	"sort"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/schema"
)

var conditionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Punct", Pattern: `\|\||&&|[!(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type orExpr struct {
	Left  *andExpr   `@@`
	Right []*andExpr `("||" @@)*`
}

type andExpr struct {
	Left  *unaryExpr   `@@`
	Right []*unaryExpr `("&&" @@)*`
}

type unaryExpr struct {
	Not   *unaryExpr `  "!" @@`
	Group *orExpr    `| "(" @@ ")"`
	Bool  *string    `| @("true" | "false")`
	Call  *callExpr  `| @@`
}

type callExpr struct {
	Pos  lexer.Position
	Name string     `@Ident "("`
	Args []*argExpr `(@@ ("," @@)*)? ")"`
}

type argExpr struct {
	String *string `  @String`
	Number *string `| @Number`
	Bool   *string `| @("true" | "false")`
	Ident  *string `| @Ident`
}

func (a *argExpr) value() string {
	switch {
	case a.String != nil:
		return *a.String
	case a.Number != nil:
		return *a.Number
	case a.Bool != nil:
		return *a.Bool
	case a.Ident != nil:
		return *a.Ident
	}
	return ""
}

var parser = participle.MustBuild[orExpr](
	participle.Lexer(conditionLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// Parse compiles a condition expression.
func Parse(expr string) (schema.Condition, error) {
	ast, err := parser.ParseString("", expr)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", expr, err)
	}
	cond, err := ast.compile()
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", expr, err)
	}
	return cond, nil
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) schema.Condition {
	cond, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return cond
}

func (e *orExpr) compile() (schema.Condition, error) {
	terms, err := compileAll(e.Left, e.Right, (*andExpr).compile)
	if err != nil {
		return nil, err
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return func(ctx *domain.Context) bool {
		for _, t := range terms {
			if t(ctx) {
				return true
			}
		}
		return false
	}, nil
}

func (e *andExpr) compile() (schema.Condition, error) {
	terms, err := compileAll(e.Left, e.Right, (*unaryExpr).compile)
	if err != nil {
		return nil, err
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return func(ctx *domain.Context) bool {
		for _, t := range terms {
			if !t(ctx) {
				return false
			}
		}
		return true
	}, nil
}

func compileAll[T any](left T, right []T, fn func(T) (schema.Condition, error)) ([]schema.Condition, error) {
	nodes := append([]T{left}, right...)
	terms := make([]schema.Condition, 0, len(nodes))
	for _, n := range nodes {
		t, err := fn(n)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, nil
}

func (e *unaryExpr) compile() (schema.Condition, error) {
	switch {
	case e.Not != nil:
		inner, err := e.Not.compile()
		if err != nil {
			return nil, err
		}
		return func(ctx *domain.Context) bool { return !inner(ctx) }, nil
	case e.Group != nil:
		return e.Group.compile()
	case e.Bool != nil:
		v := *e.Bool == "true"
		return func(*domain.Context) bool { return v }, nil
	default:
		return e.Call.compile()
	}
}

func (c *callExpr) compile() (schema.Condition, error) {
	fn, ok := functions[c.Name]
	if !ok {
		return nil, fmt.Errorf("%s: unknown function %q", c.Pos, c.Name)
	}
	if len(c.Args) != fn.arity {
		return nil, fmt.Errorf("%s: %s expects %d argument(s), got %d", c.Pos, c.Name, fn.arity, len(c.Args))
	}
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.value()
	}
	return fn.build(args), nil
}

// Functions lists the function names usable in conditions.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
