package mapper

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/schema"
)

var titler = cases.Title(language.English)

// Attributes describes the attributes of def visible in ctx, in declaration
// order.
func (m *Mapper) Attributes(def *schema.Definition, ctx *domain.Context) []domain.AttributeInfo {
	var out []domain.AttributeInfo
	for _, p := range m.plan(def, ctx) {
		if !p.selected {
			continue
		}
		a := p.def
		info := domain.AttributeInfo{
			Name:       a.Name,
			Type:       a.Kind.String(),
			Label:      Label(a),
			Restricted: !p.allowed,
			Filterable: a.Filterable && !a.Virtual,
			Sortable:   a.Sortable && !a.Virtual,
			PrimaryKey: a.PrimaryKey,
			Virtual:    a.Virtual,
		}
		for _, op := range a.AllowedOperators() {
			info.Operators = append(info.Operators, string(op))
		}
		out = append(out, info)
	}
	return out
}

// Label returns the declared label of an attribute, or one derived from its
// name: "hireDate" and "hire_date" both become "Hire Date".
func Label(a schema.AttributeDef) string {
	if a.Label != "" {
		return a.Label
	}
	return titler.String(strings.Join(splitWords(a.Name), " "))
}

func splitWords(name string) []string {
	var (
		words   []string
		current []rune
	)
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			flush()
		}
		current = append(current, unicode.ToLower(r))
	}
	flush()
	return words
}
