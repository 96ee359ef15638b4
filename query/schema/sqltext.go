package schema

import (
	"regexp"
	"slices"
	"strings"
)

// BindRef is the position of one :name bind marker in SQL text.
type BindRef struct {
	Name  string
	Start int
	End   int
}

// ScanBinds finds :name bind markers outside quoted text and block comments.
// Casts written as ::type are not bind markers.
func ScanBinds(sql string) []BindRef {
	var refs []BindRef
	n := len(sql)
	for i := 0; i < n; i++ {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(sql, i, c)
		case c == '/' && i+1 < n && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return refs
			}
			i += end + 3
		case c == ':':
			if i+1 < n && sql[i+1] == ':' {
				i++
				continue
			}
			if i+1 < n && isIdentStart(sql[i+1]) {
				j := i + 2
				for j < n && isIdentPart(sql[j]) {
					j++
				}
				refs = append(refs, BindRef{Name: sql[i+1 : j], Start: i, End: j})
				i = j - 1
			}
		}
	}
	return refs
}

// BindNames returns the distinct bind names of sql in order of first use.
func BindNames(sql string) []string {
	var names []string
	for _, ref := range ScanBinds(sql) {
		if !slices.Contains(names, ref.Name) {
			names = append(names, ref.Name)
		}
	}
	return names
}

var placeholderPattern = regexp.MustCompile(`--([A-Za-z_][A-Za-z0-9_]*)`)

// Placeholders returns the distinct --name placeholders of sql in order.
func Placeholders(sql string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(sql, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// PlaceholderPattern matches the --name placeholder of one criteria.
func PlaceholderPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`--` + regexp.QuoteMeta(name) + `\b`)
}

// ReplacePlaceholder replaces every --name placeholder of sql with repl.
// Longer placeholders sharing the prefix are left alone.
func ReplacePlaceholder(sql, name, repl string) string {
	return placeholderPattern.ReplaceAllStringFunc(sql, func(m string) string {
		if m[2:] == name {
			return repl
		}
		return m
	})
}

// StripPlaceholders removes every remaining --name placeholder.
func StripPlaceholders(sql string) string {
	return placeholderPattern.ReplaceAllString(sql, " ")
}

// HasPlaceholder reports whether sql contains the --name placeholder.
func HasPlaceholder(sql, name string) bool {
	return slices.Contains(Placeholders(sql), name)
}

func skipQuoted(s string, start int, quote byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				i++
				continue
			}
			return i
		}
	}
	return len(s) - 1
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
