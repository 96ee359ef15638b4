package compiler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/satishbabariya/querykit/query/schema"
)

// clauseStart matches the keywords that may follow a WHERE clause. FETCH,
// OFFSET and LIMIT match only together with their operand.
const clauseStart = `ORDER\s+BY\b|GROUP\s+BY\b|HAVING\b|UNION\b|FETCH\s+(?:FIRST|NEXT)\b|(?:OFFSET|LIMIT)\s+(?::\w+|\?|\d+)`

var (
	whitespace = regexp.MustCompile(`\s+`)
	joinWord   = regexp.MustCompile(`(?i)\bJOIN\b`)
	literal    = regexp.MustCompile(`\x00(\d+)\x00`)

	// Each rule removes one kind of artifact left by an empty substitution.
	artifactRules = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(?i)\bWHERE\s+(?:AND|OR)\b`), "WHERE"},
		{regexp.MustCompile(`(?i)\b(AND|OR)\s+(?:AND|OR)\b`), "$1"},
		{regexp.MustCompile(`(?i)\(\s*(?:AND|OR)\b`), "("},
		{regexp.MustCompile(`(?i)\b(?:AND|OR)\s*\)`), ")"},
		{regexp.MustCompile(`(?i)\b(?:AND|OR)\s+(` + clauseStart + `)`), "$1"},
		{regexp.MustCompile(`(?i)\b(?:AND|OR)\s*$`), ""},
		{regexp.MustCompile(`(?i)\bWHERE\s*\)`), ")"},
		{regexp.MustCompile(`(?i)\bWHERE\s+(` + clauseStart + `)`), "$1"},
		{regexp.MustCompile(`(?i)\bWHERE\s*$`), ""},
		{regexp.MustCompile(`\(\s+`), "("},
		{regexp.MustCompile(`\s+\)`), ")"},
	}
)

// cleanup strips leftover placeholders, collapses whitespace outside string
// literals and removes dangling WHERE/AND/OR keywords.
func cleanup(sql string) string {
	masked, literals := maskLiterals(sql)
	masked = strings.TrimSpace(whitespace.ReplaceAllString(schema.StripPlaceholders(masked), " "))
	for {
		before := masked
		for _, rule := range artifactRules {
			masked = rule.re.ReplaceAllString(masked, rule.repl)
		}
		masked = strings.TrimSpace(whitespace.ReplaceAllString(masked, " "))
		if masked == before {
			break
		}
	}
	return unmaskLiterals(masked, literals)
}

// isComplex reports whether the SQL joins tables outside string literals.
func isComplex(sql string) bool {
	masked, _ := maskLiterals(sql)
	return joinWord.MatchString(masked)
}

// maskLiterals replaces quoted text and block comments with opaque tokens
// so rewriting rules never touch them. Line comments are dropped: once
// whitespace is collapsed they would swallow the rest of the statement.
// A "--" directly followed by an identifier is a criteria placeholder and
// is kept.
func maskLiterals(sql string) (string, []string) {
	var (
		b        strings.Builder
		literals []string
	)
	mask := func(text string) {
		literals = append(literals, text)
		b.WriteString("\x00" + strconv.Itoa(len(literals)-1) + "\x00")
	}
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(sql, i, c)
			mask(sql[i : end+1])
			i = end
		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				mask(sql[i:])
				i = len(sql)
				continue
			}
			mask(sql[i : i+2+end+2])
			i += end + 3
		case strings.HasPrefix(sql[i:], "--") && !placeholderStart(sql, i+2):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
				continue
			}
			b.WriteByte('\n')
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), literals
}

func placeholderStart(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	c := s[i]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func unmaskLiterals(sql string, literals []string) string {
	if len(literals) == 0 {
		return sql
	}
	return literal.ReplaceAllStringFunc(sql, func(m string) string {
		n, _ := strconv.Atoi(m[1 : len(m)-1])
		return literals[n]
	})
}

func closingQuote(s string, start int, quote byte) int {
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
