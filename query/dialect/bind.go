package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/querykit/query/schema"
)

// ErrUnboundParameter is returned when SQL references a bind name with no value.
var ErrUnboundParameter = errors.New("unbound parameter")

// Bind rewrites the :name markers of query into the given style and returns
// the driver arguments in placeholder order.
func Bind(query string, binds map[string]any, style BindStyle) (string, []any, error) {
	refs := schema.ScanBinds(query)
	for _, ref := range refs {
		if _, ok := binds[ref.Name]; !ok {
			return "", nil, fmt.Errorf("%w %q", ErrUnboundParameter, ref.Name)
		}
	}

	switch style {
	case Named:
		var args []any
		seen := make(map[string]bool)
		for _, ref := range refs {
			if seen[ref.Name] {
				continue
			}
			seen[ref.Name] = true
			args = append(args, sql.Named(ref.Name, binds[ref.Name]))
		}
		return query, args, nil

	case Question:
		args := make([]any, 0, len(refs))
		out := rewrite(query, refs, func(ref schema.BindRef) string {
			args = append(args, binds[ref.Name])
			return "?"
		})
		return out, args, nil

	case Dollar:
		var args []any
		index := make(map[string]int)
		out := rewrite(query, refs, func(ref schema.BindRef) string {
			n, ok := index[ref.Name]
			if !ok {
				args = append(args, binds[ref.Name])
				n = len(args)
				index[ref.Name] = n
			}
			return "$" + strconv.Itoa(n)
		})
		return out, args, nil
	}
	return "", nil, fmt.Errorf("unsupported bind style %s", style)
}

func rewrite(query string, refs []schema.BindRef, replace func(schema.BindRef) string) string {
	var b strings.Builder
	b.Grow(len(query))
	last := 0
	for _, ref := range refs {
		b.WriteString(query[last:ref.Start])
		b.WriteString(replace(ref))
		last = ref.End
	}
	b.WriteString(query[last:])
	return b.String()
}
