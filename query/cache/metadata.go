package cache

import (
	"strings"

	"github.com/satishbabariya/querykit/query/schema"
)

// ColumnIndex maps the columns of one result-set shape to positions.
type ColumnIndex struct {
	// Columns are the result column names in driver order.
	Columns []string
	// Attributes maps every non-virtual attribute to its column position,
	// or -1 when the column is absent.
	Attributes map[string]int
	// Dynamic lists the positions of columns no attribute claims.
	Dynamic []int

	byName map[string]int
}

// Position returns the position of a column, matched case-insensitively.
func (ci *ColumnIndex) Position(column string) (int, bool) {
	i, ok := ci.byName[strings.ToUpper(column)]
	return i, ok
}

// NewColumnIndex builds the index of columns for def. Columns listed in
// ignore are never reported as dynamic.
func NewColumnIndex(def *schema.Definition, columns []string, ignore ...string) *ColumnIndex {
	ci := &ColumnIndex{
		Columns:    append([]string(nil), columns...),
		Attributes: make(map[string]int),
		byName:     make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		key := strings.ToUpper(col)
		if _, dup := ci.byName[key]; !dup {
			ci.byName[key] = i
		}
	}

	claimed := make(map[int]bool)
	for _, attr := range def.Attributes() {
		if attr.Virtual {
			continue
		}
		pos, ok := ci.Position(attr.ColumnName())
		if !ok {
			ci.Attributes[attr.Name] = -1
			continue
		}
		ci.Attributes[attr.Name] = pos
		claimed[pos] = true
	}

	skip := make(map[string]bool, len(ignore))
	for _, col := range ignore {
		skip[strings.ToUpper(col)] = true
	}
	for i, col := range columns {
		if !claimed[i] && !skip[strings.ToUpper(col)] {
			ci.Dynamic = append(ci.Dynamic, i)
		}
	}
	return ci
}

// MetadataCache caches column indexes per definition and result-set shape.
type MetadataCache struct {
	lru *LRU[*ColumnIndex]
}

// NewMetadataCache creates a metadata cache holding up to size shapes.
func NewMetadataCache(size int) *MetadataCache {
	return &MetadataCache{lru: NewLRU[*ColumnIndex](size, -1)}
}

// Columns returns the cached index for the shape, building it on a miss.
// Concurrent first calls may both build; the last write wins and both
// results are equivalent.
func (m *MetadataCache) Columns(def *schema.Definition, columns []string, ignore ...string) *ColumnIndex {
	key := shapeKey(def, columns, ignore)
	if ci, ok := m.lru.Get(key); ok {
		return ci
	}
	ci := NewColumnIndex(def, columns, ignore...)
	m.lru.Set(key, ci, -1)
	return ci
}

// Forget drops every shape cached for a definition.
func (m *MetadataCache) Forget(name string) {
	m.lru.InvalidatePrefix(name + "\x1f")
}

// Stats returns cache statistics.
func (m *MetadataCache) Stats() Stats {
	return m.lru.Stats()
}

// shapeKey identifies a column index by everything NewColumnIndex reads:
// the attribute-to-column bindings, the ignored columns and the result
// columns. Definitions that share a name but bind differently never share
// an index.
func shapeKey(def *schema.Definition, columns, ignore []string) string {
	var b strings.Builder
	b.WriteString(def.Name())
	b.WriteByte('\x1f')
	for _, attr := range def.Attributes() {
		if attr.Virtual {
			continue
		}
		b.WriteString(attr.Name)
		b.WriteByte('=')
		b.WriteString(strings.ToUpper(attr.ColumnName()))
		b.WriteByte('\x1e')
	}
	b.WriteByte('\x1f')
	b.WriteString(strings.ToUpper(strings.Join(ignore, "\x1e")))
	b.WriteByte('\x1f')
	b.WriteString(strings.Join(columns, "\x1e"))
	return b.String()
}
