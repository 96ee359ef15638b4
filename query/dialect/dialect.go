// Package dialect provides the pagination strategies that adapt compiled SQL
// to a target database, and the rewriting of bind markers into driver
// arguments.
package dialect

import (
	"fmt"

	"github.com/satishbabariya/querykit/query/domain"
)

// BindStyle is the placeholder syntax a driver expects.
type BindStyle int

const (
	// Named keeps :name markers and passes sql.Named arguments.
	Named BindStyle = iota
	// Question rewrites every marker to ?.
	Question
	// Dollar rewrites markers to $1, $2, ... reusing the index of a repeated name.
	Dollar
)

func (s BindStyle) String() string {
	switch s {
	case Named:
		return "named"
	case Question:
		return "question"
	case Dollar:
		return "dollar"
	}
	return fmt.Sprintf("BindStyle(%d)", int(s))
}

// Pagination bind names written by the strategies.
const (
	BindStartRow = "startRow"
	BindEndRow   = "endRow"
	BindOffset   = "offset"
	BindLimit    = "limit"
)

// Strategy turns a filtered and sorted query into a paginated one.
// Paginate must be pure apart from writing its bind values into binds.
type Strategy interface {
	Name() string
	Paginate(sql string, page domain.Pagination, binds map[string]any) string
	BindStyle() BindStyle
}

// PseudoColumnStrategy is implemented by strategies that add synthetic
// columns to the result set.
type PseudoColumnStrategy interface {
	PseudoColumns() []string
}

// PseudoColumns returns the synthetic columns a strategy adds, if any.
func PseudoColumns(s Strategy) []string {
	if p, ok := s.(PseudoColumnStrategy); ok {
		return p.PseudoColumns()
	}
	return nil
}

// RowNum paginates with the Oracle ROWNUM pseudo-column for databases
// without OFFSET/FETCH. It nests the query two levels deeper.
type RowNum struct{}

// Name implements Strategy.
func (RowNum) Name() string { return "oracle11g" }

// BindStyle implements Strategy.
func (RowNum) BindStyle() BindStyle { return Named }

// PseudoColumns implements PseudoColumnStrategy.
func (RowNum) PseudoColumns() []string { return []string{"RNUM"} }

// Paginate implements Strategy.
func (RowNum) Paginate(sql string, page domain.Pagination, binds map[string]any) string {
	binds[BindStartRow] = page.Start
	if page.IsOpen() {
		return "SELECT * FROM (SELECT paged_q.*, ROWNUM rnum FROM (" + sql + ") paged_q) WHERE rnum > :" + BindStartRow
	}
	binds[BindEndRow] = page.End
	return "SELECT * FROM (SELECT paged_q.*, ROWNUM rnum FROM (" + sql + ") paged_q WHERE ROWNUM <= :" + BindEndRow + ") WHERE rnum > :" + BindStartRow
}

// OffsetFetch paginates with the SQL:2008 OFFSET/FETCH clause (Oracle 12c+).
type OffsetFetch struct{}

// Name implements Strategy.
func (OffsetFetch) Name() string { return "oracle12c" }

// BindStyle implements Strategy.
func (OffsetFetch) BindStyle() BindStyle { return Named }

// Paginate implements Strategy.
func (OffsetFetch) Paginate(sql string, page domain.Pagination, binds map[string]any) string {
	binds[BindOffset] = page.Offset()
	if page.IsOpen() {
		return sql + " OFFSET :" + BindOffset + " ROWS"
	}
	binds[BindLimit] = page.Limit()
	return sql + " OFFSET :" + BindOffset + " ROWS FETCH NEXT :" + BindLimit + " ROWS ONLY"
}

// LimitOffset paginates with a trailing LIMIT/OFFSET clause.
type LimitOffset struct {
	name  string
	style BindStyle
	// unbounded is the LIMIT expression used for an open window; empty
	// omits the LIMIT clause.
	unbounded string
}

// Postgres returns the LIMIT/OFFSET strategy for PostgreSQL.
func Postgres() *LimitOffset {
	return &LimitOffset{name: "postgres", style: Dollar}
}

// MySQL returns the LIMIT/OFFSET strategy for MySQL.
func MySQL() *LimitOffset {
	return &LimitOffset{name: "mysql", style: Question, unbounded: "18446744073709551615"}
}

// SQLite returns the LIMIT/OFFSET strategy for SQLite.
func SQLite() *LimitOffset {
	return &LimitOffset{name: "sqlite", style: Question, unbounded: "-1"}
}

// Name implements Strategy.
func (l *LimitOffset) Name() string { return l.name }

// BindStyle implements Strategy.
func (l *LimitOffset) BindStyle() BindStyle { return l.style }

// Paginate implements Strategy.
func (l *LimitOffset) Paginate(sql string, page domain.Pagination, binds map[string]any) string {
	binds[BindOffset] = page.Offset()
	if page.IsOpen() {
		if l.unbounded == "" {
			return sql + " OFFSET :" + BindOffset
		}
		return sql + " LIMIT " + l.unbounded + " OFFSET :" + BindOffset
	}
	binds[BindLimit] = page.Limit()
	return sql + " LIMIT :" + BindLimit + " OFFSET :" + BindOffset
}
