package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/querykit/query/cache"
	"github.com/satishbabariya/querykit/query/compiler"
	"github.com/satishbabariya/querykit/query/condition"
	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/dialect"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a new database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT, dept_id INTEGER, salary REAL)`)
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		_, err = db.Exec(`INSERT INTO employees (id, name, dept_id, salary) VALUES (?, ?, ?, ?)`,
			i, fmt.Sprintf("employee %02d", i), i%3, float64(i*1000))
		require.NoError(t, err)
	}
	return db
}

func employees(t *testing.T, opts ...func(*schema.Builder)) *schema.Definition {
	t.Helper()
	b := schema.NewBuilder("employees").
		SQL("SELECT id, name, dept_id, salary FROM employees WHERE 1=1 --deptFilter").
		Attributes(
			schema.AttributeDef{Name: "id", Kind: convert.Long, PrimaryKey: true, Sortable: true, Filterable: true},
			schema.AttributeDef{Name: "name", Kind: convert.String, Sortable: true, Filterable: true},
			schema.AttributeDef{Name: "deptId", Column: "dept_id", Kind: convert.Long},
			schema.AttributeDef{Name: "salary", Kind: convert.Double, Filterable: true},
		).
		Param(schema.ParamDef{Name: "deptId", Kind: convert.Long}).
		Criteria(schema.CriteriaDef{
			Name:      "deptFilter",
			SQL:       "AND dept_id = :deptId",
			Condition: condition.MustParse("hasParam(deptId)"),
		})
	for _, opt := range opts {
		opt(b)
	}
	def, err := b.Build()
	require.NoError(t, err)
	return def
}

func ids(rows []domain.Row) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r["id"].(int64))
	}
	return out
}

func TestExecute_PaginationRoundTrip(t *testing.T) {
	exec := New(openDB(t), WithStrategy(dialect.SQLite()))
	def := employees(t)

	qc := domain.NewContext()
	qc.AddSort(domain.Sort{Attribute: "id", Direction: domain.Asc})
	qc.SetPagination(domain.Window(0, 3))
	qc.SetIncludeMetadata(true)

	res, err := exec.Execute(context.Background(), def, qc)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(res.Rows))
	require.NotNil(t, res.Metadata)
	assert.Equal(t, &domain.PageInfo{Start: 0, End: 3, Total: 10, HasNext: true}, res.Metadata.Pagination)
	assert.NotEmpty(t, res.Metadata.ExecutionID)
	assert.Len(t, res.Metadata.Attributes, 4)

	qc = domain.NewContext()
	qc.AddSort(domain.Sort{Attribute: "id", Direction: domain.Asc})
	qc.SetPagination(domain.Window(9, 12))
	qc.SetIncludeMetadata(true)

	res, err = exec.Execute(context.Background(), def, qc)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids(res.Rows))
	assert.False(t, res.Metadata.Pagination.HasNext)
	assert.True(t, res.Metadata.Pagination.HasPrevious)
}

func TestExecute_CriteriaAndFilters(t *testing.T) {
	exec := New(openDB(t), WithStrategy(dialect.SQLite()))
	def := employees(t)

	qc := domain.NewContext()
	qc.SetParam("deptId", "1")
	qc.AddFilter(domain.Filter{Attribute: "salary", Operator: domain.GreaterThan, Value: 2000})
	qc.AddSort(domain.Sort{Attribute: "id", Direction: domain.Desc})
	qc.SetIncludeMetadata(true)

	res, err := exec.Execute(context.Background(), def, qc)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 7, 4}, ids(res.Rows))
	assert.Equal(t, []string{"deptFilter"}, res.Metadata.AppliedCriteria)
	assert.Equal(t, int64(3), res.Metadata.Pagination.Total)

	qc = domain.NewContext()
	qc.AddFilter(domain.Filter{Attribute: "name", Operator: domain.EndsWith, Value: "05"})
	res, err = exec.Execute(context.Background(), def, qc)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids(res.Rows))
	assert.Nil(t, res.Metadata)
}

func TestExecute_ValidationError(t *testing.T) {
	def := employees(t, func(b *schema.Builder) {
		b.PageSize(5, 5)
	})
	exec := New(openDB(t), WithStrategy(dialect.SQLite()))

	qc := domain.NewContext()
	qc.SetParam("deptId", "abc")
	qc.SetPagination(domain.Window(0, 50))

	_, err := exec.Execute(context.Background(), def, qc)
	require.Error(t, err)
	assert.True(t, qerrors.IsValidation(err))
}

func TestExecute_ExecutionError(t *testing.T) {
	def := schema.NewBuilder("missing").
		SQL("SELECT id FROM no_such_table").
		Attribute(schema.AttributeDef{Name: "id", Kind: convert.Long}).
		MustBuild()
	exec := New(openDB(t), WithStrategy(dialect.SQLite()))

	_, err := exec.Execute(context.Background(), def, domain.NewContext())
	var ee *qerrors.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "query", ee.Op)
	assert.Contains(t, ee.SQL, "no_such_table")
	assert.Equal(t, qerrors.CodeExecution, qerrors.ToResponse(err).Code)
}

type deadlineQuerier struct{}

func (deadlineQuerier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, context.DeadlineExceeded
}

func TestExecute_Timeout(t *testing.T) {
	def := employees(t, func(b *schema.Builder) { b.TimeoutSeconds(2) })
	exec := New(deadlineQuerier{}, WithStrategy(dialect.SQLite()))

	_, err := exec.Execute(context.Background(), def, domain.NewContext())
	var te *qerrors.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2*time.Second, te.Timeout)
	assert.True(t, qerrors.IsTimeout(err))
}

type tenant string

func (t tenant) CacheKey() string { return string(t) }

func TestExecute_ResultCache(t *testing.T) {
	db := openDB(t)
	exec := New(db, WithStrategy(dialect.SQLite()), WithResultCache(cache.NewResultCache(16, time.Minute)))
	def := employees(t, func(b *schema.Builder) { b.Cache(time.Minute) })

	run := func(security any) *domain.Result {
		qc := domain.NewContext()
		qc.SetSecurity(security)
		qc.SetIncludeMetadata(true)
		res, err := exec.Execute(context.Background(), def, qc)
		require.NoError(t, err)
		return res
	}

	first := run(tenant("a"))
	assert.False(t, first.Metadata.Cached)
	first.Rows[0]["name"] = "mutated"

	_, err := db.Exec(`DELETE FROM employees WHERE id = 10`)
	require.NoError(t, err)

	second := run(tenant("a"))
	assert.True(t, second.Metadata.Cached)
	assert.Len(t, second.Rows, 10)
	assert.Equal(t, "employee 01", second.Rows[0]["name"])

	assert.Len(t, run(tenant("b")).Rows, 9)
	assert.Len(t, run("no cache key").Rows, 9)

	exec.Forget("employees")
	assert.Len(t, run(tenant("a")).Rows, 9)
}

func TestExecute_Processors(t *testing.T) {
	def := employees(t, func(b *schema.Builder) {
		b.PreProcessor(func(qc *domain.Context) error {
			qc.SetParam("deptId", 2)
			return nil
		})
		b.PostProcessor(func(res *domain.Result, _ *domain.Context) error {
			res.Rows = res.Rows[:1]
			return nil
		})
	})
	exec := New(openDB(t), WithStrategy(dialect.SQLite()))

	res, err := exec.Execute(context.Background(), def, domain.NewContext())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(res.Rows))

	failing := employees(t, func(b *schema.Builder) {
		b.PreProcessor(func(*domain.Context) error { return errors.New("denied") })
	})
	_, err = exec.Execute(context.Background(), failing, domain.NewContext())
	var ee *qerrors.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "preprocess 0", ee.Op)
}

func TestExecute_Middleware(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []StatementKind
	)
	exec := New(openDB(t), WithStrategy(dialect.SQLite()))
	exec.Use(TimingMiddleware(func(_ string, kind StatementKind, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, kind)
	}))

	qc := domain.NewContext()
	qc.SetPagination(domain.Page(0, 2))
	qc.SetIncludeMetadata(true)
	_, err := exec.Execute(context.Background(), employees(t), qc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []StatementKind{StatementData, StatementCount}, kinds)
}

func TestExplain(t *testing.T) {
	exec := New(nil, WithStrategy(dialect.SQLite()))
	qc := domain.NewContext()
	qc.SetParam("deptId", "2")
	qc.SetPagination(domain.Page(10, 5))

	plan, err := exec.Explain(employees(t), qc)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM (SELECT id, name, dept_id, salary FROM employees WHERE 1=1 AND dept_id = ?) filtered_q LIMIT ? OFFSET ?",
		plan.SQL)
	assert.Equal(t, []any{int64(2), 5, 10}, plan.Args)
	assert.Equal(t, []string{"deptFilter"}, plan.Applied)

	v, _ := qc.Param("deptId")
	assert.Equal(t, "2", v)
	assert.Empty(t, qc.Applied())
}

func TestSnapshot(t *testing.T) {
	exec := New(openDB(t), WithStrategy(dialect.SQLite()))
	def := employees(t)

	err := exec.Snapshot(context.Background(), nil, func(tx *Executor) error {
		qc := domain.NewContext()
		qc.SetPagination(domain.Page(0, 4))
		qc.SetIncludeMetadata(true)
		res, err := tx.Execute(context.Background(), def, qc)
		if err != nil {
			return err
		}
		assert.Len(t, res.Rows, 4)
		assert.Equal(t, int64(10), res.Metadata.Pagination.Total)
		return nil
	})
	require.NoError(t, err)

	err = New(deadlineQuerier{}).Snapshot(context.Background(), nil, func(*Executor) error { return nil })
	assert.Error(t, err)
}

func TestPreparedStatements(t *testing.T) {
	exec := New(openDB(t), WithStrategy(dialect.SQLite()), WithPreparedStatements())
	t.Cleanup(func() { exec.Close() })
	def := employees(t)

	for range 3 {
		res, err := exec.Execute(context.Background(), def, domain.NewContext())
		require.NoError(t, err)
		assert.Len(t, res.Rows, 10)
	}
	assert.Len(t, exec.stmts.stmts, 1)
}

func TestExecute_ResultCacheHonoursSelection(t *testing.T) {
	exec := New(openDB(t), WithStrategy(dialect.SQLite()), WithResultCache(cache.NewResultCache(16, time.Minute)))
	def := schema.NewBuilder("pay").
		SQL("SELECT id, salary FROM employees WHERE id = 1").
		Attributes(
			schema.AttributeDef{Name: "id", Kind: convert.Long},
			schema.AttributeDef{Name: "salary", Kind: convert.Double, Hidden: true},
		).
		Cache(time.Minute).
		MustBuild()

	run := func(selected ...string) *domain.Result {
		qc := domain.NewContext()
		qc.SetSecurity(tenant("a"))
		qc.Select(selected...)
		res, err := exec.Execute(context.Background(), def, qc)
		require.NoError(t, err)
		return res
	}

	withSalary := run("salary")
	require.Len(t, withSalary.Rows, 1)
	assert.Equal(t, 1000.0, withSalary.Rows[0]["salary"])

	plain := run()
	require.Len(t, plain.Rows, 1)
	assert.NotContains(t, plain.Rows[0], "salary")
	assert.Equal(t, int64(1), plain.Rows[0]["id"])

	assert.Equal(t, 1000.0, run("salary").Rows[0]["salary"])
	assert.NotContains(t, run().Rows[0], "salary")
}

func TestPageInfo(t *testing.T) {
	tests := []struct {
		name    string
		c       *compiler.Compiled
		rows    int
		total   int64
		counted bool
		want    *domain.PageInfo
	}{
		{"unpaginated", &compiler.Compiled{}, 4, 0, false, &domain.PageInfo{End: 4, Total: 4}},
		{"counted window", &compiler.Compiled{Paginated: true, Page: domain.Window(2, 5)}, 3, 10, true,
			&domain.PageInfo{Start: 2, End: 5, Total: 10, HasNext: true, HasPrevious: true}},
		{"last window", &compiler.Compiled{Paginated: true, Page: domain.Window(8, 12)}, 2, 10, true,
			&domain.PageInfo{Start: 8, End: 12, Total: 10, HasPrevious: true}},
		{"open window uncounted", &compiler.Compiled{Paginated: true, Page: domain.Window(3, 0)}, 4, 0, false,
			&domain.PageInfo{Start: 3, End: 7, Total: 7, HasPrevious: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pageInfo(tt.c, tt.rows, tt.total, tt.counted))
		})
	}
}
