package compiler

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/querykit/query/condition"
	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/dialect"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

const (
	empSQL  = "SELECT id, name, salary FROM emp WHERE 1=1 --deptFilter"
	joinSQL = "SELECT e.id, e.name, d.name AS dept_name FROM emp e JOIN dept d ON d.id = e.dept_id WHERE 1=1 --deptFilter"
)

func employees(t *testing.T) *schema.Definition {
	t.Helper()
	def, err := schema.NewBuilder("employees").
		SQL(empSQL).
		Attributes(
			schema.AttributeDef{Name: "id", Kind: convert.Long, PrimaryKey: true, Sortable: true},
			schema.AttributeDef{Name: "name", Kind: convert.String, Filterable: true, Sortable: true},
			schema.AttributeDef{Name: "salary", Kind: convert.Long, Filterable: true, Operators: []domain.Operator{domain.Equals}},
		).
		Param(schema.ParamDef{Name: "deptId", Kind: convert.Integer}).
		Criteria(schema.CriteriaDef{
			Name:      "deptFilter",
			SQL:       "AND dept_id = :deptId",
			Condition: condition.MustParse("hasParam(deptId)"),
		}).
		Build()
	require.NoError(t, err)
	return def
}

func joined(t *testing.T) *schema.Definition {
	t.Helper()
	def, err := schema.NewBuilder("employeeDepartments").
		SQL(joinSQL).
		Attributes(
			schema.AttributeDef{Name: "id", Kind: convert.Long, Sortable: true},
			schema.AttributeDef{Name: "name", Kind: convert.String, Filterable: true, Sortable: true},
			schema.AttributeDef{Name: "deptName", Column: "dept_name", Kind: convert.String, Filterable: true},
		).
		Criteria(schema.CriteriaDef{Name: "deptFilter", SQL: "AND d.id = :deptId"}).
		Build()
	require.NoError(t, err)
	return def
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestCompile_CriteriaNotApplied(t *testing.T) {
	c := New(dialect.RowNum{}, quiet())
	out, err := c.Compile(employees(t), domain.NewContext())
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, name, salary FROM emp WHERE 1=1", out.SQL)
	assert.Equal(t, out.SQL, out.BaseSQL)
	assert.NotContains(t, out.SQL, "--")
	assert.NotContains(t, out.SQL, "dept_id")
	assert.Empty(t, out.Applied)
	assert.Empty(t, out.Binds)
	assert.False(t, out.Wrapped)
}

func TestCompile_CriteriaApplied(t *testing.T) {
	ctx := domain.NewContext()
	ctx.SetParam("deptId", 10)

	out, err := New(dialect.RowNum{}, quiet()).Compile(employees(t), ctx)
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, name, salary FROM emp WHERE 1=1 AND dept_id = :deptId", out.SQL)
	assert.Equal(t, map[string]any{"deptId": 10}, out.Binds)
	assert.Equal(t, []string{"deptFilter"}, out.Applied)
	assert.True(t, ctx.IsApplied("deptFilter"))
}

func TestCompile_UnsupportedOperatorSkipped(t *testing.T) {
	var logs bytes.Buffer
	c := New(dialect.RowNum{}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	def := employees(t)

	plain, err := c.Compile(def, domain.NewContext())
	require.NoError(t, err)

	ctx := domain.NewContext()
	ctx.AddFilter(domain.Filter{Attribute: "salary", Operator: domain.GreaterThan, Value: 5000})
	out, err := c.Compile(def, ctx)
	require.NoError(t, err)

	assert.Equal(t, plain.SQL, out.SQL)
	assert.Empty(t, out.Binds)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "salary", out.Skipped[0].Attribute)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "skipping filter")
}

func TestCompile_IneligibleFiltersAndSortsLeaveSQLUnchanged(t *testing.T) {
	c := New(dialect.RowNum{}, quiet())
	def := employees(t)
	plain, err := c.Compile(def, domain.NewContext())
	require.NoError(t, err)

	ctx := domain.NewContext()
	ctx.AddFilter(domain.Filter{Attribute: "nope", Operator: domain.Equals, Value: 1})
	ctx.AddFilter(domain.Filter{Attribute: "id", Operator: domain.Equals, Value: 1})
	ctx.AddFilter(domain.Filter{Attribute: "name", Operator: domain.In, Values: []any{}})
	ctx.AddFilter(domain.Filter{Attribute: "name", Operator: domain.NotIn})
	ctx.AddFilter(domain.Filter{Attribute: "salary", Operator: domain.Equals})
	ctx.AddSort(domain.Sort{Attribute: "salary", Direction: domain.Desc})
	ctx.AddSort(domain.Sort{Attribute: "ghost"})

	out, err := c.Compile(def, ctx)
	require.NoError(t, err)
	assert.Equal(t, plain.SQL, out.SQL)
	assert.NotContains(t, out.SQL, "IN ()")
	assert.Len(t, out.Skipped, 7)
}

func TestCompile_Filters(t *testing.T) {
	def, err := schema.NewBuilder("people").
		SQL("SELECT id, name, age, born, note FROM people").
		Attributes(
			schema.AttributeDef{Name: "id", Kind: convert.Long, Filterable: true},
			schema.AttributeDef{Name: "name", Kind: convert.String, Filterable: true},
			schema.AttributeDef{Name: "age", Kind: convert.Integer, Filterable: true},
			schema.AttributeDef{Name: "note", Kind: convert.String, Filterable: true},
		).
		Build()
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter domain.Filter
		where  string
		binds  map[string]any
	}{
		{"equals", domain.Filter{Attribute: "age", Operator: domain.Equals, Value: "42"}, "age = :f0_age", map[string]any{"f0_age": 42}},
		{"not equals", domain.Filter{Attribute: "age", Operator: domain.NotEquals, Value: 1}, "age != :f0_age", map[string]any{"f0_age": 1}},
		{"greater", domain.Filter{Attribute: "age", Operator: domain.GreaterThan, Value: 1}, "age > :f0_age", map[string]any{"f0_age": 1}},
		{"greater or equal", domain.Filter{Attribute: "age", Operator: domain.GreaterThanOrEqual, Value: 1}, "age >= :f0_age", map[string]any{"f0_age": 1}},
		{"less", domain.Filter{Attribute: "age", Operator: domain.LessThan, Value: 1}, "age < :f0_age", map[string]any{"f0_age": 1}},
		{"less or equal", domain.Filter{Attribute: "age", Operator: domain.LessThanOrEqual, Value: 1}, "age <= :f0_age", map[string]any{"f0_age": 1}},
		{"like", domain.Filter{Attribute: "name", Operator: domain.Like, Value: "J_n%"}, "UPPER(name) LIKE UPPER(:f0_name)", map[string]any{"f0_name": "J_n%"}},
		{"not like", domain.Filter{Attribute: "name", Operator: domain.NotLike, Value: "x%"}, "UPPER(name) NOT LIKE UPPER(:f0_name)", map[string]any{"f0_name": "x%"}},
		{"contains", domain.Filter{Attribute: "name", Operator: domain.Contains, Value: "an"}, "UPPER(name) LIKE UPPER(:f0_name)", map[string]any{"f0_name": "%an%"}},
		{"starts with", domain.Filter{Attribute: "name", Operator: domain.StartsWith, Value: "An"}, "UPPER(name) LIKE UPPER(:f0_name)", map[string]any{"f0_name": "An%"}},
		{"ends with", domain.Filter{Attribute: "name", Operator: domain.EndsWith, Value: "na"}, "UPPER(name) LIKE UPPER(:f0_name)", map[string]any{"f0_name": "%na"}},
		{"in", domain.Filter{Attribute: "id", Operator: domain.In, Values: []any{1, "2"}}, "id IN (:f0_id_0, :f0_id_1)", map[string]any{"f0_id_0": int64(1), "f0_id_1": int64(2)}},
		{"not in", domain.Filter{Attribute: "id", Operator: domain.NotIn, Value: 7}, "id NOT IN (:f0_id_0)", map[string]any{"f0_id_0": int64(7)}},
		{"between", domain.Filter{Attribute: "age", Operator: domain.Between, Value: 18, Value2: 65}, "age BETWEEN :f0_age_lo AND :f0_age_hi", map[string]any{"f0_age_lo": 18, "f0_age_hi": 65}},
		{"between values", domain.Filter{Attribute: "age", Operator: domain.Between, Values: []any{1, 2}}, "age BETWEEN :f0_age_lo AND :f0_age_hi", map[string]any{"f0_age_lo": 1, "f0_age_hi": 2}},
		{"is null", domain.Filter{Attribute: "note", Operator: domain.IsNull}, "note IS NULL", map[string]any{}},
		{"is not null", domain.Filter{Attribute: "note", Operator: domain.IsNotNull}, "note IS NOT NULL", map[string]any{}},
	}

	c := New(dialect.OffsetFetch{}, quiet())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := domain.NewContext()
			ctx.AddFilter(tt.filter)

			out, err := c.Compile(def, ctx)
			require.NoError(t, err)
			assert.Equal(t, "SELECT * FROM (SELECT id, name, age, born, note FROM people) filtered_q WHERE "+tt.where, out.SQL)
			assert.Equal(t, tt.binds, out.Binds)
		})
	}
}

func TestCompile_FilterBindsNeverCollide(t *testing.T) {
	def := schema.NewBuilder("codes").
		SQL("SELECT code, code_1 FROM codes").
		Attributes(
			schema.AttributeDef{Name: "code", Kind: convert.Long, Filterable: true},
			schema.AttributeDef{Name: "code_1", Kind: convert.Long, Filterable: true},
		).
		MustBuild()

	ctx := domain.NewContext()
	ctx.AddFilter(domain.Filter{Attribute: "code", Operator: domain.GreaterThan, Value: 1})
	ctx.AddFilter(domain.Filter{Attribute: "code", Operator: domain.In, Values: []any{5}})
	ctx.AddFilter(domain.Filter{Attribute: "code_1", Operator: domain.Equals, Value: 99})

	out, err := New(dialect.OffsetFetch{}, quiet()).Compile(def, ctx)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM (SELECT code, code_1 FROM codes) filtered_q WHERE code > :f0_code AND code IN (:f1_code_0) AND code_1 = :f2_code_1",
		out.SQL)
	assert.Equal(t, map[string]any{"f0_code": int64(1), "f1_code_0": int64(5), "f2_code_1": int64(99)}, out.Binds)
}

func TestCompile_PartiallyUsableInListLeavesNoBinds(t *testing.T) {
	def := schema.NewBuilder("codes").
		SQL("SELECT id, name FROM codes").
		Attributes(
			schema.AttributeDef{Name: "id", Kind: convert.Long, Filterable: true},
			schema.AttributeDef{Name: "name", Kind: convert.String, Filterable: true},
		).
		MustBuild()

	ctx := domain.NewContext()
	ctx.AddFilter(domain.Filter{Attribute: "id", Operator: domain.In, Values: []any{1, "two"}})
	ctx.AddFilter(domain.Filter{Attribute: "name", Operator: domain.Equals, Value: "Ann"})

	out, err := New(dialect.OffsetFetch{}, quiet()).Compile(def, ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT id, name FROM codes) filtered_q WHERE name = :f0_name", out.SQL)
	assert.Equal(t, map[string]any{"f0_name": "Ann"}, out.Binds)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "id", out.Skipped[0].Attribute)
}

func TestCompile_LineCommentsKeepCriteria(t *testing.T) {
	def := schema.NewBuilder("commented").
		SQL("SELECT id FROM emp -- employee table\nWHERE dept_id = :deptId --nameFilter").
		Attribute(schema.AttributeDef{Name: "id", Kind: convert.Long}).
		Param(schema.ParamDef{Name: "deptId", Kind: convert.Integer}).
		Param(schema.ParamDef{Name: "name", Kind: convert.String}).
		Criteria(schema.CriteriaDef{
			Name:      "nameFilter",
			SQL:       "AND name = :name",
			Condition: condition.MustParse("hasParam(name)"),
		}).
		MustBuild()

	ctx := domain.NewContext()
	ctx.SetParam("deptId", 3)
	ctx.SetParam("name", "Ann")
	out, err := New(dialect.OffsetFetch{}, quiet()).Compile(def, ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM emp WHERE dept_id = :deptId AND name = :name", out.SQL)
	assert.Equal(t, []string{"nameFilter"}, out.Applied)
}

func TestCompile_SameAttributeFilteredTwice(t *testing.T) {
	ctx := domain.NewContext()
	ctx.AddFilter(domain.Filter{Attribute: "name", Operator: domain.StartsWith, Value: "A"})
	ctx.AddFilter(domain.Filter{Attribute: "name", Operator: domain.NotEquals, Value: "Adam"})

	out, err := New(dialect.OffsetFetch{}, quiet()).Compile(employees(t), ctx)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT * FROM (SELECT id, name, salary FROM emp WHERE 1=1) filtered_q WHERE UPPER(name) LIKE UPPER(:f0_name) AND name != :f1_name",
		out.SQL)
	assert.Equal(t, map[string]any{"f0_name": "A%", "f1_name": "Adam"}, out.Binds)
}

func TestCompile_BetweenNeedsBothBounds(t *testing.T) {
	def, err := schema.NewBuilder("q").
		SQL("SELECT n FROM t").
		Attribute(schema.AttributeDef{Name: "n", Kind: convert.Long, Filterable: true}).
		Build()
	require.NoError(t, err)

	ctx := domain.NewContext()
	ctx.AddFilter(domain.Filter{Attribute: "n", Operator: domain.Between, Value: 1})
	out, err := New(nil, quiet()).Compile(def, ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT n FROM t", out.SQL)
}

func TestCompile_Sorts(t *testing.T) {
	ctx := domain.NewContext()
	ctx.AddSort(domain.Sort{Attribute: "name"})
	ctx.AddSort(domain.Sort{Attribute: "id", Direction: "desc"})

	out, err := New(dialect.OffsetFetch{}, quiet()).Compile(employees(t), ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT id, name, salary FROM emp WHERE 1=1) filtered_q ORDER BY name ASC, id DESC", out.SQL)
}

func TestCompile_JoinAlwaysWrapped(t *testing.T) {
	out, err := New(dialect.RowNum{}, quiet()).Compile(joined(t), domain.NewContext())
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM (SELECT e.id, e.name, d.name AS dept_name FROM emp e JOIN dept d ON d.id = e.dept_id WHERE 1=1) base_q", out.SQL)
	assert.Equal(t, 1, out.Levels)
	assert.True(t, out.Wrapped)
}

func TestCompile_JoinInsideLiteralIsNotComplex(t *testing.T) {
	def, err := schema.NewBuilder("q").SQL("SELECT a FROM t WHERE b = 'JOIN'").Build()
	require.NoError(t, err)

	out, err := New(nil, quiet()).Compile(def, domain.NewContext())
	require.NoError(t, err)
	assert.False(t, out.Wrapped)
}

func fourLevelContext() *domain.Context {
	ctx := domain.NewContext()
	ctx.AddFilter(domain.Filter{Attribute: "name", Operator: domain.Contains, Value: "an"})
	ctx.AddSort(domain.Sort{Attribute: "id", Direction: domain.Desc})
	ctx.SetPagination(domain.Window(0, 10))
	return ctx
}

func TestCompile_RowNumJoinFilterSort(t *testing.T) {
	out, err := New(dialect.RowNum{}, quiet()).Compile(joined(t), fourLevelContext())
	require.NoError(t, err)

	assert.Equal(t, 4, out.Levels)
	assert.Equal(t, map[string]any{"f0_name": "%an%", "startRow": 0, "endRow": 10}, out.Binds)
	assert.Equal(t,
		"SELECT COUNT(*) FROM (SELECT * FROM (SELECT * FROM (SELECT e.id, e.name, d.name AS dept_name FROM emp e JOIN dept d ON d.id = e.dept_id WHERE 1=1) base_q) filtered_q WHERE UPPER(name) LIKE UPPER(:f0_name)) count_q",
		out.CountSQL)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "rownum_join_filter_sort", []byte(out.SQL+"\n"))
}

func TestCompile_OffsetFetchJoinFilterSort(t *testing.T) {
	out, err := New(dialect.OffsetFetch{}, quiet()).Compile(joined(t), fourLevelContext())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Levels)
	assert.Equal(t, map[string]any{"f0_name": "%an%", "offset": 0, "limit": 10}, out.Binds)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "offset_fetch_join_filter_sort", []byte(out.SQL+"\n"))
}

func TestCompile_PaginationOnlyWrapsSimpleQuery(t *testing.T) {
	ctx := domain.NewContext()
	ctx.SetPagination(domain.Page(20, 10))

	out, err := New(dialect.SQLite(), quiet()).Compile(employees(t), ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT id, name, salary FROM emp WHERE 1=1) filtered_q LIMIT :limit OFFSET :offset", out.SQL)
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT id, name, salary FROM emp WHERE 1=1) count_q", out.CountSQL)
	assert.Equal(t, domain.Window(20, 30), out.Page)
}

func TestCompile_DefaultPageSize(t *testing.T) {
	def, err := schema.NewBuilder("q").SQL("SELECT a FROM t").PageSize(25, 100).Build()
	require.NoError(t, err)

	ctx := domain.NewContext()
	ctx.SetPagination(domain.Window(50, 0))
	out, err := New(dialect.OffsetFetch{}, quiet()).Compile(def, ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Window(50, 75), out.Page)
	assert.Equal(t, 25, out.Binds["limit"])
}

func TestCompile_InvalidWindow(t *testing.T) {
	def, err := schema.NewBuilder("q").SQL("SELECT a FROM t").PageSize(10, 50).Build()
	require.NoError(t, err)

	ctx := domain.NewContext()
	ctx.SetPagination(domain.Window(0, 51))
	_, err = New(nil, quiet()).Compile(def, ctx)
	require.Error(t, err)
	assert.True(t, qerrors.IsValidation(err))
}

func TestCompile_PriorityAndApplied(t *testing.T) {
	def, err := schema.NewBuilder("q").
		SQL("SELECT id FROM emp WHERE 1=1 --byId --dept").
		Attribute(schema.AttributeDef{Name: "id", Kind: convert.Long}).
		Criteria(schema.CriteriaDef{
			Name:      "dept",
			SQL:       "AND dept_id = :deptId",
			Condition: condition.MustParse("hasParam(deptId) && !applied(byId)"),
		}).
		Criteria(schema.CriteriaDef{Name: "byId", SQL: "AND id = :id", FindByKey: true}).
		Build()
	require.NoError(t, err)

	ctx := domain.NewContext()
	ctx.SetParam("id", 7)
	ctx.SetParam("deptId", 10)

	out, err := New(nil, quiet()).Compile(def, ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM emp WHERE 1=1 AND id = :id", out.SQL)
	assert.Equal(t, []string{"byId"}, out.Applied)
	assert.Equal(t, map[string]any{"id": 7}, out.Binds)
}

func TestCompile_Generator(t *testing.T) {
	def, err := schema.NewBuilder("q").
		SQL("SELECT id FROM emp WHERE 1=1 --statuses").
		Criteria(schema.CriteriaDef{
			Name: "statuses",
			Generator: func(ctx *domain.Context) (string, map[string]any, error) {
				v, ok := ctx.Param("status")
				if !ok {
					return "", nil, nil
				}
				return "AND status = :g_status", map[string]any{"g_status": v}, nil
			},
		}).
		Build()
	require.NoError(t, err)
	c := New(nil, quiet())

	out, err := c.Compile(def, domain.NewContext())
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM emp WHERE 1=1", out.SQL)
	assert.Empty(t, out.Applied)

	ctx := domain.NewContext()
	ctx.SetParam("status", "OPEN")
	out, err = c.Compile(def, ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM emp WHERE 1=1 AND status = :g_status", out.SQL)
	assert.Equal(t, map[string]any{"g_status": "OPEN"}, out.Binds)
}

func TestCompile_GeneratorFailure(t *testing.T) {
	def, err := schema.NewBuilder("q").
		SQL("SELECT id FROM emp WHERE 1=1 --boom").
		Criteria(schema.CriteriaDef{
			Name: "boom",
			Generator: func(*domain.Context) (string, map[string]any, error) {
				return "", nil, errors.New("kaput")
			},
		}).
		Build()
	require.NoError(t, err)

	_, err = New(nil, quiet()).Compile(def, domain.NewContext())
	var ee *qerrors.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, qerrors.CodeCompilation, ee.Code())
	assert.True(t, errors.Is(err, ErrGenerator))
}

func TestCompile_DeterministicAcrossBuilds(t *testing.T) {
	b := schema.NewBuilder("q").
		SQL(joinSQL).
		Attributes(
			schema.AttributeDef{Name: "id", Kind: convert.Long, Sortable: true},
			schema.AttributeDef{Name: "name", Kind: convert.String, Filterable: true, Sortable: true},
		).
		Criteria(schema.CriteriaDef{Name: "deptFilter", SQL: "AND d.id = :deptId"})

	first, err := b.Build()
	require.NoError(t, err)
	second, err := b.Build()
	require.NoError(t, err)

	c := New(dialect.RowNum{}, quiet())
	a, err := c.Compile(first, fourLevelContext())
	require.NoError(t, err)
	z, err := c.Compile(second, fourLevelContext())
	require.NoError(t, err)
	assert.Equal(t, a.SQL, z.SQL)
	assert.Equal(t, a.Binds, z.Binds)
}

func TestCompile_ConcurrentCallsDoNotShareState(t *testing.T) {
	c := New(dialect.OffsetFetch{}, quiet())
	def := employees(t)

	var wg sync.WaitGroup
	results := make([]string, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := domain.NewContext()
			if i%2 == 0 {
				ctx.AddFilter(domain.Filter{Attribute: "name", Operator: domain.Equals, Value: "even"})
			}
			out, err := c.Compile(def, ctx)
			if err == nil {
				results[i] = out.SQL
			}
		}(i)
	}
	wg.Wait()

	for i, sql := range results {
		if i%2 == 0 {
			assert.Contains(t, sql, "name = :f0_name")
		} else {
			assert.Equal(t, "SELECT id, name, salary FROM emp WHERE 1=1", sql)
		}
	}
}
