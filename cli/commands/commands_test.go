package commands

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/executor"
	"github.com/satishbabariya/querykit/query/schema"
)

const definitionsYAML = `apiVersion: "1.0"
queries:
  - name: employees
    description: Employees by department
    sql: SELECT id, name, dept_id FROM employees WHERE 1=1 --deptFilter
    attributes:
      - {name: id, type: LONG, primaryKey: true, sortable: true}
      - {name: name, type: STRING, filterable: true, sortable: true}
      - {name: deptId, column: dept_id, type: INTEGER, filterable: true}
    params:
      - {name: deptId, type: INTEGER}
    criteria:
      - {name: deptFilter, sql: "AND dept_id = :deptId"}
`

// workspace writes definitions, a sqlite database and a config file, and
// returns the config path.
func workspace(t *testing.T, definitions string) string {
	t.Helper()
	dir := t.TempDir()

	defsPath := filepath.Join(dir, "queries.yaml")
	require.NoError(t, os.WriteFile(defsPath, []byte(definitions), 0o644))

	dbPath := filepath.Join(dir, "app.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT, dept_id INTEGER)`)
	require.NoError(t, err)
	for i := 1; i <= 6; i++ {
		_, err = db.Exec(`INSERT INTO employees VALUES (?, ?, ?)`, i, fmt.Sprintf("emp%d", i), (i-1)/3+1)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	cfgPath := filepath.Join(dir, "querykit.yaml")
	cfg := fmt.Sprintf("definitions: %s\ndatabase:\n  url: sqlite://%s\n  health_check_interval: 0s\nlog:\n  level: \"off\"\n", defsPath, dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	cfg := workspace(t, definitionsYAML)

	out, err := execute(t, "validate", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	var report ValidationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Valid)
	require.Len(t, report.Queries, 1)
	assert.Equal(t, "employees", report.Queries[0].Name)
	assert.Equal(t, 3, report.Queries[0].Attributes)
	assert.Equal(t, 1, report.Queries[0].Criteria)
}

func TestValidateCommand_Invalid(t *testing.T) {
	cfg := workspace(t, `apiVersion: "3.0"
queries: []
`)

	out, err := execute(t, "validate", "--config", cfg, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	var report ValidationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Valid)
	assert.Contains(t, report.Detail, "not supported")
}

func TestExplainCommand(t *testing.T) {
	cfg := workspace(t, definitionsYAML)

	out, err := execute(t, "explain", "employees", "--config", cfg, "--format", "json",
		"-p", "deptId=2", "--page", "0:5", "-s", "name:desc")
	require.NoError(t, err)

	var plan executor.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, "sqlite", plan.Strategy)
	assert.Equal(t, []string{"deptFilter"}, plan.Applied)
	assert.Contains(t, plan.SQL, "dept_id = ?")
	assert.Contains(t, plan.SQL, "LIMIT ? OFFSET ?")
	assert.Contains(t, plan.SQL, "ORDER BY")
}

func TestRunCommand(t *testing.T) {
	cfg := workspace(t, definitionsYAML)

	out, err := execute(t, "run", "employees", "--config", cfg, "--format", "json",
		"-p", "deptId=2", "-s", "id:desc")
	require.NoError(t, err)

	var result domain.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Rows, 3)
	assert.EqualValues(t, 6, result.Rows[0]["id"])
	assert.Equal(t, "emp6", result.Rows[0]["name"])
	require.NotNil(t, result.Metadata)
	assert.Equal(t, []string{"deptFilter"}, result.Metadata.AppliedCriteria)
}

func TestRunCommand_UnknownQuery(t *testing.T) {
	cfg := workspace(t, definitionsYAML)

	_, err := execute(t, "run", "missing", "--config", cfg, "--format", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestDialectsCommand(t *testing.T) {
	cfg := workspace(t, definitionsYAML)

	out, err := execute(t, "dialects", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	var infos []DialectInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	names := make([]string, 0, len(infos))
	for _, d := range infos {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "oracle11g")
	assert.Contains(t, names, "postgres")
}

func TestDescribe(t *testing.T) {
	def, err := schema.NewBuilder("employees").
		SQL("SELECT id, dept_id FROM employees WHERE 1=1 --deptFilter").
		Attributes(
			schema.AttributeDef{Name: "id", PrimaryKey: true},
			schema.AttributeDef{Name: "deptId", Column: "dept_id", Filterable: true},
		).
		Criteria(schema.CriteriaDef{Name: "deptFilter", SQL: "AND dept_id = :deptId"}).
		Build()
	require.NoError(t, err)

	d := describe(def)
	assert.Equal(t, "employees", d.Name)
	require.Len(t, d.Attributes, 2)
	assert.Equal(t, "Dept Id", d.Attributes[1].Label)
	assert.Equal(t, []string{"deptFilter"}, d.Criteria)

	md := describeMarkdown(def)
	assert.Contains(t, md, "# employees")
	assert.Contains(t, md, "| deptId | Dept Id |")
	assert.Contains(t, md, "- `deptFilter`")
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		raw     string
		op      domain.Operator
		values  []any
		wantErr bool
	}{
		{raw: "salary:gt:1000", op: domain.GreaterThan, values: []any{"1000"}},
		{raw: "dept:in:1, 2,3", op: domain.In, values: []any{"1", "2", "3"}},
		{raw: "salary:between:1,5", op: domain.Between, values: []any{"1", "5"}},
		{raw: "note:isnull", op: domain.IsNull},
		{raw: "name:contains:a:b", op: domain.Contains, values: []any{"a:b"}},
		{raw: "salary:gt", wantErr: true},
		{raw: "salary", wantErr: true},
		{raw: "salary:approx:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			f, err := parseFilter(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.op, f.Operator)
			assert.Equal(t, tt.values, f.Values)
		})
	}
}

func TestParseWindow(t *testing.T) {
	start, end, err := parseWindow("10:20")
	require.NoError(t, err)
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)

	start, end, err = parseWindow("5:")
	require.NoError(t, err)
	assert.Equal(t, 5, start)
	assert.Equal(t, 0, end)

	_, _, err = parseWindow("5")
	assert.Error(t, err)
	_, _, err = parseWindow("a:b")
	assert.Error(t, err)
}

func TestPromptParams(t *testing.T) {
	def, err := schema.NewBuilder("q").
		SQL("SELECT 1 FROM dual").
		Param(schema.ParamDef{Name: "deptId"}).
		Param(schema.ParamDef{Name: "name"}).
		Param(schema.ParamDef{Name: "since"}).
		Build()
	require.NoError(t, err)

	var asked []string
	given := map[string]string{"deptId": "10"}
	err = promptParams(def, given, func(p schema.ParamDef) (string, error) {
		asked = append(asked, p.Name)
		if p.Name == "name" {
			return "Ada", nil
		}
		return "", nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "since"}, asked)
	assert.Equal(t, map[string]string{"deptId": "10", "name": "Ada"}, given)

	err = promptParams(def, map[string]string{}, func(schema.ParamDef) (string, error) {
		return "", errors.New("interrupt")
	})
	assert.ErrorContains(t, err, "prompt deptId")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("x")))
	assert.Equal(t, ExitCommandError, ExitCode(usageError(errors.New("x"))))
	assert.Equal(t, ExitCommandError, ExitCode(fmt.Errorf("wrapped: %w", usageError(errors.New("x")))))
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "dialects", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}
