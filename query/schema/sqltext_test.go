package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindNames(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"simple", "SELECT * FROM emp WHERE dept_id = :deptId", []string{"deptId"}},
		{"repeated", "WHERE a = :x OR b = :x AND c = :y", []string{"x", "y"}},
		{"quoted ignored", "WHERE a = ':notBind' AND b = :real", []string{"real"}},
		{"escaped quote", "WHERE a = 'it''s :no' AND b = :yes", []string{"yes"}},
		{"cast ignored", "SELECT created::date FROM t WHERE id = :id", []string{"id"}},
		{"block comment", "SELECT /* :hidden */ 1 FROM dual WHERE x = :shown", []string{"shown"}},
		{"numeric marker ignored", "WHERE a = :1", nil},
		{"placeholder is not a bind", "WHERE 1=1 --deptFilter", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BindNames(tt.sql))
		})
	}
}

func TestScanBinds_Positions(t *testing.T) {
	sql := "a = :p AND b = :q"
	refs := ScanBinds(sql)
	if assert.Len(t, refs, 2) {
		assert.Equal(t, ":p", sql[refs[0].Start:refs[0].End])
		assert.Equal(t, ":q", sql[refs[1].Start:refs[1].End])
	}
}

func TestPlaceholders(t *testing.T) {
	sql := "SELECT * FROM emp WHERE 1=1 --deptFilter --deptFilterExtra --deptFilter"
	assert.Equal(t, []string{"deptFilter", "deptFilterExtra"}, Placeholders(sql))
	assert.True(t, HasPlaceholder(sql, "deptFilter"))
	assert.False(t, HasPlaceholder(sql, "dept"))

	re := PlaceholderPattern("deptFilter")
	assert.Equal(t, "SELECT * FROM emp WHERE 1=1 X --deptFilterExtra X", re.ReplaceAllString(sql, "X"))
}

func TestReplacePlaceholder(t *testing.T) {
	sql := "WHERE 1=1 --a --ab --a"
	assert.Equal(t, "WHERE 1=1 X --ab X", ReplacePlaceholder(sql, "a", "X"))
	assert.Equal(t, "WHERE 1=1      ", StripPlaceholders(sql))
}
