package params

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

func definition(t *testing.T) *schema.Definition {
	t.Helper()
	def, err := schema.NewBuilder("orders").
		SQL("SELECT id, status, total FROM orders WHERE customer_id = :customerId AND created >= :since --byStatus").
		Attributes(
			schema.AttributeDef{Name: "id", Kind: convert.Long, Sortable: true},
			schema.AttributeDef{Name: "status", Kind: convert.String, Filterable: true},
			schema.AttributeDef{Name: "total", Kind: convert.Double, Filterable: true, Sortable: true},
		).
		Param(schema.ParamDef{Name: "customerId", Kind: convert.Long, Required: true}).
		Param(schema.ParamDef{Name: "days", Kind: convert.Integer, Default: 30, Processor: daysAgo("since", fixedNow)}).
		Param(schema.ParamDef{Name: "since", Kind: convert.Date}).
		Param(schema.ParamDef{Name: "status", Kind: convert.String, Processor: Chain(Trim(), OneOf("OPEN", "CLOSED"))}).
		Criteria(schema.CriteriaDef{Name: "byStatus", SQL: "AND status = :status"}).
		PageSize(10, 50).
		Build()
	require.NoError(t, err)
	return def
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 31, 15, 4, 5, 0, time.UTC)
}

func TestRun_DefaultsConversionAndDerivedParams(t *testing.T) {
	ctx := domain.NewContext()
	ctx.SetParam("customerId", "42")
	ctx.SetParam("status", "  OPEN ")

	require.NoError(t, Run(definition(t), ctx))

	v, _ := ctx.Param("customerId")
	assert.Equal(t, int64(42), v)
	v, _ = ctx.Param("days")
	assert.Equal(t, 30, v)
	v, _ = ctx.Param("since")
	assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(v.(time.Time)))
	v, _ = ctx.Param("status")
	assert.Equal(t, "OPEN", v)
}

func TestRun_CollectsAllViolations(t *testing.T) {
	ctx := domain.NewContext()
	ctx.SetParam("days", "many")
	ctx.SetParam("status", "PENDING")

	err := Run(definition(t), ctx)
	require.Error(t, err)

	var ve *qerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Violations, 3)
	assert.Equal(t, "customerId", ve.Violations[0].Field)
	assert.Equal(t, "is required", ve.Violations[0].Message)
	assert.Equal(t, "days", ve.Violations[1].Field)
	assert.Equal(t, "status", ve.Violations[2].Field)

	var ce *convert.ConversionError
	assert.True(t, errors.As(err, &ce), "conversion failures keep their typed error")
}

func TestRun_ProcessorPanicIsViolation(t *testing.T) {
	def, err := schema.NewBuilder("q").
		SQL("SELECT 1 FROM dual WHERE x = :x").
		Param(schema.ParamDef{Name: "x", Processor: func(any, *domain.Context) (any, error) { panic("boom") }}).
		Build()
	require.NoError(t, err)

	ctx := domain.NewContext()
	ctx.SetParam("x", 1)
	err = Run(def, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor panicked: boom")
}

func TestCheckRequest(t *testing.T) {
	def := definition(t)

	ctx := domain.NewContext()
	ctx.AddFilter(domain.Filter{Attribute: "id", Operator: domain.Equals, Value: 1})
	ctx.AddFilter(domain.Filter{Attribute: "status", Operator: domain.Between, Values: []any{"A", "B"}})
	ctx.AddSort(domain.Sort{Attribute: "status"})
	ctx.SetPagination(domain.Window(0, 100))

	require.NoError(t, CheckRequest(def, domain.NewContext(), true))

	err := CheckRequest(def, ctx, false)
	var ve *qerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Violations, 1)
	assert.Equal(t, "pagination", ve.Violations[0].Field)

	err = CheckRequest(def, ctx, true)
	require.ErrorAs(t, err, &ve)
	fields := make([]string, len(ve.Violations))
	for i, v := range ve.Violations {
		fields[i] = v.Field
	}
	assert.Equal(t, []string{"pagination", "filters[0]", "filters[1]", "sorts[0]"}, fields)
}

func TestCheckRequest_Windows(t *testing.T) {
	def := definition(t)
	tests := []struct {
		name string
		page domain.Pagination
		ok   bool
	}{
		{"first page", domain.Window(0, 10), true},
		{"default size", domain.Window(20, 0), true},
		{"max size", domain.Page(0, 50), true},
		{"over max", domain.Page(0, 51), false},
		{"negative start", domain.Window(-1, 5), false},
		{"end before start", domain.Window(10, 5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := domain.NewContext()
			ctx.SetPagination(tt.page)
			err := CheckRequest(def, ctx, false)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_DoesNotMutateContext(t *testing.T) {
	ctx := domain.NewContext()
	ctx.SetParam("customerId", "7")
	ctx.AddSort(domain.Sort{Attribute: "ghost"})

	err := Validate(definition(t), ctx)
	var ve *qerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Violations, 1)
	assert.Equal(t, "sorts[0]", ve.Violations[0].Field)

	v, _ := ctx.Param("customerId")
	assert.Equal(t, "7", v)
	assert.False(t, ctx.HasParam("since"))
}

func TestProcessors(t *testing.T) {
	ctx := domain.NewContext()

	_, err := Between(1, 10)(11, ctx)
	assert.Error(t, err)
	v, err := Between(1, 10)(10, ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = MinLength(3)("ab", ctx)
	assert.Error(t, err)
	_, err = MaxLength(3)("abcd", ctx)
	assert.Error(t, err)
	_, err = MaxLength(3)("äöü", ctx)
	assert.NoError(t, err)

	_, err = Matches(`^[A-Z]{3}$`)("abc", ctx)
	assert.Error(t, err)
	_, err = Matches(`^[A-Z]{3}$`)("ABC", ctx)
	assert.NoError(t, err)

	_, err = OneOf("A", "B")("C", ctx)
	assert.Error(t, err)

	_, err = daysAgo("since", fixedNow)(-1, ctx)
	assert.Error(t, err)

	v, err = Chain(Trim(), MinLength(2))("  x ", ctx)
	assert.Error(t, err)
	assert.Nil(t, v)
}
