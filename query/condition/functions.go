package condition

import (
	"github.com/spf13/cast"

	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/schema"
)

type function struct {
	arity int
	build func(args []string) schema.Condition
}

var functions = map[string]function{
	"hasParam": {1, func(a []string) schema.Condition {
		return func(ctx *domain.Context) bool { return ctx.HasParam(a[0]) }
	}},
	"hasFilter": {1, func(a []string) schema.Condition {
		return func(ctx *domain.Context) bool { return ctx.HasFilter(a[0]) }
	}},
	"hasSort": {1, func(a []string) schema.Condition {
		return func(ctx *domain.Context) bool { return ctx.HasSort(a[0]) }
	}},
	"applied": {1, func(a []string) schema.Condition {
		return func(ctx *domain.Context) bool { return ctx.IsApplied(a[0]) }
	}},
	"paramEquals": {2, func(a []string) schema.Condition {
		return func(ctx *domain.Context) bool {
			v, ok := ctx.Param(a[0])
			if !ok {
				return false
			}
			s, err := cast.ToStringE(v)
			return err == nil && s == a[1]
		}
	}},
	"paginated": {0, func([]string) schema.Condition {
		return func(ctx *domain.Context) bool {
			_, ok := ctx.Pagination()
			return ok
		}
	}},
	"secured": {0, func([]string) schema.Condition {
		return func(ctx *domain.Context) bool { return ctx.Security() != nil }
	}},
	"always": {0, func([]string) schema.Condition {
		return func(*domain.Context) bool { return true }
	}},
	"never": {0, func([]string) schema.Condition {
		return func(*domain.Context) bool { return false }
	}},
}
