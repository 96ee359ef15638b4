// Package params runs the parameter pipeline: defaults, required checks,
// typed conversion and processors. It also validates the filter, sort and
// pagination parts of a request.
package params

import (
	"fmt"

	"github.com/satishbabariya/querykit/query/convert"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

// Run processes every declared parameter in declaration order and writes the
// resulting values back into ctx. All violations are collected into a single
// ValidationError.
func Run(def *schema.Definition, ctx *domain.Context) error {
	ve := &qerrors.ValidationError{Query: def.Name()}

	for _, p := range def.Params() {
		if !ctx.HasParam(p.Name) && p.Default != nil {
			ctx.SetParam(p.Name, p.Default)
		}
		if !ctx.HasParam(p.Name) {
			if p.Required {
				ve.Add(p.Name, "is required")
			}
			continue
		}

		raw, _ := ctx.Param(p.Name)
		value, err := convert.To(p.Kind, raw)
		if err != nil {
			ve.AddCause(p.Name, err)
			continue
		}

		if p.Processor != nil {
			value, err = runProcessor(p, value, ctx)
			if err != nil {
				ve.AddCause(p.Name, err)
				continue
			}
		}
		ctx.SetParam(p.Name, value)
	}
	return ve.OrNil()
}

func runProcessor(p schema.ParamDef, value any, ctx *domain.Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	return p.Processor(value, ctx)
}

// CheckRequest validates the pagination window and, when strict, the
// filters and sorts of ctx against def.
func CheckRequest(def *schema.Definition, ctx *domain.Context, strict bool) error {
	ve := &qerrors.ValidationError{Query: def.Name()}

	if page, ok := ctx.Pagination(); ok {
		if err := def.CheckPage(page); err != nil {
			ve.AddCause("pagination", err)
		}
	}
	if strict {
		for i, f := range ctx.Filters() {
			if err := def.CheckFilter(f); err != nil {
				ve.AddCause(fmt.Sprintf("filters[%d]", i), err)
			}
		}
		for i, s := range ctx.Sorts() {
			if err := def.CheckSort(s); err != nil {
				ve.AddCause(fmt.Sprintf("sorts[%d]", i), err)
			}
		}
	}
	return ve.OrNil()
}

// Validate runs the parameter pipeline on a copy of ctx together with the
// strict request checks, reporting every violation at once.
func Validate(def *schema.Definition, ctx *domain.Context) error {
	ve := &qerrors.ValidationError{Query: def.Name()}
	probe := ctx.Clone()
	if err := Run(def, probe); err != nil {
		collect(ve, err)
	}
	if err := CheckRequest(def, probe, true); err != nil {
		collect(ve, err)
	}
	return ve.OrNil()
}

func collect(into *qerrors.ValidationError, err error) {
	if other, ok := err.(*qerrors.ValidationError); ok {
		into.Merge(other)
		return
	}
	into.AddCause("", err)
}
