package schema

import (
	"fmt"

	"github.com/satishbabariya/querykit/query/domain"
)

// CheckFilter reports why a filter cannot be applied to the definition, or
// nil when it can.
func (d *Definition) CheckFilter(f domain.Filter) error {
	attr, ok := d.Attribute(f.Attribute)
	switch {
	case !ok:
		return fmt.Errorf("unknown attribute %q", f.Attribute)
	case attr.Virtual:
		return fmt.Errorf("attribute %q is calculated and cannot be filtered", f.Attribute)
	case !attr.Filterable:
		return fmt.Errorf("attribute %q is not filterable", f.Attribute)
	case !attr.Supports(f.Operator):
		return fmt.Errorf("operator %s is not allowed on attribute %q", f.Operator, f.Attribute)
	}
	return nil
}

// CheckSort reports why a sort cannot be applied to the definition, or nil
// when it can.
func (d *Definition) CheckSort(s domain.Sort) error {
	attr, ok := d.Attribute(s.Attribute)
	switch {
	case !ok:
		return fmt.Errorf("unknown attribute %q", s.Attribute)
	case attr.Virtual:
		return fmt.Errorf("attribute %q is calculated and cannot be sorted", s.Attribute)
	case !attr.Sortable:
		return fmt.Errorf("attribute %q is not sortable", s.Attribute)
	}
	if _, err := domain.ParseDirection(string(s.Direction)); err != nil {
		return err
	}
	return nil
}

// EffectivePage fills an open window with the default page size.
func (d *Definition) EffectivePage(p domain.Pagination) domain.Pagination {
	if p.IsOpen() && d.defaultPageSize > 0 {
		p.End = p.Start + d.defaultPageSize
	}
	return p
}

// CheckPage reports why a pagination window is invalid for the definition.
func (d *Definition) CheckPage(p domain.Pagination) error {
	p = d.EffectivePage(p)
	switch {
	case p.Start < 0:
		return fmt.Errorf("start %d must not be negative", p.Start)
	case !p.IsOpen() && p.End <= p.Start:
		return fmt.Errorf("end %d must be greater than start %d", p.End, p.Start)
	case d.maxPageSize > 0 && p.IsOpen():
		return fmt.Errorf("window must have an end, at most %d rows", d.maxPageSize)
	case d.maxPageSize > 0 && p.Limit() > d.maxPageSize:
		return fmt.Errorf("page size %d exceeds maximum %d", p.Limit(), d.maxPageSize)
	}
	return nil
}
