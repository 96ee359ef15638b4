package compiler

import "errors"

var (
	// ErrUnsupportedOperator is returned when a filter operator has no SQL form.
	ErrUnsupportedOperator = errors.New("unsupported filter operator")
	// ErrGenerator is returned when a criteria generator fails.
	ErrGenerator = errors.New("criteria generator failed")
)
