// Package qerrors defines the error taxonomy of the query engine.
package qerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a query name is not registered or a
	// single row lookup matched nothing.
	ErrNotFound = errors.New("querykit: not found")

	// ErrTooManyRows is returned when a single row lookup matched more than one row.
	ErrTooManyRows = errors.New("querykit: too many rows")

	// ErrUnsupportedConversion is returned when a value kind is outside the
	// conversion table.
	ErrUnsupportedConversion = errors.New("querykit: unsupported conversion")
)

// Stable error codes.
const (
	CodeDefinition         = "QK1000"
	CodeDefinitionConflict = "QK1001"
	CodeValidation         = "QK2000"
	CodeNotFound           = "QK2404"
	CodeTooManyRows        = "QK2409"
	CodeExecution          = "QK3000"
	CodeCompilation        = "QK3001"
	CodeTimeout            = "QK4000"
	CodeSecurity           = "QK5000"
	CodeInternal           = "QK9000"
)

// Definition error kinds.
const (
	KindInvalid  = "invalid"
	KindConflict = "conflict"
)

// DefinitionError reports a query definition that was built incorrectly.
type DefinitionError struct {
	Query   string
	Kind    string
	Subject string
	Message string
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("querykit: definition")
	if e.Query != "" {
		fmt.Fprintf(&b, " %q", e.Query)
	}
	if e.Subject != "" {
		fmt.Fprintf(&b, " (%s)", e.Subject)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Code returns the stable error code.
func (e *DefinitionError) Code() string {
	if e.Kind == KindConflict {
		return CodeDefinitionConflict
	}
	return CodeDefinition
}

// NewDefinitionError creates an invalid-definition error.
func NewDefinitionError(query, subject, format string, args ...any) *DefinitionError {
	return &DefinitionError{
		Query:   query,
		Kind:    KindInvalid,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewConflictError creates a registration conflict error.
func NewConflictError(query string) *DefinitionError {
	return &DefinitionError{
		Query:   query,
		Kind:    KindConflict,
		Message: "a query with this name is already registered",
	}
}

// Violation is a single problem found in a caller request.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ValidationError carries every violation found in a caller request.
type ValidationError struct {
	Query      string
	Violations []Violation
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	if e.Query == "" {
		return "querykit: validation failed: " + strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("querykit: validation of %q failed: %s", e.Query, strings.Join(msgs, "; "))
}

// Code returns the stable error code.
func (e *ValidationError) Code() string { return CodeValidation }

// Add appends a violation.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

// AddCause appends a violation wrapping an underlying error.
func (e *ValidationError) AddCause(field string, cause error) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: cause.Error(), Cause: cause})
}

// Merge appends the violations of another validation error.
func (e *ValidationError) Merge(other *ValidationError) {
	if other != nil {
		e.Violations = append(e.Violations, other.Violations...)
	}
}

// Empty reports whether no violations were recorded.
func (e *ValidationError) Empty() bool { return len(e.Violations) == 0 }

// OrNil returns the error when it carries violations, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || e.Empty() {
		return nil
	}
	return e
}

// Unwrap exposes the causes of the violations.
func (e *ValidationError) Unwrap() []error {
	var causes []error
	for _, v := range e.Violations {
		if v.Cause != nil {
			causes = append(causes, v.Cause)
		}
	}
	return causes
}

// ExecutionError reports a compilation bug or a driver failure.
type ExecutionError struct {
	Query string
	Op    string
	SQL   string
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("querykit: %s %q: %v", e.Op, e.Query, e.Cause)
	}
	return fmt.Sprintf("querykit: %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Cause }

// Code returns the stable error code.
func (e *ExecutionError) Code() string {
	if e.Op == "compile" {
		return CodeCompilation
	}
	return CodeExecution
}

// NewExecutionError creates an ExecutionError.
func NewExecutionError(query, op string, cause error) *ExecutionError {
	return &ExecutionError{Query: query, Op: op, Cause: cause}
}

// TimeoutError reports a statement that exceeded the configured timeout.
type TimeoutError struct {
	Query   string
	Timeout time.Duration
	Cause   error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("querykit: %q timed out after %s", e.Query, e.Timeout)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error { return e.Cause }

// Code returns the stable error code.
func (e *TimeoutError) Code() string { return CodeTimeout }

// SecurityError is reserved for attribute level denial reporting. Denied
// attributes are currently returned as nil values instead.
type SecurityError struct {
	Query     string
	Attribute string
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	return fmt.Sprintf("querykit: access to %s.%s denied", e.Query, e.Attribute)
}

// Code returns the stable error code.
func (e *SecurityError) Code() string { return CodeSecurity }

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDefinition checks if an error is a definition error.
func IsDefinition(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}

// IsTimeoutCause reports whether a driver error represents a timeout.
func IsTimeoutCause(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "ora-01013") ||
		strings.Contains(msg, "canceling statement due to statement timeout")
}
