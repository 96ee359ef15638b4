package qerrors

import "errors"

// Response is the structured error representation handed to a service boundary.
type Response struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
}

type coded interface {
	Code() string
}

// ToResponse translates an error into a Response. Errors outside the
// taxonomy become a generic internal error so no internal state leaks.
func ToResponse(err error) Response {
	if err == nil {
		return Response{}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return Response{Code: ve.Code(), Message: "request validation failed", Violations: ve.Violations}
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return Response{Code: CodeNotFound, Message: "not found"}
	case errors.Is(err, ErrTooManyRows):
		return Response{Code: CodeTooManyRows, Message: "more than one row matched"}
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		return Response{Code: te.Code(), Message: te.Error()}
	}
	var de *DefinitionError
	if errors.As(err, &de) {
		return Response{Code: de.Code(), Message: de.Error()}
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		// Driver messages may carry SQL text and schema details.
		return Response{Code: ee.Code(), Message: "query execution failed"}
	}
	var c coded
	if errors.As(err, &c) {
		return Response{Code: c.Code(), Message: err.Error()}
	}
	return Response{Code: CodeInternal, Message: "internal error"}
}
