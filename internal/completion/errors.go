package completion

import (
	"errors"
	"fmt"
)

// Code is a stable identifier callers can branch on.
type Code string

const (
	CodeUnexpectedAIModel     Code = "UnexpectedAIModel"
	CodeUnexpectedTool        Code = "UnexpectedTool"
	CodeToolCallsLimitReached Code = "ToolCallsLimitReached"
	CodeTransportError        Code = "TransportError"
	CodeValidationFailed      Code = "ValidationFailed"
)

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrUnexpectedAIModel     = &Error{Code: CodeUnexpectedAIModel}
	ErrUnexpectedTool        = &Error{Code: CodeUnexpectedTool}
	ErrToolCallsLimitReached = &Error{Code: CodeToolCallsLimitReached}
	ErrTransport             = &Error{Code: CodeTransportError}
	ErrValidationFailed      = &Error{Code: CodeValidationFailed}
)

// Error is a completion failure tagged with its Code.
type Error struct {
	Code Code
	// Op names the step that failed.
	Op  string
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ValidationFailed marks err as a rejection from a downstream collaborator.
func ValidationFailed(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeValidationFailed, Err: err}
}

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}
