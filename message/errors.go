package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes used by the engine. Handlers may use any other integer.
const (
	CodeUnknown        = 0
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is the JSON-RPC error object. It is also the Go error returned to callers
// whose call was rejected, and the error type handlers use to fail deliberately.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewError creates a domain error with the given code and message.
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Errorf creates a domain error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Is matches on code and message so canned errors work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// Canned errors synthesized by the engine. Never mutate them.
var (
	ErrParse          = &Error{Code: CodeParseError, Message: "Parse error"}
	ErrInvalidRequest = &Error{Code: CodeInvalidRequest, Message: "Invalid Request"}
	ErrMethodNotFound = &Error{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrTransport      = &Error{Code: CodeInternalError, Message: "Internal error"}
	ErrCallTimeout    = &Error{Code: CodeInternalError, Message: "Call Timeout"}
	ErrUnknown        = &Error{Code: CodeUnknown, Message: "Unknown Error"}
)

// DefaultMessage is used when a handler fails with an error that has no message.
const DefaultMessage = "Internal Error"

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
