package mcpwire

import (
	"errors"
	"fmt"
)

// JSON-RPC error codes used on the wire. The reserved codes follow the JSON-RPC 2.0
// specification; CodeResourceNotFound sits in the implementation-defined range.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeResourceNotFound = -32002
)

var (
	// ErrParse indicates a line that is not a valid protocol message: malformed JSON
	// or a missing/mismatched protocol-version discriminator.
	ErrParse = errors.New("parse error")

	// ErrEmptyMessage indicates an empty input line where a message was expected.
	// It is distinct from ErrParse so callers can tell silence from garbage.
	ErrEmptyMessage = errors.New("empty message")

	// ErrMethodNotFound indicates a request for a method the peer does not route.
	ErrMethodNotFound = errors.New("method not found")

	// ErrNotFound indicates a missing target: an unknown resource URI, tool name
	// or prompt name.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCursor indicates a pagination cursor that cannot be decoded:
	// corrupt encoding, foreign format, or missing fields.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrReadTimeout indicates a receive that exceeded its deadline. The underlying
	// stream and process remain intact; the caller may retry or terminate.
	ErrReadTimeout = errors.New("read timeout")

	// ErrConnectionLost indicates the peer process exited or the stream closed while
	// requests were outstanding.
	ErrConnectionLost = errors.New("connection lost")

	// ErrProtocolViolation indicates a method call out of session-state sequence,
	// such as issuing requests before the initialize handshake completed.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrCommandNotAllowed indicates an attempt to launch a command that is not on
	// the process-wide allowlist.
	ErrCommandNotAllowed = errors.New("command not allow-listed")
)

func (j JSONRPCError) Error() string {
	return fmt.Sprintf("request error, code: %d, message: %s, data %v", j.Code, j.Message, j.Data)
}

// errorCode maps a typed error to its wire code. Unrecognized errors are internal.
func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrParse), errors.Is(err, ErrEmptyMessage):
		return CodeParseError
	case errors.Is(err, ErrMethodNotFound):
		return CodeMethodNotFound
	case errors.Is(err, ErrNotFound):
		return CodeResourceNotFound
	case errors.Is(err, ErrInvalidCursor):
		return CodeInvalidParams
	case errors.Is(err, ErrProtocolViolation):
		return CodeInvalidRequest
	default:
		return CodeInternalError
	}
}

// asJSONRPCError converts any handler error into a wire error object. Errors that
// already carry a JSONRPCError pass through unchanged.
func asJSONRPCError(err error) *JSONRPCError {
	var perr *JSONRPCError
	if errors.As(err, &perr) {
		return perr
	}
	jsonErr := JSONRPCError{}
	if errors.As(err, &jsonErr) {
		return &jsonErr
	}
	return &JSONRPCError{
		Code:    errorCode(err),
		Message: err.Error(),
	}
}
