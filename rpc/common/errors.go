package common

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies errors exchanged between client and server
type ErrorKind uint8

const (
	ErrKindNone       ErrorKind = iota
	ErrKindInput                // Bad request or failed store operation, the connection stays usable
	ErrKindPermission           // The session lacks a permission, the connection stays usable
	ErrKindProtocol             // Unexpected reply, the connection must be dropped
	ErrKindInternal             // Unexpected server fault
)

// InternalErrorMsg is the only detail a client sees about a server fault
const InternalErrorMsg = "internal server error"

func (k ErrorKind) String() string {
	switch k {
	case ErrKindInput:
		return "input"
	case ErrKindPermission:
		return "permission"
	case ErrKindProtocol:
		return "protocol"
	case ErrKindInternal:
		return "internal"
	default:
		return "none"
	}
}

func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ErrorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "input":
		*k = ErrKindInput
	case "permission":
		*k = ErrKindPermission
	case "protocol":
		*k = ErrKindProtocol
	case "internal":
		*k = ErrKindInternal
	case "none", "":
		*k = ErrKindNone
	default:
		return fmt.Errorf("unknown error kind: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is returned by the server in error responses and by the client for
// remote and protocol failures.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

// NewInputError creates an input error
func NewInputError(format string, args ...any) *Error {
	return &Error{Kind: ErrKindInput, Msg: fmt.Sprintf(format, args...)}
}

// NewPermissionError creates a permission error
func NewPermissionError(format string, args ...any) *Error {
	return &Error{Kind: ErrKindPermission, Msg: fmt.Sprintf(format, args...)}
}

// NewProtocolError creates a protocol error
func NewProtocolError(format string, args ...any) *Error {
	return &Error{Kind: ErrKindProtocol, Msg: fmt.Sprintf(format, args...)}
}

// NewInternalError creates the generic internal error
func NewInternalError() *Error {
	return &Error{Kind: ErrKindInternal, Msg: InternalErrorMsg}
}

// KindOf returns the kind of err, ErrKindNone if it is not an *Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindNone
}

// IsProtocolError reports whether err is a protocol error
func IsProtocolError(err error) bool {
	return KindOf(err) == ErrKindProtocol
}

// IsRemoteError reports whether err was returned by the server for a request
// that left the connection usable
func IsRemoteError(err error) bool {
	k := KindOf(err)
	return k == ErrKindInput || k == ErrKindPermission || k == ErrKindInternal
}
