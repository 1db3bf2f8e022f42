package session

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrResponse        = errors.New("response error")
	ErrTransport       = errors.New("transport error")
)

var kindCodes = map[error]string{
	ErrNotFound:        "NotFound",
	ErrInvalidArgument: "InvalidArgument",
	ErrResponse:        "ResponseError",
	ErrTransport:       "TransportError",
}

// Error carries the failing operation, its kind and a human readable detail.
type Error struct {
	Op         string
	Kind       error
	Detail     string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Code is the machine readable kind, e.g. "NotFound".
func (e *Error) Code() string {
	return kindCodes[e.Kind]
}

// Code returns the machine readable kind of any error produced by this module,
// or "" when err carries none of the kinds.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	for kind, code := range kindCodes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return ""
}

func NotFound(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrNotFound, Detail: fmt.Sprintf(format, args...)}
}

func InvalidArgument(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}

func ResponseError(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrResponse, Detail: fmt.Sprintf(format, args...)}
}

// MissingKey reports a successful response without an expected key.
func MissingKey(op, key string) error {
	return &Error{Op: op, Kind: ErrResponse, Detail: "missing key: " + key}
}

// MalformedBody reports a response body that is not the expected JSON.
func MalformedBody(op string, cause error) error {
	return &Error{Op: op, Kind: ErrResponse, Detail: "malformed body", Cause: cause}
}

func TransportError(op string, statusCode int, detail string, cause error) error {
	return &Error{Op: op, Kind: ErrTransport, StatusCode: statusCode, Detail: detail, Cause: cause}
}

// IsRetryable reports a transport failure that did not come back as a client error.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != ErrTransport {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode >= 500
}
