package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType names a failure kind. Its string is what the web API reports
// in the "error" field.
type ErrorType string

const (
	ErrorTypeConfiguration    ErrorType = "configuration"
	ErrorTypeHandshake        ErrorType = "handshake"
	ErrorTypeSignatureRequest ErrorType = "signature_request"
	ErrorTypeUserNotFound     ErrorType = "user_not_found"
	ErrorTypeParsing          ErrorType = "parsing"
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeNetwork          ErrorType = "network"
	ErrorTypeRateLimit        ErrorType = "rate_limit"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeServerError      ErrorType = "server_error"
	ErrorTypeUnknown          ErrorType = "unknown"
)

type kindInfo struct {
	status    int
	retryable bool
}

// kinds not listed report 500 and are never retried
var kinds = map[ErrorType]kindInfo{
	ErrorTypeHandshake:        {status: http.StatusBadGateway},
	ErrorTypeSignatureRequest: {status: http.StatusBadGateway},
	ErrorTypeParsing:          {status: http.StatusBadGateway},
	ErrorTypeUserNotFound:     {status: http.StatusNotFound},
	ErrorTypeNotFound:         {status: http.StatusNotFound},
	ErrorTypeValidation:       {status: http.StatusBadRequest},
	ErrorTypeRateLimit:        {status: http.StatusTooManyRequests, retryable: true},
	ErrorTypeNetwork:          {status: http.StatusInternalServerError, retryable: true},
	ErrorTypeServerError:      {status: http.StatusInternalServerError, retryable: true},
}

// HTTPStatus is the status a handler answers with for this kind
func (t ErrorType) HTTPStatus() int {
	if k, ok := kinds[t]; ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// Error is a typed failure. Code is the upstream HTTP status when one was
// received; Err is the cause.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithCode returns a copy carrying an upstream status code
func (e *Error) WithCode(code int) *Error {
	out := *e
	out.Code = code
	return &out
}

func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return New(t, fmt.Sprintf(format, args...))
}

func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

func Configuration(message string) *Error { return New(ErrorTypeConfiguration, message) }

func Validation(message string) *Error { return New(ErrorTypeValidation, message) }

func Handshake(message string, err error) *Error { return Wrap(ErrorTypeHandshake, message, err) }

func Parsing(message string, err error) *Error { return Wrap(ErrorTypeParsing, message, err) }

// SignatureRequest is a signed call the provider refused
func SignatureRequest(message string, code int, err error) *Error {
	return Wrap(ErrorTypeSignatureRequest, message, err).WithCode(code)
}

func UserNotFound(identifier string, err error) *Error {
	return Wrap(ErrorTypeUserNotFound, "user not found: "+identifier, err)
}

// Network wraps a transport failure; it has no status code
func Network(err error) *Error {
	return Wrap(ErrorTypeNetwork, fmt.Sprintf("network error: %v", err), err)
}

// TypeOf returns the kind of the outermost *Error in the chain
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether any *Error in the chain, not only the outermost,
// has kind t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	for stderrors.As(err, &e) {
		if e.Type == t {
			return true
		}
		err = e.Err
	}
	return false
}

// IsRetryable reports whether a failure of this kind may succeed if repeated
func IsRetryable(t ErrorType) bool {
	return kinds[t].retryable
}

// IsRetryableStatusCode treats a missing status (transport failure), 429
// and any 5xx as transient.
func IsRetryableStatusCode(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}

// FromStatus classifies an upstream HTTP status
func FromStatus(code int) ErrorType {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrorTypeSignatureRequest
	case code == http.StatusNotFound:
		return ErrorTypeNotFound
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code >= 500:
		return ErrorTypeServerError
	}
	return ErrorTypeUnknown
}
