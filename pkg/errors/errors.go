package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeEmptyCart          Code = "EMPTY_CART"
	CodeProductUnavailable Code = "PRODUCT_UNAVAILABLE"
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeStateConflict      Code = "STATE_CONFLICT"
	CodeConcurrentUpdate   Code = "CONCURRENT_MODIFICATION"
	CodeIdempotency        Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeDependency         Code = "DEPENDENCY_ERROR"
	CodeGatewayUnavailable Code = "GATEWAY_UNAVAILABLE"
)

// Metadata is how a code surfaces to HTTP clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true

	hideDetails = false
	showDetails = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:         {http.StatusBadRequest, final, "validation failed", showDetails},
	CodeEmptyCart:          {http.StatusBadRequest, final, "cart is empty", hideDetails},
	CodeProductUnavailable: {http.StatusUnprocessableEntity, final, "product unavailable", showDetails},
	CodeInsufficientStock:  {http.StatusConflict, final, "insufficient stock", showDetails},
	CodeUnauthorized:       {http.StatusUnauthorized, final, "authentication required", hideDetails},
	CodeForbidden:          {http.StatusForbidden, final, "access denied", hideDetails},
	CodeNotFound:           {http.StatusNotFound, final, "resource not found", hideDetails},
	CodeConflict:           {http.StatusConflict, final, "conflict detected", hideDetails},
	CodeStateConflict:      {http.StatusUnprocessableEntity, final, "state transition disallowed", showDetails},
	CodeConcurrentUpdate:   {http.StatusConflict, retryable, "resource was modified concurrently, please retry", hideDetails},
	CodeIdempotency:        {http.StatusConflict, final, "idempotency key reused", showDetails},
	CodeInternal:           {http.StatusInternalServerError, retryable, "internal server error", hideDetails},
	CodeDependency:         {http.StatusServiceUnavailable, retryable, "dependency unavailable", showDetails},
	CodeGatewayUnavailable: {http.StatusServiceUnavailable, retryable, "payment service unavailable, please try again", hideDetails},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsClientFault reports whether err carries a typed code that blames the
// request rather than this service or one of its dependencies.
func IsClientFault(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	meta := MetadataFor(typed.Code())
	return meta.HTTPStatus < http.StatusInternalServerError && !meta.Retryable
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
