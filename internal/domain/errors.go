package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	// ErrUnsupportedProvider means an unknown vendor name was requested.
	// Fatal, never retried, never silently replaced by a fallback.
	ErrUnsupportedProvider = fmt.Errorf("unsupported provider")
	// ErrCapability means an adapter was asked to do something it does not
	// support (image input, streaming). Fatal.
	ErrCapability = fmt.Errorf("capability not supported")
	// ErrVendorCall means the vendor returned a network or HTTP-level
	// failure. The vendor status and message are embedded in the detail.
	// Never retried automatically.
	ErrVendorCall = fmt.Errorf("vendor call failed")
	// ErrNotFound means a knowledge document lookup or delete hit a
	// missing identifier.
	ErrNotFound = fmt.Errorf("not found")
	// ErrValidation means input was rejected at the boundary: disallowed
	// file type, oversized file, missing required field.
	ErrValidation = fmt.Errorf("invalid input")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g. "Agent.Respond")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
	CodeCapability          ErrorCode = "CAPABILITY"
	CodeVendorCall          ErrorCode = "VENDOR_CALL"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeValidation          ErrorCode = "VALIDATION"
)

var errorCodeMap = map[error]ErrorCode{
	ErrUnsupportedProvider: CodeUnsupportedProvider,
	ErrCapability:          CodeCapability,
	ErrVendorCall:          CodeVendorCall,
	ErrNotFound:            CodeNotFound,
	ErrValidation:          CodeValidation,
}

// ErrorCodeOf returns the machine-parseable error code for the given error,
// walking the error chain with errors.Is. Returns CodeUnknown when no
// sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
