package storage

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of storage errors
type ErrorCode int

const (
	// Generic errors
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInternal

	// Configuration errors
	ErrCodeInvalidConfig
	ErrCodeUnknownPolicy

	// Invariant errors, raised as panics
	ErrCodeInvariantViolation
	ErrCodeNoVictim

	// Device errors
	ErrCodeDeviceReadFailed
	ErrCodeDeviceWriteFailed
	ErrCodeCompression

	// Capacity errors
	ErrCodePageSizeMismatch

	// Lifecycle errors
	ErrCodeClosed
)

var codeNames = map[ErrorCode]string{
	ErrCodeUnknown:            "unknown",
	ErrCodeInternal:           "internal",
	ErrCodeInvalidConfig:      "invalid config",
	ErrCodeUnknownPolicy:      "unknown policy",
	ErrCodeInvariantViolation: "invariant violation",
	ErrCodeNoVictim:           "no victim",
	ErrCodeDeviceReadFailed:   "device read failed",
	ErrCodeDeviceWriteFailed:  "device write failed",
	ErrCodeCompression:        "compression",
	ErrCodePageSizeMismatch:   "page size mismatch",
	ErrCodeClosed:             "closed",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// StorageError represents a simulator error with context
type StorageError struct {
	Code    ErrorCode
	Message string
	Op      string // Operation that failed
	Err     error  // Underlying error (if any)
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a specific error code
func (e *StorageError) Is(target error) bool {
	if t, ok := target.(*StorageError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewStorageError creates a new storage error
func NewStorageError(code ErrorCode, op, message string, err error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrConfig           = &StorageError{Code: ErrCodeInvalidConfig, Message: "invalid configuration"}
	ErrCapacity         = &StorageError{Code: ErrCodePageSizeMismatch, Message: "page size mismatch"}
	ErrManagerClosed    = &StorageError{Code: ErrCodeClosed, Message: "buffer manager is closed"}
	ErrInvariant        = &StorageError{Code: ErrCodeInvariantViolation, Message: "invariant violation"}
	ErrPolicyNotDefined = &StorageError{Code: ErrCodeUnknownPolicy, Message: "unknown policy"}
)

// Helper functions for common errors

func ErrInvalidConfig(op, format string, args ...any) *StorageError {
	return NewStorageError(ErrCodeInvalidConfig, op, fmt.Sprintf(format, args...), nil)
}

func ErrUnknownPolicy(op, name string) *StorageError {
	return NewStorageError(
		ErrCodeUnknownPolicy,
		op,
		fmt.Sprintf("unknown policy %q", name),
		nil,
	)
}

func ErrDeviceRead(op string, pageID uint32, err error) *StorageError {
	return NewStorageError(
		ErrCodeDeviceReadFailed,
		op,
		fmt.Sprintf("read of page %d failed", pageID),
		err,
	)
}

func ErrDeviceWrite(op string, pageID uint32, err error) *StorageError {
	return NewStorageError(
		ErrCodeDeviceWriteFailed,
		op,
		fmt.Sprintf("write of page %d failed", pageID),
		err,
	)
}

func ErrPageSizeMismatch(op string, want, got int) *StorageError {
	return NewStorageError(
		ErrCodePageSizeMismatch,
		op,
		fmt.Sprintf("buffer is %d bytes, page size is %d", got, want),
		nil,
	)
}

func ErrClosed(op string) *StorageError {
	return NewStorageError(ErrCodeClosed, op, "buffer manager is closed", nil)
}

// invariant panics with an ErrCodeInvariantViolation error when cond is false.
// Broken invariants mean a bug in a policy or the manager; they are not recoverable.
func invariant(cond bool, op, format string, args ...any) {
	if !cond {
		panic(NewStorageError(ErrCodeInvariantViolation, op, fmt.Sprintf(format, args...), nil))
	}
}

func noVictim(op, format string, args ...any) {
	panic(NewStorageError(ErrCodeNoVictim, op, fmt.Sprintf(format, args...), nil))
}

// IsErrorCode checks if an error (or anything it wraps) has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrCodeUnknown
func GetErrorCode(err error) ErrorCode {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeUnknown
}

// IsDeviceError reports whether err came from a block device.
func IsDeviceError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrCodeDeviceReadFailed || code == ErrCodeDeviceWriteFailed
}
