package guda

import (
	"errors"
	"fmt"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Memory errors
	ErrTypeMemory ErrorType = iota
	// Invalid argument errors (precondition violations rejected before
	// any work is enqueued)
	ErrTypeInvalidArg
	// Execution errors (faults raised while a kernel runs)
	ErrTypeExecution
	// Numerical errors
	ErrTypeNumerical
	// Launch errors (configuration rejected at enqueue time)
	ErrTypeLaunch
)

// GUDAError represents a structured error with context
type GUDAError struct {
	Type    ErrorType
	Op      string      // Operation that failed
	Message string      // Human-readable message
	Err     error       // Underlying error if any
	Context interface{} // Additional context
}

// Error implements the error interface
func (e *GUDAError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("GUDA %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("GUDA %s error in %s: %s",
		e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *GUDAError) Unwrap() error {
	return e.Err
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeMemory:
		return "Memory"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	case ErrTypeExecution:
		return "Execution"
	case ErrTypeNumerical:
		return "Numerical"
	case ErrTypeLaunch:
		return "Launch"
	default:
		return "Unknown"
	}
}

// Common error constructors

// NewMemoryError creates a memory-related error
func NewMemoryError(op string, message string, err error) error {
	return &GUDAError{
		Type:    ErrTypeMemory,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return &GUDAError{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
	}
}

// NewPreconditionError creates an invalid argument error wrapping one of the
// precondition sentinels, so callers can match it with errors.Is.
func NewPreconditionError(op string, sentinel error, message string) error {
	return &GUDAError{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
		Err:     sentinel,
	}
}

// NewLaunchError creates a launch error
func NewLaunchError(op string, message string, err error) error {
	return &GUDAError{
		Type:    ErrTypeLaunch,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewExecutionError creates an execution error
func NewExecutionError(op string, message string, err error) error {
	return &GUDAError{
		Type:    ErrTypeExecution,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewNumericalError creates a numerical error
func NewNumericalError(op string, message string, context interface{}) error {
	return &GUDAError{
		Type:    ErrTypeNumerical,
		Op:      op,
		Message: message,
		Context: context,
	}
}

// Precondition sentinels for the skip layer norm entry points.
var (
	ErrInvalidLD       = errors.New("row width must be positive")
	ErrInvalidVolume   = errors.New("element count must be positive")
	ErrVolumeMismatch  = errors.New("element count is not a multiple of the row width")
	ErrUnsupportedType = errors.New("unsupported data type")
	ErrShapeMismatch   = errors.New("tensor shapes do not match")
	ErrBufferTooSmall  = errors.New("device buffer too small")
)

// Common pre-defined errors

var (
	// ErrOutOfMemory indicates memory allocation failure
	ErrOutOfMemory = NewMemoryError("Malloc", "out of memory", nil)

	// ErrInvalidSize indicates invalid size parameter
	ErrInvalidSize = NewInvalidArgError("Malloc", "size must be positive")

	// ErrNullPointer indicates null pointer access
	ErrNullPointer = NewInvalidArgError("Memory", "null pointer")

	// ErrDoubleFree indicates double free attempt
	ErrDoubleFree = NewMemoryError("Free", "double free detected", nil)

	// ErrStreamDestroyed indicates work submitted to a destroyed stream
	ErrStreamDestroyed = NewLaunchError("Submit", "stream destroyed", nil)
)

// IsMemoryError checks if an error is a memory error
func IsMemoryError(err error) bool {
	return isType(err, ErrTypeMemory)
}

// IsInvalidArgError checks if an error is an invalid argument error
func IsInvalidArgError(err error) bool {
	return isType(err, ErrTypeInvalidArg)
}

// IsLaunchError checks if an error is a launch error
func IsLaunchError(err error) bool {
	return isType(err, ErrTypeLaunch)
}

// IsExecutionError checks if an error is an execution error
func IsExecutionError(err error) bool {
	return isType(err, ErrTypeExecution)
}

// IsNumericalError checks if an error is a numerical error
func IsNumericalError(err error) bool {
	return isType(err, ErrTypeNumerical)
}

func isType(err error, t ErrorType) bool {
	var e *GUDAError
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}
