package api

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/kasuganosora/qevo/pkg/config"
	"github.com/kasuganosora/qevo/pkg/entropy"
	"github.com/kasuganosora/qevo/pkg/entropy/tape"
	"github.com/kasuganosora/qevo/pkg/optimizer/genetic"
)

// Error is a coded error carrying the stack where it was created
type Error struct {
	Code    ErrorCode
	Message string
	Stack   []string
	Cause   error
}

// ErrorCode classifies an Error
type ErrorCode string

const (
	ErrCodeConfiguration   ErrorCode = "CONFIGURATION"
	ErrCodeEntropySource   ErrorCode = "ENTROPY_SOURCE"
	ErrCodeFitnessFunction ErrorCode = "FITNESS_FUNCTION"
	ErrCodeTape            ErrorCode = "TAPE"
	ErrCodeCanceled        ErrorCode = "CANCELED"
	ErrCodeClosed          ErrorCode = "CLOSED"
	ErrCodeInternal        ErrorCode = "INTERNAL"
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// StackTrace returns the captured call stack
func (e *Error) StackTrace() []string {
	return e.Stack
}

// NewError creates a coded error
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   cause,
	}
}

// WrapError wraps err with a code. A wrapped *Error keeps its original stack.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return &Error{
			Code:    code,
			Message: message,
			Stack:   apiErr.Stack,
			Cause:   err,
		}
	}

	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   err,
	}
}

func captureStackTrace() []string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return []string{}
	}

	frames := runtime.CallersFrames(pc[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()

		fn := frame.Function
		file := frame.File
		if idx := strings.LastIndex(file, "/"); idx != -1 {
			file = file[idx+1:]
		}
		if idx := strings.LastIndex(fn, "/"); idx != -1 {
			fn = fn[idx+1:]
		}
		stack = append(stack, fmt.Sprintf("  at %s (%s:%d)", fn, file, frame.Line))

		if !more {
			break
		}
	}
	return stack
}

// Classify maps an error from any qevo package to a code. Errors it does not
// recognise are INTERNAL.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	var fitnessErr *genetic.FitnessError
	switch {
	case errors.Is(err, genetic.ErrConfiguration), errors.Is(err, config.ErrInvalid):
		return ErrCodeConfiguration
	case errors.As(err, &fitnessErr):
		return ErrCodeFitnessFunction
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCanceled
	case errors.Is(err, tape.ErrTapeMismatch), errors.Is(err, tape.ErrTapeExhausted):
		return ErrCodeTape
	case errors.Is(err, tape.ErrClosed):
		return ErrCodeClosed
	case errors.Is(err, entropy.ErrInvalidRange), errors.Is(err, entropy.ErrShortFetch):
		return ErrCodeEntropySource
	}
	return ErrCodeInternal
}

// IsErrorCode reports whether err is an *Error with code
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// GetErrorCode returns the code of the outermost *Error in err's chain
func GetErrorCode(err error) ErrorCode {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
