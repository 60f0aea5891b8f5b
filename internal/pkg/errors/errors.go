// Package errors provides the coded error type shared by the render pipeline
// and the HTTP layer. Every failure carries a Code that decides how it is
// surfaced: as a failed format row, an aborted entity, or an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code represents an error code for categorization.
type Code string

const (
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodePrerequisite  Code = "FAILED_PRECONDITION"
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeRender        Code = "RENDER_ERROR"
	CodeStorage       Code = "STORAGE_ERROR"
	CodeTimeout       Code = "TIMEOUT"
	CodeUnavailable   Code = "UNAVAILABLE"
)

// FieldDiagnostics holds raw encoder output. It is logged, never returned to clients.
const FieldDiagnostics = "diagnostics"

// Error is a custom error type with additional context.
type Error struct {
	// Code is the error code for categorization.
	Code Code
	// Message is the short human-readable message.
	Message string
	// Op is the operation that failed (e.g., "render.format").
	Op string
	// Err is the underlying error.
	Err error
	// Fields contains additional context fields.
	Fields map[string]any
	// Stack contains the stack trace at error creation.
	Stack []Frame
}

// Frame represents a single stack frame.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Error implements the error interface. Fields are not part of the string.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}

	b.WriteString(e.Message)

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField adds a field to the error.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithFields adds multiple fields to the error.
func (e *Error) WithFields(fields map[string]any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodePrerequisite:
		return 412
	case CodeConfiguration:
		return 422
	case CodeTimeout:
		return 504
	case CodeUnavailable:
		return 503
	default:
		return 500
	}
}

// StackTrace returns the stack trace as a formatted string.
func (e *Error) StackTrace() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// New creates a new error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err, keeping its code and fields when it is already an *Error.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		w := &Error{
			Code:    e.Code,
			Message: message,
			Op:      op,
			Err:     err,
			Stack:   captureStack(2),
		}
		if len(e.Fields) > 0 {
			w.WithFields(e.Fields)
		}
		return w
	}

	return &Error{
		Code:    CodeInternal,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an error with formatted message.
func Wrapf(err error, op string, format string, args ...any) *Error {
	return Wrap(err, op, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// NotFound creates a not found error.
func NotFound(resource string, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field string, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

// Prerequisite reports that required upstream work is not finished.
func Prerequisite(message string) *Error {
	return New(CodePrerequisite, message)
}

// Configuration reports missing or invalid render settings.
func Configuration(message string) *Error {
	return New(CodeConfiguration, message)
}

// Configurationf creates a configuration error with formatted message.
func Configurationf(format string, args ...any) *Error {
	return Newf(CodeConfiguration, format, args...)
}

// Render creates a render error for format. diagnostics is the encoder's
// stderr tail and stays out of Error().
func Render(format string, diagnostics string, err error) *Error {
	msg := "render failed"
	if format != "" {
		msg = fmt.Sprintf("render failed for format %s", format)
	}
	e := &Error{
		Code:    CodeRender,
		Message: msg,
		Err:     err,
		Stack:   captureStack(2),
	}
	if format != "" {
		e.WithField("format", format)
	}
	if diagnostics != "" {
		e.WithField(FieldDiagnostics, diagnostics)
	}
	return e
}

// Storage creates a storage error for an upload or download of key.
func Storage(op string, key string, err error) *Error {
	e := &Error{
		Code:    CodeStorage,
		Message: fmt.Sprintf("storage %s failed", op),
		Op:      "storage." + op,
		Err:     err,
		Stack:   captureStack(2),
	}
	if key != "" {
		e.WithField("key", key)
	}
	return e
}

// Timeout creates a timeout error.
func Timeout(operation string) *Error {
	return New(CodeTimeout, fmt.Sprintf("operation timed out: %s", operation)).
		WithField("operation", operation)
}

// Unavailable creates an unavailable error.
func Unavailable(service string) *Error {
	return New(CodeUnavailable, fmt.Sprintf("service unavailable: %s", service)).
		WithField("service", service)
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return 500
}

// GetFields extracts fields from an error.
func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields
	}
	return nil
}

// Diagnostics returns the raw encoder output attached anywhere in the chain.
func Diagnostics(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if d, ok := e.Fields[FieldDiagnostics].(string); ok {
			return d
		}
		err = e.Err
	}
	return ""
}

// UserMessage returns a short message that is safe to show to end users.
// It is the innermost coded message; plain errors collapse to a generic text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	for {
		var inner *Error
		if e.Err == nil || !errors.As(e.Err, &inner) {
			return e.Message
		}
		e = inner
	}
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

func IsNotFound(err error) bool      { return IsCode(err, CodeNotFound) }
func IsValidation(err error) bool    { return IsCode(err, CodeValidation) }
func IsPrerequisite(err error) bool  { return IsCode(err, CodePrerequisite) }
func IsConfiguration(err error) bool { return IsCode(err, CodeConfiguration) }
func IsRender(err error) bool        { return IsCode(err, CodeRender) }
func IsStorage(err error) bool       { return IsCode(err, CodeStorage) }
func IsTimeout(err error) bool       { return IsCode(err, CodeTimeout) }

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])

	frames := make([]Frame, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()

		if strings.Contains(frame.File, "runtime/") {
			if !more {
				break
			}
			continue
		}

		frames = append(frames, Frame{
			File:     frame.File,
			Line:     frame.Line,
			Function: frame.Function,
		})

		if !more || len(frames) >= 10 {
			break
		}
	}

	return frames
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
