// Package errors provides structured error types for the framecut editor core.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the HTTP surface and the library
//   - Machine-readable error codes for programmatic handling
//   - User-friendly messages for export failures
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Each editor failure kind has exactly one code:
//   - TIMELINE: a timeline mutation would violate an invariant
//   - RENDER: composition or surface failure
//   - AUDIO_MIX: audio decode or buffer mix failure
//   - ENCODE: encoder unavailable or failed mid-stream
//   - PLATFORM_COMPATIBILITY: no usable encode/decode capability present
//   - RESOURCE: memory or allocation pressure
//
// The remaining codes (CANCELED, INVALID_INPUT, NOT_FOUND, INTERNAL_ERROR)
// cover caller mistakes and cancellation.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeTimeline, "trim exceeds duration of %s", id)
//	if errors.Is(err, errors.ErrCodeTimeline) {
//	    // Operation rejected, model unchanged
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeEncode, origErr, "ffmpeg exited")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Editor failure kinds
	ErrCodeTimeline              Code = "TIMELINE"
	ErrCodeRender                Code = "RENDER"
	ErrCodeAudioMix              Code = "AUDIO_MIX"
	ErrCodeEncode                Code = "ENCODE"
	ErrCodePlatformCompatibility Code = "PLATFORM_COMPATIBILITY"
	ErrCodeResource              Code = "RESOURCE"

	// Lifecycle
	ErrCodeCanceled Code = "CANCELED"

	// Caller errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidPath  Code = "INVALID_PATH"
	ErrCodeNotFound     Code = "NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// userMessages holds the human-readable headline shown for export-facing
// failure kinds. Codes without an entry fall back to the error's own message.
var userMessages = map[Code]string{
	ErrCodeRender:                "Rendering failed",
	ErrCodeAudioMix:              "Audio could not be mixed",
	ErrCodeEncode:                "Encoding failed",
	ErrCodePlatformCompatibility: "No supported video codecs available on this platform",
	ErrCodeResource:              "Not enough memory to export this project",
	ErrCodeCanceled:              "Export canceled",
}

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Timeline reports a rejected timeline mutation.
func Timeline(format string, args ...any) *Error {
	return New(ErrCodeTimeline, format, args...)
}

// Render wraps a composition or rasterization failure.
func Render(cause error, format string, args ...any) *Error {
	return Wrap(ErrCodeRender, cause, format, args...)
}

// AudioMix wraps a decode or mix failure.
func AudioMix(cause error, format string, args ...any) *Error {
	return Wrap(ErrCodeAudioMix, cause, format, args...)
}

// Encode wraps an encoder failure.
func Encode(cause error, format string, args ...any) *Error {
	return Wrap(ErrCodeEncode, cause, format, args...)
}

// PlatformCompatibility reports that no usable capability exists.
func PlatformCompatibility(format string, args ...any) *Error {
	return New(ErrCodePlatformCompatibility, format, args...)
}

// Resource reports allocation pressure.
func Resource(format string, args ...any) *Error {
	return New(ErrCodeResource, format, args...)
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// Export-facing kinds map to a fixed headline; other *Error values return
// their message without the code prefix; other errors return their string.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if msg, ok := userMessages[e.Code]; ok {
			return msg
		}
		return e.Message
	}
	return err.Error()
}
