// Package errors provides structured error types and exit codes for sitepipe.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess          = 0 // Success
	ExitRuntimeError     = 1 // Runtime error (transform failed, filesystem error, etc.)
	ExitConfigError      = 2 // Configuration error (invalid config, unknown task, etc.)
	ExitEnvironmentError = 3 // Environment error (port in use, missing external tool, etc.)
)

// ErrorKind represents the type of error.
type ErrorKind int

const (
	KindRuntime ErrorKind = iota
	KindConfig
	KindNotFound
	KindValidation
	KindEnvironment
	KindTransform
	KindFilesystem
	KindServer
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not-found"
	case KindValidation:
		return "validation"
	case KindEnvironment:
		return "environment"
	case KindTransform:
		return "transform"
	case KindFilesystem:
		return "filesystem"
	case KindServer:
		return "server"
	default:
		return "runtime"
	}
}

// SitepipeError is the base error type for sitepipe.
type SitepipeError struct {
	Kind    ErrorKind
	Message string
	Task    string // Task name if applicable
	Phase   string // Pipeline phase if applicable
	Cause   error  // Underlying error
}

func (e *SitepipeError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Cause)
		}
	}
	if e.Task != "" && e.Phase != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Task, e.Phase, msg)
	}
	if e.Task != "" {
		return fmt.Sprintf("[%s] %s", e.Task, msg)
	}
	return msg
}

func (e *SitepipeError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *SitepipeError) ExitCode() int {
	switch e.Kind {
	case KindConfig, KindValidation, KindNotFound:
		return ExitConfigError
	case KindEnvironment, KindServer:
		return ExitEnvironmentError
	default:
		return ExitRuntimeError
	}
}

// New creates a new runtime error.
func New(message string) *SitepipeError {
	return &SitepipeError{
		Kind:    KindRuntime,
		Message: message,
	}
}

// Newf creates a new runtime error with formatting.
func Newf(format string, args ...interface{}) *SitepipeError {
	return New(fmt.Sprintf(format, args...))
}

// Config creates a new configuration error.
func Config(message string) *SitepipeError {
	return &SitepipeError{
		Kind:    KindConfig,
		Message: message,
	}
}

// Configf creates a new configuration error with formatting.
func Configf(format string, args ...interface{}) *SitepipeError {
	return Config(fmt.Sprintf(format, args...))
}

// Environment creates a new environment error.
func Environment(message string) *SitepipeError {
	return &SitepipeError{
		Kind:    KindEnvironment,
		Message: message,
	}
}

// Environmentf creates a new environment error with formatting.
func Environmentf(format string, args ...interface{}) *SitepipeError {
	return Environment(fmt.Sprintf(format, args...))
}

// Transform creates an error for a failed external transform.
func Transform(task, tool string, cause error) *SitepipeError {
	return &SitepipeError{
		Kind:    KindTransform,
		Task:    task,
		Message: tool,
		Cause:   cause,
	}
}

// Filesystem creates an error for a failed read, write or delete.
func Filesystem(path string, cause error) *SitepipeError {
	return &SitepipeError{
		Kind:    KindFilesystem,
		Message: path,
		Cause:   cause,
	}
}

// Server creates an error for a server that failed to start.
func Server(addr string, cause error) *SitepipeError {
	return &SitepipeError{
		Kind:    KindServer,
		Message: fmt.Sprintf("server on %s", addr),
		Cause:   cause,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) *SitepipeError {
	return &SitepipeError{
		Kind:    KindRuntime,
		Message: message,
		Cause:   err,
	}
}

// TaskError creates an error for a specific task in a pipeline phase.
func TaskError(task, phase, message string) *SitepipeError {
	return &SitepipeError{
		Kind:    KindRuntime,
		Task:    task,
		Phase:   phase,
		Message: message,
	}
}

// NotFound creates a not found error.
func NotFound(what, name string) *SitepipeError {
	return &SitepipeError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", what, name),
	}
}

// KindOf returns the kind of the first SitepipeError in err's chain.
// Errors that carry no kind are runtime errors.
func KindOf(err error) ErrorKind {
	var se *SitepipeError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindRuntime
}

// GetExitCode returns the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var se *SitepipeError
	if errors.As(err, &se) {
		return se.ExitCode()
	}
	return ExitRuntimeError
}
