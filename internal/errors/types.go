package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeResolution ErrorType = "resolution"
	ErrorTypeTransform  ErrorType = "transform"
	ErrorTypeLint       ErrorType = "lint"
	ErrorTypeCycle      ErrorType = "cycle"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeResolve       = "ERR_RESOLVE"
	ErrCodeTransform     = "ERR_TRANSFORM"
	ErrCodeLint          = "ERR_LINT"
	ErrCodeCycle         = "WARN_CYCLE"
	ErrCodeDanglingEdge  = "ERR_DANGLING_EDGE"
	ErrCodeReadFailed    = "ERR_READ_FAILED"
	ErrCodeWriteFailed   = "ERR_WRITE_FAILED"
	ErrCodeConfigInvalid = "ERR_CONFIG_INVALID"
	ErrCodeBuildFailed   = "ERR_BUILD_FAILED"
	ErrCodeInternalError = "ERR_INTERNAL"
)

// BundlrError is a structured error type with context.
type BundlrError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Module      string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *BundlrError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Module != "" {
		parts = append(parts, "module:"+e.Module)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BundlrError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *BundlrError) Is(target error) bool {
	var t *BundlrError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *BundlrError) WithContext(key string, value interface{}) *BundlrError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *BundlrError) WithLocation(filePath string, line, column int) *BundlrError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithModule adds module context.
func (e *BundlrError) WithModule(module string) *BundlrError {
	e.Module = module

	return e
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *BundlrError {
	return &BundlrError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *BundlrError {
	return &BundlrError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *BundlrError {
	return &BundlrError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ResolutionError reports a specifier that could not be mapped to a file.
// Importer is empty when the error comes straight from the resolver; the
// graph builder fills it in with the importing module's identity.
type ResolutionError struct {
	Specifier string
	FromDir   string
	Importer  string
}

func (e *ResolutionError) Error() string {
	if e.Importer != "" {
		return fmt.Sprintf("[%s] cannot resolve %q imported by %s", ErrCodeResolve, e.Specifier, e.Importer)
	}
	return fmt.Sprintf("[%s] cannot resolve %q from %s", ErrCodeResolve, e.Specifier, e.FromDir)
}

// TransformError reports a fatal failure of one stage for one module.
type TransformError struct {
	Module string
	Stage  string
	Line   int
	Cause  error
}

func (e *TransformError) Error() string {
	location := e.Module
	if e.Line > 0 {
		location += fmt.Sprintf(":%d", e.Line)
	}
	return fmt.Sprintf("[%s] %s: stage %s failed: %v", ErrCodeTransform, location, e.Stage, e.Cause)
}

func (e *TransformError) Unwrap() error {
	return e.Cause
}

// Severity of a lint diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LintDiagnostic is a non-fatal finding of a static-check stage.
type LintDiagnostic struct {
	Module   string   `json:"module" yaml:"module"`
	Stage    string   `json:"stage" yaml:"stage"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Rule     string   `json:"rule,omitempty" yaml:"rule,omitempty"`
	Message  string   `json:"message" yaml:"message"`
	Severity Severity `json:"severity" yaml:"severity"`
}

func (d LintDiagnostic) Error() string {
	location := d.Module
	if d.Line > 0 {
		location += fmt.Sprintf(":%d", d.Line)
	}
	return fmt.Sprintf("%s: %s: %s (%s)", location, d.Severity, d.Message, d.Rule)
}

// CycleWarning records a circular import. Emission still proceeds.
type CycleWarning struct {
	Path []string `json:"path" yaml:"path"`
}

func (w CycleWarning) Error() string {
	return fmt.Sprintf("[%s] circular import: %s", ErrCodeCycle, strings.Join(w.Path, " -> "))
}

// IsResolutionError checks if an error is a resolution failure.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// IsTransformError checks if an error is a fatal transform failure.
func IsTransformError(err error) bool {
	var te *TransformError
	return errors.As(err, &te)
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var be *BundlrError
	if errors.As(err, &be) {
		return be.Recoverable
	}

	return false
}

// ErrBuildFailed wraps the first fatal failure of a run together with the total count.
func ErrBuildFailed(count int, first error) *BundlrError {
	return &BundlrError{
		Type:        ErrorTypeInternal,
		Code:        ErrCodeBuildFailed,
		Message:     fmt.Sprintf("build failed with %d broken module(s)", count),
		Cause:       first,
		Recoverable: true,
	}
}
