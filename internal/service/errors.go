package service

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
	"github.com/Sakimotor/TranslationFramework2/internal/cmnbin"
	"github.com/Sakimotor/TranslationFramework2/internal/overlay"
	"github.com/Sakimotor/TranslationFramework2/internal/subtitle"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

type ErrorType int

const (
	ErrFileNotFound ErrorType = iota
	ErrFileRead
	ErrFileWrite
	ErrFormat
	ErrOverflow
	ErrMismatch
	ErrValidation
	ErrConfig
	ErrUnknown
)

type CmnError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *CmnError {
	return &CmnError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *CmnError {
	return &CmnError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *CmnError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *CmnError) Unwrap() error {
	return e.Cause
}

func (e *CmnError) WithContext(key string, value any) *CmnError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrFormat:
		return "Format"
	case ErrOverflow:
		return "Overflow"
	case ErrMismatch:
		return "Mismatch"
	case ErrValidation:
		return "Validation"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Classify maps an error from the lower layers onto the taxonomy. Errors
// that are already classified are returned as they are.
func Classify(err error) *CmnError {
	if err == nil {
		return nil
	}

	var cmnErr *CmnError
	if errors.As(err, &cmnErr) {
		return cmnErr
	}

	var (
		formatErr   *cmnbin.FormatError
		overflowErr *cmnbin.OverflowError
		mismatchErr *cmnbin.MismatchError
		pathErr     *fs.PathError
	)
	switch {
	case errors.As(err, &overflowErr):
		return WrapError(err, ErrOverflow, "translation does not fit its slot").
			WithContext("offset", fmt.Sprintf("0x%08X", overflowErr.Offset)).
			WithContext("length", overflowErr.Length).
			WithContext("max_length", overflowErr.MaxLength)
	case errors.Is(err, cmnbin.ErrOverflow), errors.Is(err, binio.ErrTooLong):
		return WrapError(err, ErrOverflow, "translation does not fit its slot")
	case errors.As(err, &mismatchErr):
		return WrapError(err, ErrMismatch, "saved edits do not match the asset").
			WithContext("offset", fmt.Sprintf("0x%08X", mismatchErr.Offset))
	case errors.As(err, &formatErr):
		return WrapError(err, ErrFormat, "asset is not a valid cmn.bin").
			WithContext("block", fmt.Sprintf("0x%08X", formatErr.Block))
	case errors.Is(err, cmnbin.ErrTruncated), errors.Is(err, cmnbin.ErrInvalidCount), errors.Is(err, overlay.ErrCorrupt):
		return WrapError(err, ErrFormat, "file is damaged or not in the expected format")
	case errors.Is(err, subtitle.ErrUnknownOffset):
		return WrapError(err, ErrValidation, "no text at that offset")
	case errors.Is(err, fs.ErrNotExist):
		return WrapError(err, ErrFileNotFound, "file not found")
	case errors.As(err, &pathErr):
		if pathErr.Op == "open" || pathErr.Op == "read" || pathErr.Op == "stat" {
			return WrapError(err, ErrFileRead, "cannot read "+pathErr.Path)
		}
		return WrapError(err, ErrFileWrite, "cannot write "+pathErr.Path)
	default:
		return WrapError(err, ErrUnknown, "operation failed")
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *CmnError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with advice. It reports false for errors outside the
// taxonomy.
func (h *DefaultErrorHandler) Handle(err error) bool {
	if err == nil {
		return true
	}
	cmnErr := Classify(err)
	advice := h.GetAdvice(cmnErr)
	log.Error("Error Detail: %v\n advice: %s", cmnErr, advice)

	return cmnErr.Type != ErrUnknown
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *CmnError) string {
	return GetAdvice(err)
}

func GetAdvice(err *CmnError) string {
	if err == nil {
		return ""
	}
	switch err.Type {
	case ErrFileNotFound:
		return "Please check that the path is correct and the file exists; run 'cmntrans project discover' to list the assets found"
	case ErrFileRead:
		return "Please check file permissions to ensure read access"
	case ErrFileWrite:
		return "Please ensure the changes and output directories are writable"
	case ErrFormat:
		return "Please verify the file is an extracted cmn.bin and that the record widths match the game"
	case ErrOverflow:
		return "Shorten the translation; it must fit the record's fixed slot once encoded"
	case ErrMismatch:
		return "The asset changed since the edits were saved; re-scan it and re-apply the translations"
	case ErrValidation:
		return "Please verify the offset and text; 'cmntrans scan' lists the valid offsets"
	case ErrConfig:
		return "Please check the project file and CMN_* environment variables"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var cmnErr *CmnError
	if errors.As(err, &cmnErr) {
		return cmnErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *CmnError {
	return NewErrorWithCause(errorType, message, err)
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
