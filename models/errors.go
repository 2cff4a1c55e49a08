package models

import (
	"errors"
	"fmt"
)

// Error codes carried by CaptureError. The code decides whether a fault
// fails the task or only degrades it.
const (
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeTimeout      = "CAPTURE_TIMEOUT"
	ErrCodeExtraction   = "EXTRACTION_FAILED"
	ErrCodeDownload     = "DOWNLOAD_FAILED"
	ErrCodeStitch       = "STITCH_FAILED"
	ErrCodeFilesystem   = "FILESYSTEM_ERROR"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeRobotsDenied = "ROBOTS_DENIED"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// fatalCodes are the codes that short-circuit a task to the failed state.
// Everything else is recoverable: recorded on the result, task continues.
var fatalCodes = map[string]struct{}{
	ErrCodeNavigation:   {},
	ErrCodeExtraction:   {},
	ErrCodeFilesystem:   {},
	ErrCodeBrowserCrash: {},
	ErrCodeRobotsDenied: {},
	ErrCodeInvalidInput: {},
	ErrCodeInternal:     {},
}

// CaptureError is the internal error type carrying an error code.
// It implements the error interface and supports wrapping via Unwrap.
type CaptureError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// NewCaptureError creates a new CaptureError.
func NewCaptureError(code, message string, err error) *CaptureError {
	return &CaptureError{Code: code, Message: message, Err: err}
}

// IsFatal reports whether err must transition the owning task to the
// failed state. Unclassified errors are treated as fatal.
func IsFatal(err error) bool {
	var ce *CaptureError
	if errors.As(err, &ce) {
		_, fatal := fatalCodes[ce.Code]
		return fatal
	}
	return true
}

// Code extracts the error code from err, or ErrCodeInternal if it does
// not carry one.
func Code(err error) string {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}
