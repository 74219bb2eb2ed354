// Package domain contains core domain types for EduGenie.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the user action it is recoverable from.
type Kind string

const (
	// KindAuth is a bad or exhausted access code.
	KindAuth Kind = "auth"
	// KindExtraction is an unreadable or unsupported upload.
	KindExtraction Kind = "extraction"
	// KindCompletion is a model or network failure.
	KindCompletion Kind = "completion"
	// KindExport is a document generation failure.
	KindExport Kind = "export"
	// KindInvalid is a malformed request.
	KindInvalid Kind = "invalid"
)

// Error codes carried on the wire.
const (
	CodeNotAuthenticated  = "not_authenticated"
	CodeAccessDenied      = "access_denied"
	CodeAccessExhausted   = "access_exhausted"
	CodeUnsupportedUpload = "unsupported_upload"
	CodeUploadTooLarge    = "upload_too_large"
	CodeExtractFailed     = "extraction_failed"
	CodeTimeout           = "timeout"
	CodeCompletionFailed  = "completion_failed"
	CodeEmptyCompletion   = "empty_completion"
	CodeNothingToExport   = "nothing_to_export"
	CodeUnsupportedChars  = "unsupported_characters"
	CodeExportFailed      = "export_failed"
	CodeBadRequest        = "bad_request"
)

// Error is a classified, user-facing failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AuthError reports a gate failure.
func AuthError(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

// ExtractionError reports an upload that could not be turned into reference text.
func ExtractionError(code, message string, err error) *Error {
	return &Error{Kind: KindExtraction, Code: code, Message: message, Err: err}
}

// CompletionError reports a failed model call.
func CompletionError(code, message string, err error) *Error {
	return &Error{Kind: KindCompletion, Code: code, Message: message, Err: err}
}

// ExportError reports a failed document render.
func ExportError(code, message string, err error) *Error {
	return &Error{Kind: KindExport, Code: code, Message: message, Err: err}
}

// InvalidError reports a malformed request.
func InvalidError(message string) *Error {
	return &Error{Kind: KindInvalid, Code: CodeBadRequest, Message: message}
}

// KindOf returns the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the wire code of err, or "" if err is not a *Error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "unexpected error"
}
