package domain

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindMissingArtifact Kind = "missing_artifact"
	KindInvalidState    Kind = "invalid_state"
	KindNetwork         Kind = "network"
	KindBackend         Kind = "backend"
	KindNotFound        Kind = "not_found"
)

// Error is the single error type surfaced by the gateway and the workflow.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Status  int
	Err     error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrMissingArtifact = &Error{Kind: KindMissingArtifact}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrBackend         = &Error{Kind: KindBackend}
	ErrNotFound        = &Error{Kind: KindNotFound}
)

// NewError builds an *Error without an underlying cause.
func NewError(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// BackendError reports a non-2xx response or an explicit {error} payload.
func BackendError(op string, status int, message string) *Error {
	return &Error{Kind: KindBackend, Op: op, Status: status, Message: message}
}

// NetworkError wraps a transport failure or timeout.
func NetworkError(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: "backend unreachable", Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can test against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage maps an error to the notice shown to the user. The op decides the
// wording for backend and network failures.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}
	switch e.Kind {
	case KindValidation:
		if e.Message == "no file selected" {
			return "Please select a file first."
		}
		return "Only PDF files are allowed."
	case KindMissingArtifact:
		return "Please upload a document first."
	case KindInvalidState:
		if e.Op == OpRegenerate {
			switch e.Message {
			case MsgNotActiveDocument:
				return "This summary is no longer open. Please reload the page."
			case MsgBusy:
			default:
				return "Document ID is missing. Please try again."
			}
		}
		return "Another request is still in progress. Please wait."
	case KindNotFound:
		return "Document not found."
	}
	switch e.Op {
	case OpUpload:
		return "Error analyzing the contract."
	case OpRegenerate:
		return "Failed to regenerate summary. Please try again."
	case OpHydrate:
		return "Failed to fetch summary. Please re-upload."
	case OpAnalyzeRisk:
		return "Failed to analyze document."
	case OpRecentDocuments:
		return "Failed to load recent documents."
	case OpDocumentSummary:
		return "Failed to load the document summary."
	}
	if e.Message != "" && e.Kind == KindBackend {
		return e.Message
	}
	return "The analysis service is unavailable. Please try again."
}

// Operation names used as Error.Op across the gateway and the workflow.
const (
	OpSelect          = "select file"
	OpUpload          = "extract and summarize"
	OpRecentDocuments = "list recent documents"
	OpDocumentSummary = "fetch document summary"
	OpHydrate         = "fetch summary by route id"
	OpRegenerate      = "regenerate summary"
	OpAnalyzeRisk     = "analyze risk"
)

// Messages of InvalidState errors that views tell apart.
const (
	MsgBusy              = "another request is in progress"
	MsgNotActiveDocument = "document is not the active document"
)
