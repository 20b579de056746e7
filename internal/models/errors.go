package models

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes turn failures for appropriate handling.
type ErrorKind int

const (
	ErrorKindStreamOpen       ErrorKind = iota // Backend unreachable or rejected the request
	ErrorKindStreamRead                        // Transport error mid-stream
	ErrorKindRender                            // Chat transport failed to show a message
	ErrorKindStoreUnavailable                  // History store missing; programming error
	ErrorKindCanceled                          // Turn context cancelled (shutdown)
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindStreamOpen:
		return "StreamOpenFailure"
	case ErrorKindStreamRead:
		return "StreamReadFailure"
	case ErrorKindRender:
		return "RenderFailure"
	case ErrorKindStoreUnavailable:
		return "StoreUnavailable"
	case ErrorKindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// TurnError is a categorized failure of one user turn.
type TurnError struct {
	Kind      ErrorKind
	Retryable bool
	// StatusCode is the backend HTTP status when one was observed.
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// NewTurnError creates a TurnError of the given kind wrapping err.
func NewTurnError(kind ErrorKind, message string, err error) *TurnError {
	return &TurnError{Kind: kind, Message: message, Err: err}
}

// NewStreamOpenError creates an error for a backend that could not start generating.
func NewStreamOpenError(message string, err error) *TurnError {
	return NewTurnError(ErrorKindStreamOpen, message, err)
}

// NewStreamReadError creates an error for a stream that broke mid-generation.
func NewStreamReadError(message string, err error) *TurnError {
	return NewTurnError(ErrorKindStreamRead, message, err)
}

// NewRenderError creates an error for a failed placeholder or edit call.
func NewRenderError(message string, err error) *TurnError {
	return NewTurnError(ErrorKindRender, message, err)
}

// NewCanceledError wraps a context error.
func NewCanceledError(err error) *TurnError {
	return NewTurnError(ErrorKindCanceled, "turn canceled", err)
}

// KindOf returns the kind of the first TurnError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries a TurnError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
