package service

import "fmt"

// Kind classifies a failed report request.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindUnavailable Kind = "unavailable"
	KindUpstream    Kind = "upstream"
	KindMalformed   Kind = "malformed"
	KindInternal    Kind = "internal"
)

// User-facing messages for rejected input
const (
	MsgMissingImage  = "Error: please upload an image."
	MsgMissingPrompt = "Error: please enter a question or description."
)

// Error is returned by Generate. Message is safe to show to the user as-is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
