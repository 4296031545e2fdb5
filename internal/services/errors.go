package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a PasteError so callers can react without matching
// on messages
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindPasswordIncorrect
	KindAlreadyExists
	KindNotFound
	KindInvalidValue
	KindViewPasswordRequired
	KindUnauthorized
)

var kindMessages = map[ErrorKind]string{
	KindOther:                "An unspecified error occured with the paste manager",
	KindPasswordIncorrect:    "The given password is invalid.",
	KindAlreadyExists:        "A paste with this URL already exists.",
	KindNotFound:             "No paste with this URL has been found.",
	KindInvalidValue:         "The given value is invalid.",
	KindViewPasswordRequired: "This paste requires a view password.",
	KindUnauthorized:         "You are not allowed to do that.",
}

func (k ErrorKind) String() string {
	switch k {
	case KindPasswordIncorrect:
		return "password_incorrect"
	case KindAlreadyExists:
		return "already_exists"
	case KindNotFound:
		return "not_found"
	case KindInvalidValue:
		return "invalid_value"
	case KindViewPasswordRequired:
		return "view_password_required"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "other"
	}
}

// PasteError is returned by every PasteService operation
type PasteError struct {
	Kind ErrorKind
	// Detail refines the message for InvalidValue errors
	Detail string
	Err    error
}

func (e *PasteError) Error() string {
	msg := e.Message()
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PasteError) Unwrap() error {
	return e.Err
}

// Message is the text safe to show to clients; wrapped causes stay internal
func (e *PasteError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return kindMessages[e.Kind]
}

func newError(kind ErrorKind, err error) *PasteError {
	return &PasteError{Kind: kind, Err: err}
}

func invalid(detail string, err error) *PasteError {
	return &PasteError{Kind: KindInvalidValue, Detail: detail, Err: err}
}

// KindOf reports the kind of err, KindOther for foreign errors
func KindOf(err error) ErrorKind {
	var pe *PasteError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}

// IsKind reports whether err is a PasteError of kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
