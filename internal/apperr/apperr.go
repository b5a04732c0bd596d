// Package apperr defines the error kinds surfaced by chat operations.
package apperr

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindUnsupportedType Kind = "unsupported_type"
	KindPermission      Kind = "permission"
	KindNotFound        Kind = "not_found"
	KindTransport       Kind = "transport"
)

// Error carries a Kind so callers can branch without string matching.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrPayloadTooLarge = &Error{Kind: KindPayloadTooLarge}
	ErrUnsupportedType = &Error{Kind: KindUnsupportedType}
	ErrPermission      = &Error{Kind: KindPermission}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTransport       = &Error{Kind: KindTransport}
)

func Validation(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func PayloadTooLarge(op, message string) error {
	return &Error{Kind: KindPayloadTooLarge, Op: op, Message: message}
}

func UnsupportedType(op, message string) error {
	return &Error{Kind: KindUnsupportedType, Op: op, Message: message}
}

func Permission(op, message string) error {
	return &Error{Kind: KindPermission, Op: op, Message: message}
}

func NotFound(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// Transport wraps a backend failure. Errors that already carry a kind are returned unchanged.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// KindOf classifies err. Unclassified errors count as transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	return KindTransport
}

// Message returns the user-facing text of err without the op prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch KindOf(err) {
	case KindNotFound:
		return "Not found"
	case KindPermission:
		return "Not allowed"
	case KindTransport:
		return "Backend unavailable, please try again"
	}
	return "Request failed"
}
