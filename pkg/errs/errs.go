package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an operation failure. Every mutating operation in the
// core either fully applies its transition or reports exactly one Kind.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotAMember          Kind = "NOT_A_MEMBER"
	KindAlreadyMember       Kind = "ALREADY_MEMBER"
	KindEditWindowExpired   Kind = "EDIT_WINDOW_EXPIRED"
	KindOfferNotRespondable Kind = "OFFER_NOT_RESPONDABLE"
	KindConflict            Kind = "CONFLICT"
	KindValidationFailed    Kind = "VALIDATION_FAILED"
	KindCipherFailure       Kind = "CIPHER_FAILURE"
	KindInternal            Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is match on Kind so callers can compare against the
// bare sentinels below without caring about the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Bare sentinels for errors.Is comparisons.
var (
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNotAMember          = &Error{Kind: KindNotAMember, Message: "not a member"}
	ErrAlreadyMember       = &Error{Kind: KindAlreadyMember, Message: "already a member"}
	ErrEditWindowExpired   = &Error{Kind: KindEditWindowExpired, Message: "edit window expired"}
	ErrOfferNotRespondable = &Error{Kind: KindOfferNotRespondable, Message: "offer not respondable"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "conflict"}
	ErrValidationFailed    = &Error{Kind: KindValidationFailed, Message: "validation failed"}
	ErrCipherFailure       = &Error{Kind: KindCipherFailure, Message: "cipher failure"}
)

func NotFound(msg string) error          { return New(KindNotFound, msg) }
func Forbidden(msg string) error         { return New(KindForbidden, msg) }
func NotAMember(msg string) error        { return New(KindNotAMember, msg) }
func AlreadyMember(msg string) error     { return New(KindAlreadyMember, msg) }
func EditWindowExpired(msg string) error { return New(KindEditWindowExpired, msg) }
func NotRespondable(msg string) error    { return New(KindOfferNotRespondable, msg) }
func Conflict(msg string) error          { return New(KindConflict, msg) }
func Validation(msg string) error        { return New(KindValidationFailed, msg) }
func Cipher(msg string, cause error) error {
	return Wrap(KindCipherFailure, msg, cause)
}

// KindOf extracts the Kind from err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to the status the REST layer reports.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden, KindNotAMember:
		return http.StatusForbidden
	case KindAlreadyMember, KindConflict:
		return http.StatusConflict
	case KindEditWindowExpired, KindOfferNotRespondable:
		return http.StatusUnprocessableEntity
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindCipherFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
