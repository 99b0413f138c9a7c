package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for callers deciding how to react
type Kind string

const (
	// KindNotFound means the extraction chain ran dry; expected and frequent
	KindNotFound Kind = "not_found"
	// KindNavigation covers browser launch and page load failures
	KindNavigation Kind = "navigation"
	// KindMalformedPrice is text that matched a selector but is not a plausible price
	KindMalformedPrice Kind = "malformed_price"
	// KindStoreIO is a persistence read or write failure
	KindStoreIO Kind = "store_io"
	// KindValidation is bad caller input
	KindValidation Kind = "validation"
	// KindConfiguration is an unusable setting
	KindConfiguration Kind = "configuration"
)

var (
	// ErrNotFound is matched by errors.Is for every KindNotFound error
	ErrNotFound = errors.New("price not found")
	// ErrMalformedPrice is matched by errors.Is for every KindMalformedPrice error
	ErrMalformedPrice = errors.New("not a price")
	// ErrBlocked is wrapped by NotFound errors raised on an anti-bot page
	ErrBlocked = errors.New("blocked by bot wall")
)

// Error is the typed error shared by the scraper, store and scheduler
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Message string
	Err     error
	Time    time.Time
}

func (e *Error) Error() string {
	subject := e.Op
	if e.Subject != "" {
		subject = e.Op + " " + e.Subject
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind, subject, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, subject, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match on kind regardless of the wrapped cause
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrMalformedPrice:
		return e.Kind == KindMalformedPrice
	}
	return false
}

// IsOperational reports whether the failure is a hard fault rather than a missing value
func (e *Error) IsOperational() bool {
	switch e.Kind {
	case KindNavigation, KindStoreIO, KindConfiguration:
		return true
	default:
		return false
	}
}

// New creates an Error stamped with the current time
func New(kind Kind, op, subject, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Subject: subject,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

func NewNotFound(op, subject, message string) *Error {
	return New(KindNotFound, op, subject, message, nil)
}

// NewBlocked is a NotFound caused by an interstitial instead of the product page
func NewBlocked(op, subject, reason string) *Error {
	return New(KindNotFound, op, subject, reason, ErrBlocked)
}

func NewNavigation(op, subject, message string, err error) *Error {
	return New(KindNavigation, op, subject, message, err)
}

func NewMalformedPrice(text string) *Error {
	return New(KindMalformedPrice, "parse", text, "outside sanity window or not numeric", nil)
}

func NewStoreIO(op, subject string, err error) *Error {
	return New(KindStoreIO, op, subject, "store failure", err)
}

func NewValidation(op, message string) *Error {
	return New(KindValidation, op, "", message, nil)
}

func NewConfiguration(message string, err error) *Error {
	return New(KindConfiguration, "config", "", message, err)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err means "no data this cycle"
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBlocked reports whether err came from a detected bot wall
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}

// IsValidation reports whether err was caused by bad input
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
