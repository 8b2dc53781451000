package retry

import (
	"context"
	"errors"
	"fmt"

	"ytsubs/internal/services"
)

// Class is the closed set of failure categories the retry loop understands.
type Class int

const (
	ClassUnknown Class = iota
	ClassUnavailable
	ClassInvalidInput
	ClassNotFound
	ClassNoSubtitles
	ClassPermission
	ClassRateLimited
	ClassNetwork
	ClassTimeout
)

var classNames = map[Class]string{
	ClassUnknown:      "unknown",
	ClassUnavailable:  "unavailable",
	ClassInvalidInput: "invalid_input",
	ClassNotFound:     "not_found",
	ClassNoSubtitles:  "no_subtitles",
	ClassPermission:   "permission",
	ClassRateLimited:  "rate_limited",
	ClassNetwork:      "network",
	ClassTimeout:      "timeout",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Retryable reports whether failures of this class are transient.
func (c Class) Retryable() bool {
	switch c {
	case ClassRateLimited, ClassNetwork, ClassTimeout:
		return true
	default:
		return false
	}
}

// Error attaches a retry classification and the affected item to a failure.
type Error struct {
	Class     Class
	Retryable bool
	ItemID    string
	Err       error

	explicit bool
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return e.Class.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Explicit reports whether the retryable flag was set by the caller rather
// than inferred from the message.
func (e *Error) Explicit() bool {
	return e != nil && e.explicit
}

// Mark attaches an explicit retryable flag. The flag overrides any message
// pattern the error text may match.
func Mark(err error, retryable bool, itemID string) *Error {
	return &Error{
		Class:     classOf(err),
		Retryable: retryable,
		ItemID:    itemID,
		Err:       err,
		explicit:  true,
	}
}

// Classified attaches a class determined at the point the error was raised.
func Classified(err error, class Class, itemID string) *Error {
	return &Error{
		Class:     class,
		Retryable: class.Retryable(),
		ItemID:    itemID,
		Err:       err,
		explicit:  true,
	}
}

// Infer classifies err once from its message and records the result.
func Infer(err error, itemID string) *Error {
	class := classOf(err)
	return &Error{
		Class:     class,
		Retryable: class.Retryable(),
		ItemID:    itemID,
		Err:       err,
	}
}

// IsRetryable applies the classification precedence: an explicit flag wins,
// then known terminal markers, then context errors, then message patterns.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var classified *Error
	if errors.As(err, &classified) {
		if classified.explicit {
			return classified.Retryable
		}
		return classified.Class.Retryable()
	}
	if errors.Is(err, services.ErrParse) || errors.Is(err, services.ErrNoSubtitles) ||
		errors.Is(err, services.ErrConfiguration) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ClassifyMessage(err.Error()).Retryable()
}

// ClassOf returns the attached class or the class inferred from the message.
func ClassOf(err error) Class {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Class
	}
	return classOf(err)
}

func classOf(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, services.ErrNoSubtitles) {
		return ClassNoSubtitles
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return ClassifyMessage(err.Error())
}

// Terminal reports whether the class describes a permanent condition.
func (c Class) Terminal() bool {
	switch c {
	case ClassUnavailable, ClassInvalidInput, ClassNotFound, ClassNoSubtitles, ClassPermission:
		return true
	default:
		return false
	}
}

// FetchFailure classifies an error raised by an external fetch. Known
// permanent conditions are marked non-retryable; every other failure of the
// fetch step is marked retryable. Errors that already carry a
// classification are returned unchanged.
func FetchFailure(err error, itemID string) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, services.ErrParse) || errors.Is(err, services.ErrConfiguration) {
		return Mark(err, false, itemID)
	}
	if errors.Is(err, context.Canceled) {
		return Mark(err, false, itemID)
	}
	class := classOf(err)
	if class.Terminal() {
		return Classified(err, class, itemID)
	}
	marked := Mark(err, true, itemID)
	marked.Class = class
	return marked
}
