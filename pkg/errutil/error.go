package errutil

import (
	"errors"
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.messageWithErr(),
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func Unauthorized(msg string, options ...Option) error {
	return New(StatusUnauthorized, msg, options...)
}

func NotFound(msg string, options ...Option) error {
	return New(StatusNotFound, msg, options...)
}

func BadRequest(msg string, options ...Option) error {
	return New(StatusBadRequest, msg, options...)
}

func Conflict(msg string, options ...Option) error {
	return New(StatusConflict, msg, options...)
}

// InsufficientState marks a non-fatal empty result, e.g. a reward tier with
// no selectable items. Callers fall back rather than surface an error.
func InsufficientState(msg string, options ...Option) error {
	return New(StatusInsufficientState, msg, options...)
}

// TerminalServer carries a business-rule rejection from the backend. The
// server-provided message is surfaced verbatim and the attempt is not retried.
func TerminalServer(msg string, options ...Option) error {
	return New(StatusTerminalServer, msg, options...)
}

// MalformedResponse marks an unexpected payload shape. Logged, surfaced as a
// generic failure, never retried.
func MalformedResponse(msg string, options ...Option) error {
	return New(StatusMalformedResponse, msg, options...)
}

// Transient marks a network or 5xx failure that is safe to retry with the
// same idempotency key.
func Transient(msg string, options ...Option) error {
	return New(StatusTransient, msg, options...)
}

// Subscription marks a push-feed drop. The active set is cleared and the
// subscription is re-established under capped backoff.
func Subscription(msg string, options ...Option) error {
	return New(StatusSubscription, msg, options...)
}

func Timeout(msg string, options ...Option) error {
	return New(StatusTimeout, msg, options...)
}

func Internal(msg string, options ...Option) error {
	return New(StatusInternal, msg, options...)
}

// StatusOf extracts the CoreStatus from err, or StatusUnknown.
func StatusOf(err error) CoreStatus {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}

	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return coder.Status()
	}

	return StatusUnknown
}

// Retryable reports whether err may be re-driven with the same idempotency
// key. Unclassified errors are treated as final.
func Retryable(err error) bool {
	return StatusOf(err).Retryable()
}

// UserMessage returns the message meant for display. Business-rule rejections
// surface the backend's wording; everything else collapses to a generic
// try-again message so internals never leak into the UI.
func UserMessage(err error) string {
	var be BaseError
	if errors.As(err, &be) {
		switch be.Code {
		case StatusTerminalServer, StatusUnauthorized, StatusInsufficientState:
			return be.Message
		}
	}
	return "Something went wrong. Please try again."
}
