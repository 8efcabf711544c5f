package errutil

import "net/http"

// CoreStatus classifies an error for retry policy and user-facing handling.
type CoreStatus string

const (
	StatusUnknown           CoreStatus = "UNKNOWN"
	StatusUnauthorized      CoreStatus = "UNAUTHORIZED"
	StatusForbidden         CoreStatus = "FORBIDDEN"
	StatusNotFound          CoreStatus = "NOT_FOUND"
	StatusBadRequest        CoreStatus = "BAD_REQUEST"
	StatusConflict          CoreStatus = "CONFLICT"
	StatusInsufficientState CoreStatus = "INSUFFICIENT_STATE"
	StatusTerminalServer    CoreStatus = "TERMINAL_SERVER"
	StatusMalformedResponse CoreStatus = "MALFORMED_RESPONSE"
	StatusTransient         CoreStatus = "TRANSIENT"
	StatusSubscription      CoreStatus = "SUBSCRIPTION_FAILURE"
	StatusTimeout           CoreStatus = "TIMEOUT"
	StatusInternal          CoreStatus = "INTERNAL"
)

// HTTPStatus maps the status onto the closest HTTP status code for the
// diagnostics endpoint.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusBadRequest, StatusTerminalServer:
		return http.StatusBadRequest
	case StatusConflict:
		return http.StatusConflict
	case StatusInsufficientState:
		return http.StatusUnprocessableEntity
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusTransient, StatusSubscription:
		return http.StatusServiceUnavailable
	case StatusMalformedResponse, StatusInternal, StatusUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a failed attempt may be re-driven with the same
// idempotency key. Only transport-level and 5xx failures qualify; auth and
// business-rule rejections are final.
func (s CoreStatus) Retryable() bool {
	switch s {
	case StatusTransient, StatusTimeout, StatusSubscription:
		return true
	default:
		return false
	}
}
