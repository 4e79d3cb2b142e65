package gateway

import "net/http"

// Code is a stable machine-readable error code carried on every error
// response.
type Code string

const (
	CodeUnauthorized          Code = "unauthorized"
	CodeRateLimited           Code = "rate_limited"
	CodeMissingScopeToken     Code = "missing_scope_token"
	CodeInvalidScopeToken     Code = "invalid_scope_token"
	CodeBadRequestBody        Code = "bad_request_body"
	CodeBusy                  Code = "busy"
	CodeBackendUnavailable    Code = "backend_unavailable"
	CodeUnknownBackend        Code = "unknown_backend"
	CodeBackendNotInstalled   Code = "backend_not_installed"
	CodeBackendError          Code = "backend_error"
	CodeRemoteNotAcknowledged Code = "remote_backend_not_acknowledged"
)

// Error is a request-terminating failure with its HTTP mapping. RequestID
// is filled in by the service so every error response stays correlatable.
type Error struct {
	Code      Code
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// HTTPStatus maps the error code to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeUnauthorized, CodeMissingScopeToken, CodeInvalidScopeToken:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBadRequestBody:
		return http.StatusBadRequest
	case CodeBusy, CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case CodeUnknownBackend, CodeBackendNotInstalled, CodeRemoteNotAcknowledged:
		return http.StatusInternalServerError
	case CodeBackendError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}
