package cdek

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Problem is a single error or warning entry reported by the API.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequestInfo describes the lifecycle of one request registered by the API.
type RequestInfo struct {
	RequestUUID string    `json:"request_uuid,omitempty"`
	Type        string    `json:"type"`
	DateTime    string    `json:"date_time"`
	State       string    `json:"state"`
	Errors      []Problem `json:"errors,omitempty"`
	Warnings    []Problem `json:"warnings,omitempty"`
}

// ErrorResponse is the structured body returned with a rejected call.
type ErrorResponse struct {
	Requests []RequestInfo `json:"requests,omitempty"`
	Errors   []Problem     `json:"errors,omitempty"`
}

// FirstProblem returns the first reported error, looking at the top-level
// list before the request history. It returns nil when there is none.
func (r *ErrorResponse) FirstProblem() *Problem {
	if len(r.Errors) > 0 {
		return &r.Errors[0]
	}
	for i := range r.Requests {
		if len(r.Requests[i].Errors) > 0 {
			return &r.Requests[i].Errors[0]
		}
	}
	return nil
}

// AuthError is returned when the token endpoint rejects the credentials or
// cannot be reached.
type AuthError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cdek auth error: %v", e.Err)
	}
	return fmt.Sprintf("cdek auth error (%s): %s", e.Status, strings.TrimSpace(e.Body))
}

// Unwrap returns the underlying transport error, if any.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// APIError is returned when an authenticated call is rejected with a JSON body.
type APIError struct {
	StatusCode int
	Status     string
	URL        string
	Response   ErrorResponse
	Body       string // raw body, kept when it does not match ErrorResponse
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if p := e.Response.FirstProblem(); p != nil {
		return fmt.Sprintf("cdek api error (%s): %s: %s", e.Cause(), p.Code, p.Message)
	}
	return fmt.Sprintf("cdek api error (%s)", e.Cause())
}

// Cause mirrors the "status status_text, url" cause carried by the error.
func (e *APIError) Cause() string {
	return e.Status + ", " + e.URL
}

// HTTPError is returned when a call fails with a non-JSON body, such as an
// HTML error page from a proxy.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("cdek http error (%s, %s): %s", e.Status, e.URL, strings.TrimSpace(e.Body))
}

// Sentinel errors for client misuse.
var (
	// ErrMissingCredentials indicates the account or password was not configured.
	ErrMissingCredentials = errors.New("missing account credentials")

	// ErrInvalidBaseURL indicates the configured base URL cannot be parsed.
	ErrInvalidBaseURL = errors.New("invalid base url")

	// ErrInvalidDownloadURL indicates an absolute download URL was expected.
	ErrInvalidDownloadURL = errors.New("invalid download url")
)

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode
	}
	return 0
}

// IsRetryable reports whether err is transient: rate limiting, a server side
// failure or a transport error. Validation and auth rejections are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return code == http.StatusTooManyRequests ||
			(code >= http.StatusInternalServerError && code != http.StatusNotImplemented)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUnauthorized reports whether err is a 401 from any endpoint.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
