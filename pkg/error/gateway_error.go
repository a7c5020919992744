package error

import (
	"fmt"
	"net/http"
	"time"
)

// GatewayError is a non-2xx answer from the WhatsApp gateway. Body keeps the raw
// response so callers can log what the gateway actually said.
type GatewayError struct {
	Status int
	Body   string
}

func (err *GatewayError) Error() string {
	if err.Body == "" {
		return fmt.Sprintf("gateway responded with status %d", err.Status)
	}
	return fmt.Sprintf("gateway responded with status %d: %s", err.Status, truncate(err.Body, 512))
}

func (err *GatewayError) ErrCode() string {
	return "GATEWAY_ERROR"
}

func (err *GatewayError) StatusCode() int {
	return http.StatusBadGateway
}

// NetworkError covers transport failures and timeouts where no response was read.
type NetworkError struct {
	Err error
}

func (err *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", err.Err)
}

func (err *NetworkError) Unwrap() error {
	return err.Err
}

func (err *NetworkError) ErrCode() string {
	return "NETWORK_ERROR"
}

func (err *NetworkError) StatusCode() int {
	return http.StatusServiceUnavailable
}

type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (err *RateLimitError) Error() string {
	return fmt.Sprintf("gateway rate limit exceeded, retry after %s", err.RetryAfter)
}

func (err *RateLimitError) ErrCode() string {
	return "RATE_LIMITED"
}

func (err *RateLimitError) StatusCode() int {
	return http.StatusTooManyRequests
}

// NotConnectedError is returned when an operation needs a live WhatsApp session.
type NotConnectedError struct {
	Instance string
	State    string
}

func (err *NotConnectedError) Error() string {
	if err.State == "" {
		return fmt.Sprintf("instance %q is not connected", err.Instance)
	}
	return fmt.Sprintf("instance %q is not connected (state: %s)", err.Instance, err.State)
}

func (err *NotConnectedError) ErrCode() string {
	return "NOT_CONNECTED"
}

func (err *NotConnectedError) StatusCode() int {
	return http.StatusConflict
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
