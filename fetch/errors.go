package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTimeout indicates the catalog host did not answer in time.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrUpstreamStatus indicates the catalog host answered with a non-success
// status.
type ErrUpstreamStatus struct {
	Status int
	Err    error
}

func (e ErrUpstreamStatus) Error() string {
	return fmt.Sprintf("upstream status %d: %v", e.Status, e.Err)
}

func (e ErrUpstreamStatus) Unwrap() error {
	return e.Err
}

// classifyError wraps a transport failure in the typed error that drives
// metrics labels and retry decisions.
func classifyError(err error, statusCode int) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		return ErrUpstreamStatus{Status: statusCode, Err: wrapped}
	}
	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var status ErrUpstreamStatus
	if errors.As(err, &status) {
		switch status.Status {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		default:
			return "upstream_status"
		}
	}
	return "other"
}

// retryable reports whether a failure class is worth another attempt.
// Client-side mistakes (403, 404) won't improve on retry.
func retryable(err error) bool {
	switch errorTypeLabel(err) {
	case "timeout", "connection", "rate_limited", "upstream_status":
		return true
	default:
		return false
	}
}
