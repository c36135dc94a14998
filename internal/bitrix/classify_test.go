package bitrix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "read tcp: connection reset by peer" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestIsRetryableTransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"net.Error", fakeNetError{}},
		{"url.Error", &url.Error{Op: "Post", URL: "https://portal", Err: errors.New("dial tcp: lookup portal: no such host")}},
		{"wrapped net.Error", fmt.Errorf("calling tasks.task.add: %w", fakeNetError{})},
		{"connection reset", syscall.ECONNRESET},
		{"connection refused", syscall.ECONNREFUSED},
		{"unexpected EOF", io.ErrUnexpectedEOF},
		{"deadline exceeded", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsRetryable(tt.err) {
				t.Errorf("IsRetryable(%v) = false, want true", tt.err)
			}
		})
	}
}

func TestIsRetryableAPIErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"gateway timeout", &Error{Code: "HTTP_504", Description: "Gateway Timeout"}, true},
		{"service unavailable", &Error{Code: "HTTP_503", Description: "Service Unavailable"}, true},
		{"rate limited", &Error{Code: "QUERY_LIMIT_EXCEEDED", Description: "Too many requests"}, true},
		{"internal error", &Error{Code: "INTERNAL_SERVER_ERROR", Description: "Internal server error"}, true},
		{"temporarily unavailable", &Error{Code: "ERROR", Description: "Portal temporarily unavailable"}, true},
		{"disk strategies", &Error{Code: "DISK_ERROR", Description: "All disk upload strategies failed"}, true},
		{"read timeout text", &Error{Code: "ERROR", Description: "ReadTimeout while proxying"}, true},
		{"access denied", &Error{Code: "ACCESS_DENIED", Description: "Access to the folder is denied"}, false},
		{"bad created_by", &Error{Code: "ERROR_CORE", Description: "Invalid value for CREATED_BY"}, false},
		{"empty", &Error{Code: "ERROR", Description: ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryableTerminalCases(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
	if IsRetryable(&ShapeError{Reason: "task id missing from result"}) {
		t.Error("shape errors should never be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("cancellation should not be retryable")
	}
	if IsRetryable(errors.New("opening /tmp/x: no such file or directory")) {
		t.Error("plain local errors should not be retryable")
	}

	// A wrapped API error still classifies by its text.
	wrapped := fmt.Errorf("uploading photo.jpg: %w", &Error{Code: "HTTP_502", Description: "Bad Gateway"})
	if !IsRetryable(wrapped) {
		t.Error("wrapped 502 should be retryable")
	}

	// Cancellation wins even when wrapping a transport error.
	cancelWrapped := &url.Error{Op: "Post", URL: "https://portal", Err: context.Canceled}
	if IsRetryable(cancelWrapped) {
		t.Error("canceled request should not be retryable")
	}
}
