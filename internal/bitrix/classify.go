package bitrix

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// transientMarkers is the vocabulary of failure text that marks a Bitrix
// API error as transient. Bitrix reports errors as free text with no
// machine-readable category, so this classification is a deliberate
// heuristic, not a guarantee. Revise the list here; orchestration code
// only ever sees IsRetryable.
var transientMarkers = []string{
	"timeout",
	"readtimeout",
	"connecttimeout",
	"remoteprotocolerror",
	"all disk upload strategies failed",
	"temporar",
	"service unavailable",
	"gateway timeout",
	"too many request",
	"internal",
	"network",
	"502",
	"503",
	"504",
}

// IsRetryable reports whether a failure from the Bitrix API is worth
// retrying. Transport-level failures are always retryable; structured API
// errors are retryable only when their text matches the transient
// vocabulary; malformed responses never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// The caller gave up; retrying would outlive the request.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var shapeErr *ShapeError
	if errors.As(err, &shapeErr) {
		return false
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		text := strings.ToLower(apiErr.Code + " " + apiErr.Description)
		for _, marker := range transientMarkers {
			if strings.Contains(text, marker) {
				return true
			}
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	return false
}
