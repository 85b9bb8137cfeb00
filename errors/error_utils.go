// Package errors provides coded errors and helpers for categorizing them.
package errors

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// IsRetryableError reports whether the operation that produced err may
// succeed when tried again, typically a dial against a node that is still
// binding its listener.
func IsRetryableError(err error) bool {
	if err == nil || IsContextError(err) {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		switch tErr.Code() {
		case ERR_NETWORK_TIMEOUT,
			ERR_NETWORK_ERROR,
			ERR_NETWORK_CONNECTION_REFUSED,
			ERR_SERVICE_UNAVAILABLE,
			ERR_STORAGE_UNAVAILABLE:
			return true
		}

		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNetworkError reports whether err came from the wire rather than from the
// data that travelled over it.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		return tErr.Code() >= ERR_NETWORK_ERROR && tErr.Code() <= ERR_NETWORK_PEER_DISCONNECTED
	}

	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}

// IsMisbehaviourError reports whether err describes data a peer should not
// have sent us.
func IsMisbehaviourError(err error) bool {
	var tErr *Error
	if !As(err, &tErr) {
		return false
	}

	switch tErr.Code() {
	case ERR_BLOCK_INVALID, ERR_HEADER_INVALID, ERR_NETWORK_PEER_MALICIOUS, ERR_NETWORK_INVALID_RESPONSE:
		return true
	}

	return false
}

// IsContextError reports whether err is, or wraps, a cancellation or
// deadline.
func IsContextError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var tErr *Error
	if As(err, &tErr) {
		return tErr.Code() == ERR_CONTEXT_CANCELED || tErr.Code() == ERR_CONTEXT
	}

	return false
}

// GetErrorCategory buckets err for log lines and metric labels.
func GetErrorCategory(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsContextError(err):
		return "context"
	case IsMisbehaviourError(err):
		return "misbehaviour"
	case IsNetworkError(err):
		return "network"
	}

	var tErr *Error
	if !As(err, &tErr) {
		return "unknown"
	}

	switch code := tErr.Code(); {
	case code >= 10 && code <= 29:
		return "chain"
	case code >= 30 && code <= 39:
		return "transaction"
	case code >= 50 && code <= 59:
		return "service"
	case code >= 60 && code <= 69:
		return "storage"
	case code >= 100 && code <= 109:
		return "state"
	}

	return "unknown"
}
