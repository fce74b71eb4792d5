package rag

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error categories. Every error surfaced by the pipeline wraps exactly one of
// ErrLoad, ErrConfiguration, ErrValidation or ErrBackend; backend timeouts
// additionally wrap ErrTimeout. Match with errors.Is.
var (
	// ErrLoad reports an unreadable or corrupt source document or dataset.
	ErrLoad = errors.New("load error")
	// ErrConfiguration reports a selected backend that cannot be used:
	// unknown tag, missing credential, missing local dependency.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation reports a malformed request (empty question, non-PDF upload).
	ErrValidation = errors.New("validation error")
	// ErrBackend reports a network or service failure from a backend.
	ErrBackend = errors.New("backend error")
	// ErrTimeout reports a backend call that exceeded its deadline.
	ErrTimeout = errors.New("backend timeout")
)

// BackendFailure tags err as an ErrBackend for the named operation. Deadline
// overruns and network timeouts also match ErrTimeout. A nil err returns nil.
func BackendFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return fmt.Errorf("%s: %w: %w: %w", op, ErrBackend, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
}

// IsTimeout reports whether err is a deadline overrun or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
