package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// I/O result codes. Every Send or Receive failure wraps exactly one of these.
var (
	// ErrWantRead is returned when a receive would block.
	ErrWantRead = errors.New("transport: want read")

	// ErrWantWrite is returned when a send would block.
	ErrWantWrite = errors.New("transport: want write")

	// ErrConnReset is returned when the peer reset the connection.
	ErrConnReset = errors.New("transport: connection reset")

	// ErrConnClosed is returned on orderly close by either side.
	ErrConnClosed = errors.New("transport: connection closed")

	// ErrTimeout is returned when a blocking operation timed out.
	ErrTimeout = errors.New("transport: timeout")

	// ErrInterrupted is returned when a call was interrupted by a signal.
	ErrInterrupted = errors.New("transport: interrupted")

	// ErrGeneral is returned for any other I/O failure.
	ErrGeneral = errors.New("transport: general error")
)

// Configuration errors.
var (
	// ErrNoConn is returned when a transport is constructed without a connection.
	ErrNoConn = errors.New("transport: no connection configured")

	// ErrNoPeer is returned when a datagram transport has no peer address yet.
	ErrNoPeer = errors.New("transport: no peer address")

	// ErrNoEndpoint is returned when an endpoint transport has no EndpointIO.
	ErrNoEndpoint = errors.New("transport: no endpoint io configured")

	// ErrAlreadyStarted is returned when Start is called on a running listener.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrNoHandler is returned when a listener has no connection handler.
	ErrNoHandler = errors.New("transport: no connection handler configured")
)

var codes = []error{
	ErrWantRead, ErrWantWrite, ErrConnReset, ErrConnClosed,
	ErrTimeout, ErrInterrupted, ErrGeneral,
}

// IsRetryable reports whether err asks the caller to repeat the same call
// once the transport is ready.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWantRead) || errors.Is(err, ErrWantWrite)
}

// Code returns the result code wrapped by err, or nil if err carries none.
func Code(err error) error {
	for _, c := range codes {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}

// Classify maps an OS or net error from a read (write == false) or write
// onto one of the result codes. Errors that already carry a code are
// returned unchanged. nil maps to nil.
func Classify(err error, write bool) error {
	if err == nil || Code(err) != nil {
		return err
	}

	var code error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe):
		code = ErrConnClosed
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
		code = wantFor(write)
	case errors.Is(err, syscall.ECONNREFUSED):
		// A refused datagram means no reader yet; try again later.
		code = ErrWantRead
	case errors.Is(err, syscall.ECONNRESET):
		code = ErrConnReset
	case errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EPIPE):
		code = ErrConnClosed
	case errors.Is(err, syscall.EINTR):
		code = ErrInterrupted
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		code = ErrTimeout
	default:
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			code = ErrTimeout
		} else {
			code = ErrGeneral
		}
	}
	return wrap(code, err)
}

func wantFor(write bool) error {
	if write {
		return ErrWantWrite
	}
	return ErrWantRead
}

func wrap(code, cause error) error {
	if cause == nil || cause == code {
		return code
	}
	return fmt.Errorf("%w: %w", code, cause)
}
