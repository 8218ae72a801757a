package gree

import "errors"

var (
	// ErrTimeout is returned when no response arrives within the
	// caller's window. Safe to retry.
	ErrTimeout = errors.New("no response within timeout")

	// ErrBindTimeout is returned when a binding exchange times out.
	// It always wraps ErrTimeout.
	ErrBindTimeout = errors.New("binding timed out")

	// ErrDecryption is returned when a payload cannot be decrypted or
	// the plaintext is not parseable. Retrying with the same key will
	// fail identically; re-bind instead.
	ErrDecryption = errors.New("payload decryption failed")

	// ErrProtocol is returned when a response decrypts but carries an
	// unexpected type or malformed field lists.
	ErrProtocol = errors.New("unexpected protocol response")

	// ErrTransport is returned for socket-level failures such as
	// destination unreachable.
	ErrTransport = errors.New("transport failure")

	// ErrNotBound is returned when an operation requiring a device key
	// is attempted without one. No network access occurs.
	ErrNotBound = errors.New("device is not bound")

	// ErrClosed is returned from operations on a closed stream.
	ErrClosed = errors.New("stream closed")
)
