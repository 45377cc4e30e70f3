package hwr

import "errors"

var (
	// ErrStopped is returned for calls made after, or interrupted by, Close.
	ErrStopped = errors.New("hwr: bridge stopped")

	// ErrInvalidResponse is returned when the daemon's answer cannot be decoded.
	ErrInvalidResponse = errors.New("hwr: invalid response")
)
