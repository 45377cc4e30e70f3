package centring

import (
	"context"
	"errors"

	"github.com/nerrad567/samplecentring-core/internal/camera"
	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
)

var (
	// ErrNotFound is returned when no saved position has the requested name.
	ErrNotFound = errors.New("centring: position not found")

	// ErrNoCentredPosition is returned when automatic centring finished
	// without producing a position.
	ErrNoCentredPosition = errors.New("centring: no centred position produced")
)

// Error kinds, used as log attribute and metric label values.
const (
	KindHardwareUnavailable = "hardware_unavailable"
	KindInvalidMotorID      = "invalid_motor_id"
	KindNotFound            = "not_found"
	KindMalformedInput      = "malformed_input"
	KindNoResult            = "no_result"
	KindTimeout             = "timeout"
	KindUnknown             = "unknown"
)

// ErrorKind classifies err. It returns "" for a nil error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, diffractometer.ErrInvalidMotorID):
		return KindInvalidMotorID
	case errors.Is(err, diffractometer.ErrMalformedInput):
		return KindMalformedInput
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoCentredPosition):
		return KindNoResult
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, camera.ErrFrameTimeout):
		return KindTimeout
	case errors.Is(err, diffractometer.ErrHardwareUnavailable), errors.Is(err, camera.ErrEmptySnapshot):
		return KindHardwareUnavailable
	default:
		return KindUnknown
	}
}
