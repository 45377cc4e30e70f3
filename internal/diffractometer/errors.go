package diffractometer

import "errors"

var (
	// ErrHardwareUnavailable is returned when the rig cannot perform a call:
	// daemon unreachable, request timed out, or the hardware reported a fault.
	ErrHardwareUnavailable = errors.New("diffractometer: hardware unavailable")

	// ErrInvalidMotorID is returned for a motor role the rig does not have.
	ErrInvalidMotorID = errors.New("diffractometer: invalid motor id")

	// ErrMalformedInput is returned for a position or argument that cannot
	// be interpreted (non-numeric position, unknown zoom level, NaN).
	ErrMalformedInput = errors.New("diffractometer: malformed input")
)
