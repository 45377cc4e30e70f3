package camera

import "errors"

var (
	// ErrClosed is returned by Subscription.Next once the subscription has
	// been closed, individually or through CloseAll/Stop.
	ErrClosed = errors.New("camera: subscription closed")

	// ErrFrameTimeout is returned by Subscription.Next when no new frame
	// arrived within the relay's frame timeout.
	ErrFrameTimeout = errors.New("camera: no frame within timeout")

	// ErrEmptySnapshot is returned when the camera produced no image data.
	ErrEmptySnapshot = errors.New("camera: empty snapshot")
)
