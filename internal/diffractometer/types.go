package diffractometer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role names a moveable on the rig. Path ids are matched case-insensitively.
type Role string

const (
	RoleKappa     Role = "kappa"
	RoleOmega     Role = "omega"
	RolePhi       Role = "phi"
	RoleZoom      Role = "zoom"
	RoleBacklight Role = "backlight"
	RoleLight     Role = "light"
)

// StatusRoles are reported by the aggregate status call, keyed by the
// display name the UI expects.
var StatusRoles = []struct {
	Name string
	Role Role
}{
	{"Kappa", RoleKappa},
	{"Omega", RoleOmega},
	{"Phi", RolePhi},
	{"Zoom", RoleZoom},
	{"Light", RoleLight},
}

// ParseRole maps a path id to a Role.
func ParseRole(id string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(id)))
	switch r {
	case RoleKappa, RoleOmega, RolePhi, RoleZoom, RoleBacklight, RoleLight:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMotorID, id)
}

// IsContinuous reports whether the role moves to a float position.
func (r Role) IsContinuous() bool {
	switch r {
	case RoleKappa, RoleOmega, RolePhi:
		return true
	}
	return false
}

// Positions maps motor names to positions, as saved by the diffractometer
// for a centred position (e.g. phi, phiy, sampx, zoom).
type Positions map[string]float64

// Clone returns an independent copy.
func (p Positions) Clone() Positions {
	if p == nil {
		return nil
	}
	out := make(Positions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// MotorStatus is the wire shape of one motor's status.
// Status and Position are strings or numbers depending on the role.
type MotorStatus struct {
	Status   any `json:"Status"`
	Position any `json:"position"`
}

// Backlight states.
const (
	BacklightIn  = "in"
	BacklightOut = "out"
)

// Motor states reported for continuous motors.
const (
	StateReady  = "READY"
	StateMoving = "MOVING"
	StateFault  = "FAULT"
)

// ZoomStatusUnknown is the status reported for the zoom, which has named
// levels but no motor state.
const ZoomStatusUnknown = "unknown"

// Event types relayed to UI clients.
const (
	EventMotorMoved        = "motor.moved"
	EventMotorState        = "motor.state"
	EventCentringStarted   = "centring.started"
	EventCentringClicked   = "centring.clicked"
	EventCentringCompleted = "centring.completed"
	EventCentringFailed    = "centring.failed"
)

// Event is a hardware signal (motor position or state change, centring
// progress) forwarded to UI clients.
type Event struct {
	Type      string         `json:"type"`
	Role      Role           `json:"role,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventHandler receives hardware events. It must not block.
type EventHandler func(Event)

// FrameHandler receives camera frames. data is only valid during the call.
type FrameHandler func(data []byte, width, height int)

// Diffractometer is the motor and centring side of the rig.
type Diffractometer interface {
	// MoveMotor moves a continuous motor (kappa, omega, phi) to position.
	MoveMotor(ctx context.Context, role Role, position float64) error
	// MotorPosition and MotorState read a continuous motor.
	MotorPosition(ctx context.Context, role Role) (float64, error)
	MotorState(ctx context.Context, role Role) (string, error)

	// MoveZoom moves the zoom to a named level.
	MoveZoom(ctx context.Context, level string) error
	// ZoomLevel returns the current level name.
	ZoomLevel(ctx context.Context) (string, error)

	// SetBacklight drives the backlight in or out.
	SetBacklight(ctx context.Context, in bool) error
	// BacklightState returns BacklightIn or BacklightOut.
	BacklightState(ctx context.Context) (string, error)
	// SetLight sets the light level.
	SetLight(ctx context.Context, level float64) error

	// SaveCurrentPosition snapshots the motors defining a centred position.
	SaveCurrentPosition(ctx context.Context) (Positions, error)
	// MoveToCentredPosition moves to each given position in order.
	MoveToCentredPosition(ctx context.Context, positions []Positions) error

	// StartAutoCentring runs the automatic procedure. A nil result with a
	// nil error means the procedure finished without a centred position.
	StartAutoCentring(ctx context.Context) (Positions, error)
	// Start3ClickCentring begins a click-driven procedure.
	Start3ClickCentring(ctx context.Context) error
	// ImageClicked feeds one click (image coordinates) to the procedure.
	ImageClicked(ctx context.Context, x, y float64) error

	// SetEventHandler registers the receiver of hardware events.
	SetEventHandler(h EventHandler)
}

// Camera is the sample camera.
type Camera interface {
	// Init starts acquisition. Frames are delivered to the frame handler.
	Init(ctx context.Context) error
	// Stop halts acquisition.
	Stop(ctx context.Context) error
	// Snapshot returns one JPEG frame.
	Snapshot(ctx context.Context) ([]byte, error)
	// SetFrameHandler registers the receiver of frames.
	SetFrameHandler(h FrameHandler)
}
