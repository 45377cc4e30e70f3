package centring

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/samplecentring-core/internal/camera"
	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Telemetry receives motor moves and centring actions for time-series
// storage. influxdb.Client satisfies it.
type Telemetry interface {
	WriteMotorPosition(motor string, position float64)
	WriteCentringEvent(action, name string, ok bool)
}

type noopTelemetry struct{}

func (noopTelemetry) WriteMotorPosition(string, float64)     {}
func (noopTelemetry) WriteCentringEvent(string, string, bool) {}

// Deps holds the collaborators of a Service. Rig, Camera and Relay are
// required.
type Deps struct {
	Rig       diffractometer.Diffractometer
	Camera    diffractometer.Camera
	Relay     *camera.Relay
	Snapshots *camera.SnapshotWriter
}

// Service implements the sample centring operations.
type Service struct {
	rig       diffractometer.Diffractometer
	cam       diffractometer.Camera
	relay     *camera.Relay
	snapshots *camera.SnapshotWriter
	positions *Registry
	clicks    ClickBuffer
	logger    Logger
	telemetry Telemetry
}

// NewService creates a Service with an empty registry.
func NewService(deps Deps) *Service {
	return &Service{
		rig:       deps.Rig,
		cam:       deps.Camera,
		relay:     deps.Relay,
		snapshots: deps.Snapshots,
		positions: NewRegistry(),
		logger:    noopLogger{},
		telemetry: noopTelemetry{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetTelemetry sets the telemetry sink. A nil sink disables telemetry.
func (s *Service) SetTelemetry(t Telemetry) {
	if t == nil {
		t = noopTelemetry{}
	}
	s.telemetry = t
}

// Positions returns the registry of saved positions.
func (s *Service) Positions() *Registry {
	return s.positions
}

// Relay returns the frame relay.
func (s *Service) Relay() *camera.Relay {
	return s.relay
}

// --- Camera ---

// SubscribeCamera starts camera acquisition and opens a frame subscription.
// The caller must Close the subscription.
func (s *Service) SubscribeCamera(ctx context.Context) (*camera.Subscription, error) {
	if err := s.cam.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialising camera: %w", err)
	}
	return s.relay.Subscribe(), nil
}

// UnsubscribeCamera ends every open stream and stops acquisition. It
// returns the number of streams closed; the streams are closed even when
// stopping the camera fails.
func (s *Service) UnsubscribeCamera(ctx context.Context) (int, error) {
	n := s.relay.CloseAll()
	if err := s.cam.Stop(ctx); err != nil {
		return n, fmt.Errorf("stopping camera: %w", err)
	}
	return n, nil
}

// TakeSnapshot writes one camera frame to the snapshot directory and
// returns its path.
func (s *Service) TakeSnapshot(ctx context.Context) (string, error) {
	if s.snapshots == nil {
		return "", fmt.Errorf("%w: no snapshot directory configured", diffractometer.ErrHardwareUnavailable)
	}
	data, err := s.cam.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("taking snapshot: %w", err)
	}
	path, err := s.snapshots.Write(data)
	if err != nil {
		return "", err
	}
	s.logger.Info("snapshot written", "path", path, "bytes", len(data))
	return path, nil
}

// --- Motors ---

// Move moves the moveable identified by id to newpos. The zoom takes a
// level name; the backlight takes an integer, non-zero meaning in (with the
// light on); every other role takes a float.
func (s *Service) Move(ctx context.Context, id, newpos string) error {
	role, err := diffractometer.ParseRole(id)
	if err != nil {
		return err
	}
	newpos = strings.TrimSpace(newpos)

	switch role {
	case diffractometer.RoleZoom:
		if newpos == "" {
			return fmt.Errorf("%w: empty zoom level", diffractometer.ErrMalformedInput)
		}
		if err := s.rig.MoveZoom(ctx, newpos); err != nil {
			return fmt.Errorf("moving zoom: %w", err)
		}
		return nil

	case diffractometer.RoleBacklight:
		v, err := strconv.Atoi(newpos)
		if err != nil {
			return fmt.Errorf("%w: backlight position %q", diffractometer.ErrMalformedInput, newpos)
		}
		in := v != 0
		if err := s.rig.SetBacklight(ctx, in); err != nil {
			return fmt.Errorf("moving backlight: %w", err)
		}
		level := 0.0
		if in {
			level = 1
		}
		if err := s.rig.SetLight(ctx, level); err != nil {
			return fmt.Errorf("setting light: %w", err)
		}
		return nil
	}

	pos, err := strconv.ParseFloat(newpos, 64)
	if err != nil {
		return fmt.Errorf("%w: position %q for %s", diffractometer.ErrMalformedInput, newpos, role)
	}
	if role == diffractometer.RoleLight {
		if err := s.rig.SetLight(ctx, pos); err != nil {
			return fmt.Errorf("setting light: %w", err)
		}
		return nil
	}
	if err := s.rig.MoveMotor(ctx, role, pos); err != nil {
		return fmt.Errorf("moving %s: %w", role, err)
	}
	s.telemetry.WriteMotorPosition(string(role), pos)
	return nil
}

// MotorStatus returns the status of one moveable.
func (s *Service) MotorStatus(ctx context.Context, id string) (diffractometer.MotorStatus, error) {
	role, err := diffractometer.ParseRole(id)
	if err != nil {
		return diffractometer.MotorStatus{}, err
	}
	return s.status(ctx, role)
}

// Status returns the status of every reported moveable, keyed by display
// name. The first hardware error aborts the call.
func (s *Service) Status(ctx context.Context) (map[string]diffractometer.MotorStatus, error) {
	out := make(map[string]diffractometer.MotorStatus, len(diffractometer.StatusRoles))
	for _, r := range diffractometer.StatusRoles {
		st, err := s.status(ctx, r.Role)
		if err != nil {
			return nil, err
		}
		out[r.Name] = st
	}
	return out, nil
}

func (s *Service) status(ctx context.Context, role diffractometer.Role) (diffractometer.MotorStatus, error) {
	switch role {
	case diffractometer.RoleZoom:
		level, err := s.rig.ZoomLevel(ctx)
		if err != nil {
			return diffractometer.MotorStatus{}, fmt.Errorf("reading zoom: %w", err)
		}
		return diffractometer.MotorStatus{Status: diffractometer.ZoomStatusUnknown, Position: level}, nil

	case diffractometer.RoleLight, diffractometer.RoleBacklight:
		state, err := s.rig.BacklightState(ctx)
		if err != nil {
			return diffractometer.MotorStatus{}, fmt.Errorf("reading backlight: %w", err)
		}
		return diffractometer.MotorStatus{Status: state, Position: state}, nil
	}

	pos, err := s.rig.MotorPosition(ctx, role)
	if err != nil {
		return diffractometer.MotorStatus{}, fmt.Errorf("reading %s position: %w", role, err)
	}
	state, err := s.rig.MotorState(ctx, role)
	if err != nil {
		return diffractometer.MotorStatus{}, fmt.Errorf("reading %s state: %w", role, err)
	}
	return diffractometer.MotorStatus{Status: state, Position: pos}, nil
}

// --- Centring procedures ---

// AddClick records an image click in the ring buffer.
func (s *Service) AddClick(c Click) {
	s.clicks.Push(c)
}

// Clicks returns the buffered clicks, oldest first.
func (s *Service) Clicks() []Click {
	return s.clicks.Clicks()
}

// StartAutoCentring runs automatic centring. It returns
// ErrNoCentredPosition if the procedure produced no position.
func (s *Service) StartAutoCentring(ctx context.Context) (diffractometer.Positions, error) {
	pos, err := s.rig.StartAutoCentring(ctx)
	if err != nil {
		s.telemetry.WriteCentringEvent("startauto", "", false)
		return nil, fmt.Errorf("automatic centring: %w", err)
	}
	if pos == nil {
		s.telemetry.WriteCentringEvent("startauto", "", false)
		return nil, ErrNoCentredPosition
	}
	s.telemetry.WriteCentringEvent("startauto", "", true)
	return pos, nil
}

// Start3ClickCentring begins click-driven centring and clears the click
// buffer.
func (s *Service) Start3ClickCentring(ctx context.Context) error {
	if err := s.rig.Start3ClickCentring(ctx); err != nil {
		return fmt.Errorf("starting 3-click centring: %w", err)
	}
	s.clicks.Reset()
	s.telemetry.WriteCentringEvent("start3click", "", true)
	return nil
}

// ImageClicked forwards a click to the running centring procedure.
func (s *Service) ImageClicked(ctx context.Context, c Click) error {
	if err := s.rig.ImageClicked(ctx, c.X, c.Y); err != nil {
		return fmt.Errorf("forwarding click: %w", err)
	}
	return nil
}

// --- Saved positions ---

// Save snapshots the current motor positions into the registry and returns
// the generated name.
func (s *Service) Save(ctx context.Context) (string, error) {
	pos, err := s.rig.SaveCurrentPosition(ctx)
	if err != nil {
		s.telemetry.WriteCentringEvent("save", "", false)
		return "", fmt.Errorf("saving current position: %w", err)
	}
	name := s.positions.Add(pos)
	s.telemetry.WriteCentringEvent("save", name, true)
	s.logger.Debug("centred position saved", "name", name, "motors", len(pos))
	return name, nil
}

// Delete removes every saved position named name. A missing name is not
// an error.
func (s *Service) Delete(name string) int {
	n := s.positions.Delete(name)
	s.telemetry.WriteCentringEvent("delete", name, true)
	return n
}

// Rename renames every saved position named oldName. An empty newName is
// stored as is.
func (s *Service) Rename(oldName, newName string) int {
	n := s.positions.Rename(oldName, newName)
	s.telemetry.WriteCentringEvent("rename", newName, true)
	return n
}

// MoveTo moves the rig to the saved positions named name, in registry order.
func (s *Service) MoveTo(ctx context.Context, name string) error {
	entries := s.positions.Lookup(name)
	if len(entries) == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	targets := make([]diffractometer.Positions, len(entries))
	for i, e := range entries {
		targets[i] = e.MotorPositions
	}
	if err := s.rig.MoveToCentredPosition(ctx, targets); err != nil {
		s.telemetry.WriteCentringEvent("move", name, false)
		return fmt.Errorf("moving to %q: %w", name, err)
	}
	s.telemetry.WriteCentringEvent("move", name, true)
	return nil
}
