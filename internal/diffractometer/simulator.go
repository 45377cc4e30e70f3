package diffractometer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Motor names held by the simulated rig. Saved centred positions carry
// all of them.
var simulatedMotors = []string{
	"focus", "kappa", "kappa_phi", "omega", "phi", "phiy", "phiz", "sampx", "sampy",
}

// DefaultZoomLevels are the named zoom positions of the simulated rig.
var DefaultZoomLevels = []string{
	"Zoom 1", "Zoom 2", "Zoom 3", "Zoom 4", "Zoom 5",
	"Zoom 6", "Zoom 7", "Zoom 8", "Zoom 9", "Zoom 10",
}

// Pixels per motor unit used when converting a click offset into a sample
// translation.
const simPixelsPerUnit = 400.0

// Simulator is an in-process diffractometer. Moves complete immediately;
// each move emits a MOVING and a READY state event plus a position event.
// The zero value is not usable, use NewSimulator.
type Simulator struct {
	mu          sync.Mutex
	motors      map[string]float64
	states      map[Role]string
	zoomLevels  []string
	zoom        int
	backlightIn bool
	light       float64
	offline     bool
	autoFails   bool
	threeClick  bool
	clicks      int
	imageW      float64
	imageH      float64
	handler     EventHandler
	now         func() time.Time
}

// NewSimulator returns a rig at its home position with the default zoom levels.
func NewSimulator() *Simulator {
	s := &Simulator{
		motors:     make(map[string]float64, len(simulatedMotors)),
		states:     map[Role]string{RoleKappa: StateReady, RoleOmega: StateReady, RolePhi: StateReady},
		zoomLevels: DefaultZoomLevels,
		imageW:     simFrameWidth,
		imageH:     simFrameHeight,
		now:        time.Now,
	}
	for _, m := range simulatedMotors {
		s.motors[m] = 0
	}
	// Start off-centre so centring has something to do.
	s.motors["sampx"] = 0.12
	s.motors["sampy"] = -0.08
	return s
}

// SetOffline makes every call fail with ErrHardwareUnavailable while set.
func (s *Simulator) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

// SetAutoCentringFails makes StartAutoCentring finish without a position.
func (s *Simulator) SetAutoCentringFails(fails bool) {
	s.mu.Lock()
	s.autoFails = fails
	s.mu.Unlock()
}

// SetEventHandler implements Diffractometer.
func (s *Simulator) SetEventHandler(h EventHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Motor returns a raw motor value, for tests and the simulated camera.
func (s *Simulator) Motor(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motors[name]
}

// Light returns the current light level.
func (s *Simulator) Light() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.light
}

// MoveMotor implements Diffractometer.
func (s *Simulator) MoveMotor(ctx context.Context, role Role, position float64) error {
	if !role.IsContinuous() {
		return fmt.Errorf("%w: %q is not a continuous motor", ErrInvalidMotorID, role)
	}
	if math.IsNaN(position) || math.IsInf(position, 0) {
		return fmt.Errorf("%w: position %v", ErrMalformedInput, position)
	}

	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.motors[string(role)] = position
	events := s.moveEvents(role, position)
	s.mu.Unlock()

	s.emit(events...)
	return nil
}

// MotorPosition implements Diffractometer.
func (s *Simulator) MotorPosition(ctx context.Context, role Role) (float64, error) {
	if !role.IsContinuous() {
		return 0, fmt.Errorf("%w: %q has no position", ErrInvalidMotorID, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return s.motors[string(role)], nil
}

// MotorState implements Diffractometer.
func (s *Simulator) MotorState(ctx context.Context, role Role) (string, error) {
	if !role.IsContinuous() {
		return "", fmt.Errorf("%w: %q has no state", ErrInvalidMotorID, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return "", err
	}
	return s.states[role], nil
}

// MoveZoom implements Diffractometer.
func (s *Simulator) MoveZoom(ctx context.Context, level string) error {
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	idx := -1
	for i, l := range s.zoomLevels {
		if l == level {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: unknown zoom level %q", ErrMalformedInput, level)
	}
	s.zoom = idx
	ev := s.event(EventMotorMoved, RoleZoom, map[string]any{"position": level})
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// ZoomLevel implements Diffractometer.
func (s *Simulator) ZoomLevel(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return "", err
	}
	return s.zoomLevels[s.zoom], nil
}

// SetBacklight implements Diffractometer.
func (s *Simulator) SetBacklight(ctx context.Context, in bool) error {
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.backlightIn = in
	ev := s.event(EventMotorState, RoleBacklight, map[string]any{"state": backlightState(in)})
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// BacklightState implements Diffractometer.
func (s *Simulator) BacklightState(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return "", err
	}
	return backlightState(s.backlightIn), nil
}

// SetLight implements Diffractometer.
func (s *Simulator) SetLight(ctx context.Context, level float64) error {
	if math.IsNaN(level) || level < 0 {
		return fmt.Errorf("%w: light level %v", ErrMalformedInput, level)
	}
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.light = level
	ev := s.event(EventMotorMoved, RoleLight, map[string]any{"position": level})
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// SaveCurrentPosition implements Diffractometer.
func (s *Simulator) SaveCurrentPosition(ctx context.Context) (Positions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.snapshotLocked(), nil
}

// MoveToCentredPosition implements Diffractometer. Keys are motor names;
// "zoom" is a 1-based level index.
func (s *Simulator) MoveToCentredPosition(ctx context.Context, positions []Positions) error {
	if len(positions) == 0 {
		return fmt.Errorf("%w: no positions given", ErrMalformedInput)
	}

	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, p := range positions {
		for name := range p {
			if _, ok := s.motors[name]; !ok && name != "zoom" {
				s.mu.Unlock()
				return fmt.Errorf("%w: %q", ErrInvalidMotorID, name)
			}
		}
	}

	var events []Event
	for _, p := range positions {
		for _, name := range sortedKeys(p) {
			v := p[name]
			if name == "zoom" {
				s.zoom = s.zoomIndex(v)
				events = append(events, s.event(EventMotorMoved, RoleZoom, map[string]any{"position": s.zoomLevels[s.zoom]}))
				continue
			}
			s.motors[name] = v
			if r := Role(name); r.IsContinuous() {
				events = append(events, s.moveEvents(r, v)...)
			}
		}
	}
	s.mu.Unlock()

	s.emit(events...)
	return nil
}

// StartAutoCentring implements Diffractometer. The simulated procedure
// translates the sample onto the rotation axis.
func (s *Simulator) StartAutoCentring(ctx context.Context) (Positions, error) {
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	started := s.event(EventCentringStarted, "", map[string]any{"method": "auto"})
	if s.autoFails {
		failed := s.event(EventCentringFailed, "", map[string]any{"method": "auto"})
		s.mu.Unlock()
		s.emit(started, failed)
		return nil, nil
	}
	s.motors["sampx"] = 0
	s.motors["sampy"] = 0
	pos := s.snapshotLocked()
	done := s.event(EventCentringCompleted, "", map[string]any{"method": "auto"})
	s.mu.Unlock()

	s.emit(started, done)
	return pos, nil
}

// Start3ClickCentring implements Diffractometer.
func (s *Simulator) Start3ClickCentring(ctx context.Context) error {
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.threeClick = true
	s.clicks = 0
	ev := s.event(EventCentringStarted, "", map[string]any{"method": "3click"})
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// ImageClicked implements Diffractometer. During a 3-click procedure each
// click nudges the sample towards the image centre and turns omega by 90
// degrees; the third click completes the procedure. Outside a procedure
// clicks are accepted and ignored.
func (s *Simulator) ImageClicked(ctx context.Context, x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) {
		return fmt.Errorf("%w: click (%v, %v)", ErrMalformedInput, x, y)
	}
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.threeClick {
		s.mu.Unlock()
		return nil
	}

	s.clicks++
	s.motors["sampx"] -= (x - s.imageW/2) / simPixelsPerUnit
	s.motors["sampy"] -= (y - s.imageH/2) / simPixelsPerUnit
	events := []Event{s.event(EventCentringClicked, "", map[string]any{"x": x, "y": y, "click": s.clicks})}
	if s.clicks < 3 {
		omega := math.Mod(s.motors["omega"]+90, 360)
		s.motors["omega"] = omega
		events = append(events, s.moveEvents(RoleOmega, omega)...)
	} else {
		s.threeClick = false
		s.clicks = 0
		events = append(events, s.event(EventCentringCompleted, "", map[string]any{"method": "3click"}))
	}
	s.mu.Unlock()

	s.emit(events...)
	return nil
}

func (s *Simulator) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrHardwareUnavailable, err)
	}
	if s.offline {
		return fmt.Errorf("%w: simulator offline", ErrHardwareUnavailable)
	}
	return nil
}

func (s *Simulator) snapshotLocked() Positions {
	p := make(Positions, len(s.motors)+1)
	for k, v := range s.motors {
		p[k] = v
	}
	p["zoom"] = float64(s.zoom + 1)
	return p
}

func (s *Simulator) zoomIndex(v float64) int {
	idx := int(math.Round(v)) - 1
	if idx < 0 {
		return 0
	}
	if idx >= len(s.zoomLevels) {
		return len(s.zoomLevels) - 1
	}
	return idx
}

func (s *Simulator) moveEvents(role Role, position float64) []Event {
	return []Event{
		s.event(EventMotorState, role, map[string]any{"state": StateMoving}),
		s.event(EventMotorMoved, role, map[string]any{"position": position}),
		s.event(EventMotorState, role, map[string]any{"state": StateReady}),
	}
}

func (s *Simulator) event(typ string, role Role, data map[string]any) Event {
	return Event{Type: typ, Role: role, Data: data, Timestamp: s.now().UTC()}
}

// emit delivers events to the handler. Called without s.mu held.
func (s *Simulator) emit(events ...Event) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}
	for _, ev := range events {
		h(ev)
	}
}

func backlightState(in bool) string {
	if in {
		return BacklightIn
	}
	return BacklightOut
}

func sortedKeys(p Positions) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
