package diffractometer

import (
	"bytes"
	"context"
	"image/jpeg"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		id      string
		want    Role
		wantErr bool
	}{
		{id: "Kappa", want: RoleKappa},
		{id: "omega", want: RoleOmega},
		{id: "PHI", want: RolePhi},
		{id: "zoom", want: RoleZoom},
		{id: "BackLight", want: RoleBacklight},
		{id: "light", want: RoleLight},
		{id: "chi", wantErr: true},
		{id: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ParseRole(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMotorID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimulator_MoveMotor(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	var log eventLog
	sim.SetEventHandler(log.handle)

	require.NoError(t, sim.MoveMotor(ctx, RolePhi, 12.5))

	pos, err := sim.MotorPosition(ctx, RolePhi)
	require.NoError(t, err)
	assert.Equal(t, 12.5, pos)

	state, err := sim.MotorState(ctx, RolePhi)
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)

	assert.Equal(t, []string{EventMotorState, EventMotorMoved, EventMotorState}, log.types())
}

func TestSimulator_MoveMotorRejects(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	assert.ErrorIs(t, sim.MoveMotor(ctx, RoleZoom, 1), ErrInvalidMotorID)
	assert.ErrorIs(t, sim.MoveMotor(ctx, RoleKappa, math.NaN()), ErrMalformedInput)

	sim.SetOffline(true)
	assert.ErrorIs(t, sim.MoveMotor(ctx, RoleKappa, 1), ErrHardwareUnavailable)
}

func TestSimulator_Zoom(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	require.NoError(t, sim.MoveZoom(ctx, "Zoom 4"))
	level, err := sim.ZoomLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Zoom 4", level)

	assert.ErrorIs(t, sim.MoveZoom(ctx, "Zoom 42"), ErrMalformedInput)

	saved, err := sim.SaveCurrentPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, saved["zoom"])
}

func TestSimulator_Backlight(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	state, err := sim.BacklightState(ctx)
	require.NoError(t, err)
	assert.Equal(t, BacklightOut, state)

	require.NoError(t, sim.SetBacklight(ctx, true))
	state, err = sim.BacklightState(ctx)
	require.NoError(t, err)
	assert.Equal(t, BacklightIn, state)

	require.NoError(t, sim.SetLight(ctx, 1))
	assert.Equal(t, 1.0, sim.Light())
}

func TestSimulator_SaveAndMoveToCentredPosition(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	require.NoError(t, sim.MoveMotor(ctx, RolePhi, 0.34))
	saved, err := sim.SaveCurrentPosition(ctx)
	require.NoError(t, err)

	require.NoError(t, sim.MoveMotor(ctx, RolePhi, 90))
	require.NoError(t, sim.MoveToCentredPosition(ctx, []Positions{saved}))
	assert.Equal(t, 0.34, sim.Motor("phi"))

	err = sim.MoveToCentredPosition(ctx, []Positions{{"chi": 1}})
	assert.ErrorIs(t, err, ErrInvalidMotorID)

	assert.ErrorIs(t, sim.MoveToCentredPosition(ctx, nil), ErrMalformedInput)
}

func TestSimulator_SavedPositionIsACopy(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	saved, err := sim.SaveCurrentPosition(ctx)
	require.NoError(t, err)
	saved["phi"] = 99

	assert.Equal(t, 0.0, sim.Motor("phi"))
}

func TestSimulator_AutoCentring(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	pos, err := sim.StartAutoCentring(ctx)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 0.0, pos["sampx"])
	assert.Equal(t, 0.0, pos["sampy"])

	sim.SetAutoCentringFails(true)
	pos, err = sim.StartAutoCentring(ctx)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestSimulator_ThreeClickCentring(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	var log eventLog
	sim.SetEventHandler(log.handle)

	require.NoError(t, sim.Start3ClickCentring(ctx))
	for i := 0; i < 3; i++ {
		require.NoError(t, sim.ImageClicked(ctx, simFrameWidth/2, simFrameHeight/2))
	}

	types := log.types()
	assert.Equal(t, EventCentringStarted, types[0])
	assert.Equal(t, EventCentringCompleted, types[len(types)-1])
	assert.Equal(t, 180.0, sim.Motor("omega"))

	// Clicks outside a procedure are ignored.
	require.NoError(t, sim.ImageClicked(ctx, 10, 10))
	assert.Equal(t, 180.0, sim.Motor("omega"))
}

func TestSimulator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulator().SaveCurrentPosition(ctx)
	assert.ErrorIs(t, err, ErrHardwareUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedCamera_Frames(t *testing.T) {
	cam := NewSimulatedCamera(NewSimulator(), 50, 70)

	frames := make(chan []byte, 8)
	cam.SetFrameHandler(func(data []byte, w, h int) {
		assert.Equal(t, simFrameWidth, w)
		assert.Equal(t, simFrameHeight, h)
		select {
		case frames <- append([]byte(nil), data...):
		default:
		}
	})

	require.NoError(t, cam.Init(context.Background()))
	require.NoError(t, cam.Init(context.Background()))
	assert.True(t, cam.Running())

	select {
	case data := <-frames:
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, simFrameWidth, cfg.Width)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame within 2s")
	}

	require.NoError(t, cam.Stop(context.Background()))
	assert.False(t, cam.Running())
	require.NoError(t, cam.Stop(context.Background()))
}

func TestSimulatedCamera_Snapshot(t *testing.T) {
	cam := NewSimulatedCamera(NewSimulator(), 10, 80)

	data, err := cam.Snapshot(context.Background())
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	cam.SetOffline(true)
	_, err = cam.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrHardwareUnavailable)
	assert.ErrorIs(t, cam.Init(context.Background()), ErrHardwareUnavailable)
}
