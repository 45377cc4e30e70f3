package hwr

import (
	"context"
	"fmt"

	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
)

var (
	_ diffractometer.Diffractometer = (*Bridge)(nil)
	_ diffractometer.Camera         = (*Bridge)(nil)
)

// MoveMotor implements diffractometer.Diffractometer.
func (b *Bridge) MoveMotor(ctx context.Context, role diffractometer.Role, position float64) error {
	return b.call(ctx, MethodMotorMove, map[string]any{"role": role, "position": position}, nil)
}

// MotorPosition implements diffractometer.Diffractometer.
func (b *Bridge) MotorPosition(ctx context.Context, role diffractometer.Role) (float64, error) {
	var res positionResult
	if err := b.call(ctx, MethodMotorPosition, map[string]any{"role": role}, &res); err != nil {
		return 0, err
	}
	return res.Position, nil
}

// MotorState implements diffractometer.Diffractometer.
func (b *Bridge) MotorState(ctx context.Context, role diffractometer.Role) (string, error) {
	var res stateResult
	if err := b.call(ctx, MethodMotorState, map[string]any{"role": role}, &res); err != nil {
		return "", err
	}
	return res.State, nil
}

// MoveZoom implements diffractometer.Diffractometer.
func (b *Bridge) MoveZoom(ctx context.Context, level string) error {
	return b.call(ctx, MethodZoomMove, map[string]any{"level": level}, nil)
}

// ZoomLevel implements diffractometer.Diffractometer.
func (b *Bridge) ZoomLevel(ctx context.Context) (string, error) {
	var res levelResult
	if err := b.call(ctx, MethodZoomLevel, nil, &res); err != nil {
		return "", err
	}
	return res.Level, nil
}

// SetBacklight implements diffractometer.Diffractometer.
func (b *Bridge) SetBacklight(ctx context.Context, in bool) error {
	return b.call(ctx, MethodBacklightSet, map[string]any{"in": in}, nil)
}

// BacklightState implements diffractometer.Diffractometer.
func (b *Bridge) BacklightState(ctx context.Context) (string, error) {
	var res stateResult
	if err := b.call(ctx, MethodBacklightState, nil, &res); err != nil {
		return "", err
	}
	return res.State, nil
}

// SetLight implements diffractometer.Diffractometer.
func (b *Bridge) SetLight(ctx context.Context, level float64) error {
	return b.call(ctx, MethodLightSet, map[string]any{"level": level}, nil)
}

// SaveCurrentPosition implements diffractometer.Diffractometer.
func (b *Bridge) SaveCurrentPosition(ctx context.Context) (diffractometer.Positions, error) {
	var res positionsResult
	if err := b.call(ctx, MethodSavePosition, nil, &res); err != nil {
		return nil, err
	}
	if len(res.Positions) == 0 {
		return nil, fmt.Errorf("%w: %w: %s returned no motors", diffractometer.ErrHardwareUnavailable, ErrInvalidResponse, MethodSavePosition)
	}
	return res.Positions, nil
}

// MoveToCentredPosition implements diffractometer.Diffractometer.
func (b *Bridge) MoveToCentredPosition(ctx context.Context, positions []diffractometer.Positions) error {
	return b.call(ctx, MethodMoveToCentred, map[string]any{"positions": positions}, nil)
}

// StartAutoCentring implements diffractometer.Diffractometer. A null or
// empty positions result means no centred position was found.
func (b *Bridge) StartAutoCentring(ctx context.Context) (diffractometer.Positions, error) {
	var res positionsResult
	if err := b.call(ctx, MethodAutoCentring, nil, &res); err != nil {
		return nil, err
	}
	if len(res.Positions) == 0 {
		return nil, nil
	}
	return res.Positions, nil
}

// Start3ClickCentring implements diffractometer.Diffractometer.
func (b *Bridge) Start3ClickCentring(ctx context.Context) error {
	return b.call(ctx, MethodStart3Click, nil, nil)
}

// ImageClicked implements diffractometer.Diffractometer.
func (b *Bridge) ImageClicked(ctx context.Context, x, y float64) error {
	return b.call(ctx, MethodImageClicked, map[string]any{"x": x, "y": y}, nil)
}

// Init implements diffractometer.Camera. Frames then arrive on the camera
// frame topic.
func (b *Bridge) Init(ctx context.Context) error {
	return b.call(ctx, MethodCameraInit, nil, nil)
}

// Stop implements diffractometer.Camera. It halts acquisition only; use
// Close to shut the bridge down.
func (b *Bridge) Stop(ctx context.Context) error {
	return b.call(ctx, MethodCameraStop, nil, nil)
}

// Snapshot implements diffractometer.Camera.
func (b *Bridge) Snapshot(ctx context.Context) ([]byte, error) {
	var res snapshotResult
	if err := b.call(ctx, MethodCameraSnapshot, nil, &res); err != nil {
		return nil, err
	}
	return res.Image, nil
}
