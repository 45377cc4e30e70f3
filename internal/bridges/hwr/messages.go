package hwr

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
)

// Request methods understood by the daemon.
const (
	MethodMotorMove      = "motor.move"
	MethodMotorPosition  = "motor.position"
	MethodMotorState     = "motor.state"
	MethodZoomMove       = "zoom.move"
	MethodZoomLevel      = "zoom.level"
	MethodBacklightSet   = "backlight.set"
	MethodBacklightState = "backlight.state"
	MethodLightSet       = "light.set"
	MethodSavePosition   = "centring.save"
	MethodMoveToCentred  = "centring.move"
	MethodAutoCentring   = "centring.auto"
	MethodStart3Click    = "centring.start3click"
	MethodImageClicked   = "centring.click"
	MethodCameraInit     = "camera.init"
	MethodCameraStop     = "camera.stop"
	MethodCameraSnapshot = "camera.snapshot"
)

// Error codes returned by the daemon.
const (
	CodeInvalidMotor   = "invalid_motor"
	CodeMalformedInput = "malformed_input"
	CodeHardwareFault  = "hardware_fault"
)

// RequestMessage is published on {prefix}/request/{method}.
type RequestMessage struct {
	ID        string         `json:"id"`
	Method    string         `json:"method"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ResponseMessage is received on {prefix}/response/{id}.
type ResponseMessage struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

// ResponseError describes a failed call.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// err maps a failed response onto the diffractometer error sentinels.
func (r ResponseMessage) err(method string) error {
	if r.OK {
		return nil
	}
	if r.Error == nil {
		return fmt.Errorf("%w: %s failed", diffractometer.ErrHardwareUnavailable, method)
	}
	var base error
	switch r.Error.Code {
	case CodeInvalidMotor:
		base = diffractometer.ErrInvalidMotorID
	case CodeMalformedInput:
		base = diffractometer.ErrMalformedInput
	default:
		base = diffractometer.ErrHardwareUnavailable
	}
	return fmt.Errorf("%w: %s: %s", base, method, r.Error.Message)
}

// StateMessage is received on {prefix}/state/{role}.
// An empty Type is treated as a motor state change.
type StateMessage struct {
	Type string         `json:"type,omitempty"`
	Data map[string]any `json:"data,omitempty"`
	Time time.Time      `json:"timestamp"`
}

// Result payloads.
type (
	positionResult struct {
		Position float64 `json:"position"`
	}
	stateResult struct {
		State string `json:"state"`
	}
	levelResult struct {
		Level string `json:"level"`
	}
	positionsResult struct {
		Positions diffractometer.Positions `json:"positions"`
	}
	snapshotResult struct {
		Image []byte `json:"image"` // base64 in JSON
	}
)
