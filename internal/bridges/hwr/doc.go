// Package hwr connects the centring core to the external
// hardware-abstraction daemon that drives the diffractometer and camera.
//
// The link is MQTT. Every hardware call is a request/response pair:
//
//	core   → {prefix}/request/{method}   {"id": "...", "method": "motor.move", "params": {...}}
//	daemon → {prefix}/response/{id}      {"id": "...", "ok": true, "result": {...}}
//
// Responses are correlated by id and a call fails with
// diffractometer.ErrHardwareUnavailable when no answer arrives within the
// request timeout. The daemon also pushes unsolicited traffic:
//
//	{prefix}/state/{role}    motor state and position changes (JSON)
//	{prefix}/camera/frame    raw JPEG frames while acquisition is running
//
// Bridge implements both diffractometer.Diffractometer and
// diffractometer.Camera.
package hwr
