// Package diffractometer defines the hardware collaborators the sample
// centring core drives: the diffractometer (motors, zoom, backlight,
// centring procedures) and the sample camera.
//
// Two implementations exist. bridges/hwr talks to the external
// hardware-abstraction daemon over MQTT; Simulator is an in-process rig
// used for development and tests.
//
// All methods take a context and return errors wrapping the sentinels in
// errors.go, so callers can tell an unreachable rig from a bad motor id.
package diffractometer
