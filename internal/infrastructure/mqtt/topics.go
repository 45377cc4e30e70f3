package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "samplecentring"

// Topics builds the topic hierarchy shared with the hardware-abstraction daemon.
//
//	{prefix}/request/{method}    core → daemon, JSON request envelope
//	{prefix}/response/{id}       daemon → core, JSON response envelope
//	{prefix}/state/{role}        daemon → core, motor state change
//	{prefix}/camera/frame        daemon → core, raw JPEG bytes
//	{prefix}/system/status       core online/offline (retained, LWT)
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

// NewTopics returns a builder rooted at prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimRight(prefix, "/")}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Request returns the topic a hardware method call is published on.
//
// Example: samplecentring/request/motor.move
func (t Topics) Request(method string) string {
	return fmt.Sprintf("%s/request/%s", t.root(), method)
}

// Response returns the topic the daemon answers request id on.
//
// Example: samplecentring/response/6f1c...
func (t Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", t.root(), requestID)
}

// AllResponses matches every response topic.
//
// Pattern: samplecentring/response/+
func (t Topics) AllResponses() string {
	return fmt.Sprintf("%s/response/+", t.root())
}

// MotorState returns the state topic for one motor role.
//
// Example: samplecentring/state/omega
func (t Topics) MotorState(role string) string {
	return fmt.Sprintf("%s/state/%s", t.root(), role)
}

// AllMotorStates matches every motor state topic.
//
// Pattern: samplecentring/state/+
func (t Topics) AllMotorStates() string {
	return fmt.Sprintf("%s/state/+", t.root())
}

// CameraFrame returns the topic camera frames are published on.
//
// Example: samplecentring/camera/frame
func (t Topics) CameraFrame() string {
	return fmt.Sprintf("%s/camera/frame", t.root())
}

// SystemStatus returns the core status topic.
//
// Example: samplecentring/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// LastSegment returns the part of topic after the final slash.
// Used to recover the request id or motor role from a wildcard match.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
