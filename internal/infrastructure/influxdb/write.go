package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementMotor    = "motor_position"
	measurementCentring = "centring_event"
	measurementRelay    = "frame_relay"
)

// WriteMotorPosition records a motor position after a successful move.
//
//	motor_position,beamline=bl-001,motor=omega position=90.0
func (c *Client) WriteMotorPosition(motor string, position float64) {
	c.writePoint(measurementMotor,
		map[string]string{"motor": motor},
		map[string]any{"position": position},
		time.Now(),
	)
}

// WriteCentringEvent records a registry or centring procedure action
// ("save", "move", "startauto", ...). name is the position name, if any.
func (c *Client) WriteCentringEvent(action, name string, ok bool) {
	tags := map[string]string{"action": action}
	if name != "" {
		tags["position"] = name
	}
	c.writePoint(measurementCentring, tags, map[string]any{"ok": ok}, time.Now())
}

// WriteRelayStats records frame relay counters sampled at ts.
func (c *Client) WriteRelayStats(published, dropped uint64, subscribers int, ts time.Time) {
	c.writePoint(measurementRelay, nil, map[string]any{
		"published":   published,
		"dropped":     dropped,
		"subscribers": subscribers,
	}, ts)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	all := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		all[k] = v
	}
	if c.beamline != "" {
		all["beamline"] = c.beamline
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, all, fields, ts))
	c.points.Add(1)
}
