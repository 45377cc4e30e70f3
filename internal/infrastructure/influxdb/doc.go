// Package influxdb records rig telemetry in InfluxDB v2.
//
// Three measurements are written, each tagged with the beamline id:
//   - motor_position: position after every successful move
//   - centring_event: save, move-to, rename, delete and procedure starts
//   - frame_relay: published/dropped frame counters and subscriber count
//
// Writes are non-blocking and batched (batch_size, flush_interval). Errors
// surface through SetOnError. Methods on a nil *Client are no-ops, so
// callers do not need to branch on influxdb.enabled.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Beamline.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMotorPosition("omega", 90)
package influxdb
