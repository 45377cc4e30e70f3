// Package mqtt provides the MQTT client used to reach the
// hardware-abstraction daemon that owns the diffractometer and camera.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
//	samplecentring core ↔ MQTT broker ↔ hardware daemon (motors, camera)
//
// See Topics for the topic hierarchy.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(ctx, client.Topics().AllMotorStates(), 1,
//	    func(topic string, payload []byte) error {
//	        role := mqtt.LastSegment(topic)
//	        ...
//	    })
package mqtt
