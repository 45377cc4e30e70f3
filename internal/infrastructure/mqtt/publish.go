package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum outbound payload size (1MB). Requests to the daemon are small JSON
// envelopes; frames only ever flow inbound.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic and waits for the broker to acknowledge it
// (QoS 1/2) or for the message to be written (QoS 0).
//
// The wait ends at the earlier of ctx and defaultPublishTimeout.
//
//	topic := client.Topics().Request("motor.move")
//	err := client.Publish(ctx, topic, envelope, 1, false)
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(ctx, c.client.Publish(topic, qos, retained, payload), ErrPublishFailed); err != nil {
		return err
	}
	c.published.Add(1)
	return nil
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await blocks until token completes, ctx ends, or defaultPublishTimeout
// elapses. Failures wrap op.
func await(ctx context.Context, token pahomqtt.Token, op error) error {
	timer := time.NewTimer(defaultPublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", op, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: timeout after %v", op, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", op, err)
	}
	return nil
}
