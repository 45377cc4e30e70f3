package hwr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/samplecentring-core/internal/diffractometer"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/mqtt"
)

// defaultRequestTimeout applies when Options.RequestTimeout is zero.
const defaultRequestTimeout = 30 * time.Second

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	IsConnected() bool
}

// Logger defines the logging interface used by the Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTTClient is the connected broker client.
	MQTTClient MQTTClient

	// Topics roots the request, response, state and frame topics.
	Topics mqtt.Topics

	// QoS for requests and subscriptions.
	QoS byte

	// RequestTimeout bounds each hardware call.
	RequestTimeout time.Duration

	// Logger is optional.
	Logger Logger
}

// Bridge is a diffractometer and camera reached over MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt    MQTTClient
	topics  mqtt.Topics
	qos     byte
	timeout time.Duration
	logger  Logger
	newID   func() string
	now     func() time.Time

	pending   map[string]chan ResponseMessage
	pendingMu sync.Mutex

	onEvent   diffractometer.EventHandler
	onFrame   diffractometer.FrameHandler
	handlerMu sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once

	requests atomic.Uint64
	timeouts atomic.Uint64
	frames   atomic.Uint64
}

// New creates a bridge. Call Start to subscribe to daemon traffic.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("%w: %d", mqtt.ErrInvalidQoS, opts.QoS)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		mqtt:    opts.MQTTClient,
		topics:  opts.Topics,
		qos:     opts.QoS,
		timeout: timeout,
		logger:  logger,
		newID:   uuid.NewString,
		now:     time.Now,
		pending: make(map[string]chan ResponseMessage),
		done:    make(chan struct{}),
	}, nil
}

// Start subscribes to responses, motor state changes and camera frames.
func (b *Bridge) Start(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.AllResponses(), b.handleResponse},
		{b.topics.AllMotorStates(), b.handleState},
		{b.topics.CameraFrame(), b.handleFrame},
	}
	for _, s := range subs {
		if err := b.mqtt.Subscribe(ctx, s.topic, b.qos, s.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}
		b.logger.Info("subscribed to daemon topic", "topic", s.topic)
	}
	return nil
}

// Close unsubscribes and fails in-flight calls with ErrStopped.
func (b *Bridge) Close() {
	b.stopOnce.Do(func() {
		close(b.done)
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		for _, topic := range []string{b.topics.AllResponses(), b.topics.AllMotorStates(), b.topics.CameraFrame()} {
			if err := b.mqtt.Unsubscribe(ctx, topic); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
				b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
			}
		}
		b.logger.Info("hardware bridge stopped")
	})
}

// SetEventHandler implements diffractometer.Diffractometer.
func (b *Bridge) SetEventHandler(h diffractometer.EventHandler) {
	b.handlerMu.Lock()
	b.onEvent = h
	b.handlerMu.Unlock()
}

// SetFrameHandler implements diffractometer.Camera.
func (b *Bridge) SetFrameHandler(h diffractometer.FrameHandler) {
	b.handlerMu.Lock()
	b.onFrame = h
	b.handlerMu.Unlock()
}

// Stats contains bridge counters for the metrics endpoint.
type Stats struct {
	Connected bool
	Requests  uint64
	Timeouts  uint64
	Frames    uint64
	Pending   int
}

// Stats returns current counters.
func (b *Bridge) Stats() Stats {
	b.pendingMu.Lock()
	pending := len(b.pending)
	b.pendingMu.Unlock()
	return Stats{
		Connected: b.mqtt.IsConnected(),
		Requests:  b.requests.Load(),
		Timeouts:  b.timeouts.Load(),
		Frames:    b.frames.Load(),
		Pending:   pending,
	}
}

// call publishes a request and waits for its response. A non-nil out
// receives the decoded result.
func (b *Bridge) call(ctx context.Context, method string, params map[string]any, out any) error {
	select {
	case <-b.done:
		return fmt.Errorf("%w: %w", diffractometer.ErrHardwareUnavailable, ErrStopped)
	default:
	}
	if !b.mqtt.IsConnected() {
		return fmt.Errorf("%w: %w", diffractometer.ErrHardwareUnavailable, mqtt.ErrNotConnected)
	}

	req := RequestMessage{ID: b.newID(), Method: method, Params: params, Timestamp: b.now().UTC()}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encoding %s request: %w", diffractometer.ErrMalformedInput, method, err)
	}

	ch := make(chan ResponseMessage, 1)
	b.pendingMu.Lock()
	b.pending[req.ID] = ch
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, req.ID)
		b.pendingMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.requests.Add(1)
	if err := b.mqtt.Publish(ctx, b.topics.Request(method), payload, b.qos, false); err != nil {
		return fmt.Errorf("%w: publishing %s: %w", diffractometer.ErrHardwareUnavailable, method, err)
	}

	var resp ResponseMessage
	select {
	case resp = <-ch:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			b.timeouts.Add(1)
		}
		return fmt.Errorf("%w: %s: %w", diffractometer.ErrHardwareUnavailable, method, ctx.Err())
	case <-b.done:
		return fmt.Errorf("%w: %s: %w", diffractometer.ErrHardwareUnavailable, method, ErrStopped)
	}

	if err := resp.err(method); err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%w: %w: %s: %w", diffractometer.ErrHardwareUnavailable, ErrInvalidResponse, method, err)
	}
	return nil
}

func (b *Bridge) handleResponse(topic string, payload []byte) error {
	var resp ResponseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if resp.ID == "" {
		resp.ID = mqtt.LastSegment(topic)
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[resp.ID]
	b.pendingMu.Unlock()
	if !ok {
		b.logger.Debug("response without pending request", "id", resp.ID)
		return nil
	}
	select {
	case ch <- resp:
	default:
		b.logger.Debug("duplicate response ignored", "id", resp.ID)
	}
	return nil
}

func (b *Bridge) handleState(topic string, payload []byte) error {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding state message: %w", err)
	}
	ev := diffractometer.Event{
		Type:      msg.Type,
		Role:      diffractometer.Role(mqtt.LastSegment(topic)),
		Data:      msg.Data,
		Timestamp: msg.Time,
	}
	if ev.Type == "" {
		ev.Type = diffractometer.EventMotorState
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}

	b.handlerMu.RLock()
	h := b.onEvent
	b.handlerMu.RUnlock()
	if h != nil {
		h(ev)
	}
	return nil
}

func (b *Bridge) handleFrame(_ string, payload []byte) error {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("decoding frame header: %w", err)
	}
	b.frames.Add(1)

	b.handlerMu.RLock()
	h := b.onFrame
	b.handlerMu.RUnlock()
	if h != nil {
		h(payload, cfg.Width, cfg.Height)
	}
	return nil
}
