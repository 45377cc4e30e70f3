package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Frame is one published camera image. Data must not be modified; it is
// shared by every subscriber that receives the frame.
type Frame struct {
	Seq        uint64
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Stats is a point-in-time view of relay counters.
type Stats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Relay distributes frames from one producer to any number of subscribers
// with last-write-wins delivery.
type Relay struct {
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	seq     uint64
	latest  *Frame
	subs    map[uint64]*Subscription
	nextID  uint64
	stopped bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewRelay returns a relay whose subscribers give up after frameTimeout
// without a new frame. A zero timeout waits indefinitely.
func NewRelay(frameTimeout time.Duration) *Relay {
	return &Relay{
		timeout: frameTimeout,
		now:     time.Now,
		subs:    make(map[uint64]*Subscription),
	}
}

// Publish copies data into a new frame and hands it to every subscriber.
// It never blocks on readers. After Stop it is a no-op.
func (r *Relay) Publish(data []byte, width, height int) {
	buf := make([]byte, len(data))
	copy(buf, data)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.seq++
	f := &Frame{Seq: r.seq, Data: buf, Width: width, Height: height, CapturedAt: r.now()}
	r.latest = f
	// Offer under r.mu so two publishes cannot reorder in a mailbox.
	for _, s := range r.subs {
		if s.offer(f) {
			r.dropped.Add(1)
		}
	}
	r.mu.Unlock()

	r.published.Add(1)
}

// Subscribe registers a new reader. Only frames published after this call
// are delivered. After Stop the returned subscription is already closed.
func (r *Relay) Subscribe() *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Subscription{
		relay:   r,
		lastSeq: r.seq,
		signal:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	if r.stopped {
		s.closeOnce.Do(func() { close(s.closed) })
		return s
	}
	r.nextID++
	s.id = r.nextID
	r.subs[s.id] = s
	return s
}

// CloseAll closes every open subscription. Blocked readers return ErrClosed.
// Subscriptions created afterwards work normally.
func (r *Relay) CloseAll() int {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[uint64]*Subscription)
	r.mu.Unlock()

	for _, s := range subs {
		s.closeLocal()
	}
	return len(subs)
}

// Stop closes all subscriptions and rejects further frames.
func (r *Relay) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.CloseAll()
}

// Latest returns the most recent frame, or nil if none was published.
func (r *Relay) Latest() *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Stats returns the current counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	n := len(r.subs)
	r.mu.Unlock()
	return Stats{
		Published:   r.published.Load(),
		Dropped:     r.dropped.Load(),
		Subscribers: n,
	}
}

func (r *Relay) remove(id uint64) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Subscription is one reader's mailbox. Next must not be called from more
// than one goroutine at a time; Close may be called from anywhere.
type Subscription struct {
	relay *Relay
	id    uint64

	mu      sync.Mutex
	slot    *Frame
	lastSeq uint64

	signal    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// offer replaces the mailbox content and reports whether an unread frame
// was overwritten.
func (s *Subscription) offer(f *Frame) bool {
	s.mu.Lock()
	dropped := s.slot != nil
	s.slot = f
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return dropped
}

func (s *Subscription) take() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.slot
	s.slot = nil
	if f == nil || f.Seq <= s.lastSeq {
		return nil
	}
	s.lastSeq = f.Seq
	return f
}

// Next blocks until a frame newer than the last one returned is available.
// It returns ErrClosed once the subscription is closed, ErrFrameTimeout if
// the relay's frame timeout elapses first, or the context's error.
func (s *Subscription) Next(ctx context.Context) (*Frame, error) {
	var timeout <-chan time.Time
	if s.relay.timeout > 0 {
		t := time.NewTimer(s.relay.timeout)
		defer t.Stop()
		timeout = t.C
	}

	for {
		select {
		case <-s.closed:
			return nil, ErrClosed
		default:
		}
		if f := s.take(); f != nil {
			return f, nil
		}
		select {
		case <-s.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, ErrFrameTimeout
		case <-s.signal:
		}
	}
}

// Close ends the subscription and detaches it from the relay. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.closeLocal()
	if s.id != 0 {
		s.relay.remove(s.id)
	}
}

func (s *Subscription) closeLocal() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.closed
}
