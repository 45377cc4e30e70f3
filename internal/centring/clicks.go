package centring

import "sync"

// ClickCapacity is the number of clicks retained by a ClickBuffer.
const ClickCapacity = 3

// Click is a point clicked on the sample image, in image coordinates.
type Click struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ClickBuffer keeps the most recent ClickCapacity clicks in arrival order.
type ClickBuffer struct {
	mu    sync.Mutex
	buf   [ClickCapacity]Click
	start int
	n     int
}

// Push appends c, evicting the oldest click when full.
func (b *ClickBuffer) Push(c Click) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n < ClickCapacity {
		b.buf[(b.start+b.n)%ClickCapacity] = c
		b.n++
		return
	}
	b.buf[b.start] = c
	b.start = (b.start + 1) % ClickCapacity
}

// Clicks returns the buffered clicks, oldest first.
func (b *ClickBuffer) Clicks() []Click {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Click, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.buf[(b.start+i)%ClickCapacity]
	}
	return out
}

// Reset empties the buffer.
func (b *ClickBuffer) Reset() {
	b.mu.Lock()
	b.start, b.n = 0, 0
	b.mu.Unlock()
}
