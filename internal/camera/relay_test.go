package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_LastWriteWins(t *testing.T) {
	relay := NewRelay(time.Second)
	sub := relay.Subscribe()
	defer sub.Close()

	relay.Publish([]byte("A"), 1, 1)
	relay.Publish([]byte("B"), 1, 1)

	f, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), f.Data)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, uint64(1), relay.Stats().Dropped)
}

func TestRelay_PublishCopiesData(t *testing.T) {
	relay := NewRelay(time.Second)
	sub := relay.Subscribe()
	defer sub.Close()

	buf := []byte("frame")
	relay.Publish(buf, 1, 1)
	buf[0] = 'X'

	f, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("frame"), f.Data)
	assert.Equal(t, []byte("frame"), relay.Latest().Data)
}

func TestRelay_OnlyNewFramesDelivered(t *testing.T) {
	relay := NewRelay(50 * time.Millisecond)
	relay.Publish([]byte("old"), 1, 1)

	sub := relay.Subscribe()
	defer sub.Close()

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrFrameTimeout)

	relay.Publish([]byte("new"), 1, 1)
	f, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), f.Data)
}

func TestRelay_FanOut(t *testing.T) {
	relay := NewRelay(time.Second)
	const readers = 5

	subs := make([]*Subscription, readers)
	for i := range subs {
		subs[i] = relay.Subscribe()
	}
	assert.Equal(t, readers, relay.Stats().Subscribers)

	relay.Publish([]byte("frame"), 640, 480)

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			defer s.Close()
			f, err := s.Next(context.Background())
			assert.NoError(t, err)
			if f != nil {
				assert.Equal(t, 640, f.Width)
			}
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 0, relay.Stats().Subscribers)
}

func TestRelay_OrderedDelivery(t *testing.T) {
	relay := NewRelay(time.Second)
	sub := relay.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			relay.Publish([]byte{byte(i)}, 1, 1)
		}
	}()

	var last uint64
	for last < 200 {
		f, err := sub.Next(context.Background())
		require.NoError(t, err)
		require.Greater(t, f.Seq, last)
		last = f.Seq
	}
	<-done
}

func TestRelay_CloseAllTerminatesBlockedReaders(t *testing.T) {
	relay := NewRelay(0)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		sub := relay.Subscribe()
		go func() {
			_, err := sub.Next(context.Background())
			errs <- err
		}()
	}

	// Let the readers block.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, relay.CloseAll())

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("subscriber still blocked after CloseAll")
		}
	}
}

func TestRelay_SubscribeAfterCloseAll(t *testing.T) {
	relay := NewRelay(time.Second)
	relay.Subscribe()
	relay.CloseAll()

	sub := relay.Subscribe()
	defer sub.Close()
	relay.Publish([]byte("after"), 1, 1)

	f, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("after"), f.Data)
}

func TestRelay_Stop(t *testing.T) {
	relay := NewRelay(time.Second)
	sub := relay.Subscribe()
	relay.Stop()

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	late := relay.Subscribe()
	_, err = late.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	relay.Publish([]byte("ignored"), 1, 1)
	assert.Nil(t, relay.Latest())
	assert.Equal(t, uint64(0), relay.Stats().Published)
}

func TestSubscription_Close(t *testing.T) {
	relay := NewRelay(time.Second)
	a := relay.Subscribe()
	b := relay.Subscribe()

	a.Close()
	a.Close()
	assert.Equal(t, 1, relay.Stats().Subscribers)

	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed")
	}

	relay.Publish([]byte("x"), 1, 1)
	_, err := a.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	f, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), f.Data)
}

func TestSubscription_ContextCancel(t *testing.T) {
	relay := NewRelay(0)
	sub := relay.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRelay_PublishDoesNotBlock(t *testing.T) {
	relay := NewRelay(time.Second)
	for i := 0; i < 10; i++ {
		relay.Subscribe()
	}

	start := time.Now()
	for i := 0; i < 1000; i++ {
		relay.Publish([]byte("frame"), 1, 1)
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1000), relay.Stats().Published)
}
