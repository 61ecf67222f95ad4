package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	require.NotNil(t, s1)
	require.NotNil(t, s2)
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(SessionStarted, map[string]string{"session_id": "s1"})

	for _, sub := range []*Subscription{s1, s2} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, SessionStarted, ev.Name)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBusWithBuffer(2)
	defer b.Close()
	sub := b.Subscribe()

	b.Publish(ProgressUpdate, 1)
	b.Publish(ProgressUpdate, 2)
	b.Publish(ProgressUpdate, 3) // evicts 1

	assert.Equal(t, uint64(1), sub.Dropped())
	ev := <-sub.Events()
	assert.Equal(t, 2, ev.Data)
	ev = <-sub.Events()
	assert.Equal(t, 3, ev.Data)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBusWithBuffer(1)
	defer b.Close()
	_ = b.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(CostUpdate, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()
	sub := b.Subscribe()
	sub.Cancel()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())

	// Publishing after cancel must not panic.
	b.Publish(StatusUpdated, nil)
	// Double cancel is safe.
	sub.Cancel()
}

func TestCloseWakesSubscribers(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range sub.Events() {
		}
	}()

	b.Close()
	wg.Wait()

	assert.Nil(t, b.Subscribe())
	b.Publish(StatusUpdated, nil) // no-op, no panic
	b.Close()                     // idempotent
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe()
			if sub == nil {
				return
			}
			for j := 0; j < 50; j++ {
				b.Publish(FeatureUpdated, j)
			}
			sub.Cancel()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.SubscriberCount())
}
