package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain reads exactly n values from ch or fails the test.
func drain[T any](t *testing.T, ch <-chan T, n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	for len(out) < n {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("timeout after %d of %d values", len(out), n)
		}
	}
	return out
}

func assertEmpty[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Errorf("unexpected value %v", v)
	default:
	}
}

func TestChannelEvent_NotifyAndUnregister(t *testing.T) {
	event := NewChannelEvent[string](false)
	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("a")
	event.Notify("b")
	assert.Equal(t, []string{"a", "b"}, drain(t, ch, 2))

	unregister()
	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("c")
	assertEmpty(t, ch)
}

func TestChannelEvent_Replay(t *testing.T) {
	tests := []struct {
		name       string
		replayLast bool
		notify     []int
		wantReplay []int
	}{
		{name: "replay before any notify", replayLast: true, notify: nil, wantReplay: nil},
		{name: "replay latest value", replayLast: true, notify: []int{1, 2, 3}, wantReplay: []int{3}},
		{name: "no replay", replayLast: false, notify: []int{1, 2}, wantReplay: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewChannelEvent[int](tt.replayLast)
			for _, v := range tt.notify {
				event.Notify(v)
			}

			ch := make(chan int, 10)
			defer event.Listen(ch)()

			if tt.wantReplay == nil {
				assertEmpty(t, ch)
				return
			}
			assert.Equal(t, tt.wantReplay, drain(t, ch, len(tt.wantReplay)))
		})
	}
}

func TestChannelEvent_Last(t *testing.T) {
	event := NewChannelEvent[string](true)
	_, ok := event.Last()
	assert.False(t, ok)

	event.Notify("x")
	v, ok := event.Last()
	require.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestChannelEvent_FullChannelIsSkipped(t *testing.T) {
	event := NewChannelEvent[string](false)
	ch := make(chan string, 1)
	defer event.Listen(ch)()

	ch <- "blocking"
	event.Notify("dropped")
	assert.Equal(t, 1, len(ch))

	<-ch
	event.Notify("kept")
	assert.Equal(t, []string{"kept"}, drain(t, ch, 1))
}

func TestChannelEvent_NilChannelPanics(t *testing.T) {
	event := NewChannelEvent[string](false)
	assert.Panics(t, func() { event.Listen(nil) })
}

func TestChannelEvent_ConcurrentNotify(t *testing.T) {
	event := NewChannelEvent[int](false)
	channels := make([]chan int, 8)
	for i := range channels {
		channels[i] = make(chan int, 100)
		defer event.Listen(channels[i])()
	}

	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		go func(v int) {
			defer wg.Done()
			event.Notify(v)
		}(i)
	}
	wg.Wait()

	for _, ch := range channels {
		assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, drain(t, ch, 5))
	}
}
