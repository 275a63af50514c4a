package netcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsyncQueueDrainEmpty(t *testing.T) {
	q := newAsyncQueue()
	require.Nil(t, q.drain())
}

func TestAsyncQueuePostThenDrain(t *testing.T) {
	q := newAsyncQueue()
	w := &watcherHandle{fd: 7}
	q.post(asyncEvent{kind: eventRearm, watcher: w})
	q.post(asyncEvent{kind: eventExit})

	items := q.drain()
	require.Len(t, items, 2)
	require.Equal(t, eventRearm, items[0].kind)
	require.Same(t, w, items[0].watcher)
	require.Equal(t, eventExit, items[1].kind)

	// a second drain before any further post returns nothing.
	require.Nil(t, q.drain())
}

func TestAsyncQueueMultiplePostsCoalesceOneWake(t *testing.T) {
	q := newAsyncQueue()
	q.post(asyncEvent{kind: eventRearm})
	q.post(asyncEvent{kind: eventRearm})
	q.post(asyncEvent{kind: eventRearm})

	// all three items survive even though the wake channel only ever
	// holds a single pending signal.
	require.Len(t, q.drain(), 3)

	select {
	case <-q.wake:
	default:
		t.Fatal("expected a pending wake signal after posting")
	}
}
