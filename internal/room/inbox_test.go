package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderHandler records frames and fails the test if two deliveries overlap.
type orderHandler struct {
	t        *testing.T
	inFlight atomic.Int32
	mu       sync.Mutex
	frames   []string
}

func (h *orderHandler) OnMessage(frame string) {
	if h.inFlight.Add(1) != 1 {
		h.t.Errorf("concurrent delivery of %q", frame)
	}
	time.Sleep(time.Millisecond)
	h.mu.Lock()
	h.frames = append(h.frames, frame)
	h.mu.Unlock()
	h.inFlight.Add(-1)
}

func (h *orderHandler) Frames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frames...)
}

func TestInbox_DeliversInOrderOneAtATime(t *testing.T) {
	in := NewInbox(4)
	h := &orderHandler{t: t}
	in.AttachHandler(h)
	go in.Run()

	var want []string
	for i := 0; i < 20; i++ {
		f := fmt.Sprintf("f%d", i)
		want = append(want, f)
		require.NoError(t, in.Post(context.Background(), f))
	}
	in.Close()

	select {
	case <-in.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("inbox did not drain in time")
	}
	assert.Equal(t, want, h.Frames())
}

func TestInbox_PostAfterClose(t *testing.T) {
	in := NewInbox(1)
	in.Close()
	in.Close()
	assert.ErrorIs(t, in.Post(context.Background(), "late"), ErrInboxClosed)
}

func TestInbox_PostHonoursContext(t *testing.T) {
	in := NewInbox(1)
	require.NoError(t, in.Post(context.Background(), "fills the queue"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, in.Post(ctx, "blocked"), context.DeadlineExceeded)
}

func TestInbox_DetachStopsDelivery(t *testing.T) {
	in := NewInbox(4)
	h := &orderHandler{t: t}
	other := &orderHandler{t: t}
	in.AttachHandler(h)

	in.DetachHandler(other)
	require.NoError(t, in.Post(context.Background(), "kept"))
	go in.Run()

	require.Eventually(t, func() bool { return len(h.Frames()) == 1 }, 2*time.Second, 5*time.Millisecond)

	in.DetachHandler(h)
	require.NoError(t, in.Post(context.Background(), "dropped"))
	in.Close()
	<-in.Done()

	assert.Equal(t, []string{"kept"}, h.Frames())
}
