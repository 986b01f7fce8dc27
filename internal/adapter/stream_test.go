package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quotra/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamHandle records the subscriptions it was started with and lets
// the test push messages through them.
type fakeStreamHandle struct {
	mu        sync.Mutex
	subs      []ChannelSub
	started   chan struct{}
	connErr   error
	ctxObj    any
	shutdowns int
}

func newFakeStreamHandle() *fakeStreamHandle {
	return &fakeStreamHandle{started: make(chan struct{}), ctxObj: &map[string]any{"name": "fake"}}
}

func (f *fakeStreamHandle) Name() string { return "fake" }

func (f *fakeStreamHandle) Context() any { return f.ctxObj }

func (f *fakeStreamHandle) ConnectWS(ctx context.Context, subs []ChannelSub) error {
	f.mu.Lock()
	f.subs = subs
	f.mu.Unlock()
	close(f.started)
	if f.connErr != nil {
		return f.connErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeStreamHandle) Shutdown() {
	f.mu.Lock()
	f.shutdowns++
	f.mu.Unlock()
}

func (f *fakeStreamHandle) deliver(t *testing.T, channel string, raw any) error {
	t.Helper()
	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()
	for _, sub := range subs {
		if sub.Channel == channel {
			return sub.Deliver(channel, raw)
		}
	}
	t.Fatalf("no subscription for channel %q", channel)
	return nil
}

func streamContext(h *fakeStreamHandle, rec *callbackRecorder, subscriptions map[string]string) *Context {
	return &Context{
		Name:          "test",
		Callback:      rec.callback,
		Subscriptions: subscriptions,
		NewStream:     func(ctx context.Context, c *Context) (StreamHandle, error) { return h, nil },
	}
}

func TestStreamAdapterIdleWithoutSubscriptions(t *testing.T) {
	rec := newCallbackRecorder()
	w := NewStreamAdapter(streamContext(newFakeStreamHandle(), rec, nil))
	require.NoError(t, w.Run(context.Background()))

	select {
	case <-w.Done():
	default:
		t.Fatal("idle adapter must report done immediately")
	}
	assert.False(t, w.Running())
}

func TestStreamAdapterSubscribesConfiguredChannelsSorted(t *testing.T) {
	h := newFakeStreamHandle()
	rec := newCallbackRecorder()
	w := NewStreamAdapter(streamContext(h, rec, map[string]string{
		"trades": "trades",
		"ticker": "ticker",
	}))
	require.NoError(t, w.Run(context.Background()))
	defer w.Shutdown()
	<-h.started

	h.mu.Lock()
	channels := make([]string, 0, len(h.subs))
	types := make([]string, 0, len(h.subs))
	for _, sub := range h.subs {
		channels = append(channels, sub.Channel)
		types = append(types, sub.ResultType)
	}
	h.mu.Unlock()

	assert.Equal(t, []string{"ticker", "trades"}, channels)
	assert.Equal(t, []string{"ticker", "trades"}, types)
	assert.True(t, w.Running())
}

func TestStreamAdapterDeliversShapedResultsWithHandleContext(t *testing.T) {
	h := newFakeStreamHandle()
	rec := newCallbackRecorder()
	var gotCtx any
	rec2 := &Context{
		Name:          "test",
		Subscriptions: map[string]string{"ticker": "ticker"},
		NewStream:     func(ctx context.Context, c *Context) (StreamHandle, error) { return h, nil },
		Callback: func(res schema.Result, ctx any) {
			gotCtx = ctx
			rec.callback(res, ctx)
		},
	}
	w := NewStreamAdapter(rec2)
	require.NoError(t, w.Run(context.Background()))
	defer w.Shutdown()
	<-h.started

	err := h.deliver(t, "ticker", map[string]any{
		"symbol": "BTC/USDT",
		"last":   "101.5",
	})
	require.NoError(t, err)

	res := rec.wait(t)
	assert.Equal(t, "ticker", res.Channel)
	assert.Empty(t, res.Callname)
	ticker, ok := res.Result.(*schema.Ticker)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", ticker.Symbol)
	assert.Same(t, h.ctxObj, gotCtx)
}

func TestStreamAdapterShapingFailurePropagatesToConnection(t *testing.T) {
	h := newFakeStreamHandle()
	rec := newCallbackRecorder()
	w := NewStreamAdapter(streamContext(h, rec, map[string]string{"ticker": "ticker"}))
	require.NoError(t, w.Run(context.Background()))
	defer w.Shutdown()
	<-h.started

	err := h.deliver(t, "ticker", map[string]any{"last": "not-a-number"})
	require.Error(t, err)

	var shapeErr *schema.ShapingError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "ticker", shapeErr.Channel)

	rec.mu.Lock()
	assert.Empty(t, rec.results)
	rec.mu.Unlock()
}

func TestStreamAdapterShutdownStopsConnection(t *testing.T) {
	h := newFakeStreamHandle()
	rec := newCallbackRecorder()
	w := NewStreamAdapter(streamContext(h, rec, map[string]string{"ticker": "ticker"}))
	require.NoError(t, w.Run(context.Background()))
	<-h.started

	w.Shutdown()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not stop")
	}
	assert.False(t, w.Running())
	h.mu.Lock()
	assert.Equal(t, 1, h.shutdowns)
	h.mu.Unlock()
}
