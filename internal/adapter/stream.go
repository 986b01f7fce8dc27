package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"quotra/internal/logger"
	"quotra/internal/schema"
)

// StreamAdapter maintains one persistent subscription connection for its
// context and routes every inbound message, shaped and tagged by channel,
// to the context callback.
type StreamAdapter struct {
	context *Context
	shaper  *schema.Shaper

	handle StreamHandle

	runCtx    context.Context
	cancel    context.CancelFunc
	keepGoing atomic.Bool
	started   atomic.Bool
	stopOnce  sync.Once
	done      chan struct{}
}

func NewStreamAdapter(c *Context) *StreamAdapter {
	return &StreamAdapter{
		context: c,
		shaper:  c.shaper(),
		done:    make(chan struct{}),
	}
}

// Run builds the streaming handle and starts the connection in its own
// goroutine with one subscription per configured channel. Contexts without
// subscriptions stay idle.
func (w *StreamAdapter) Run(ctx context.Context) error {
	if err := w.context.validate(); err != nil {
		return err
	}
	if len(w.context.Subscriptions) == 0 || w.context.NewStream == nil {
		logger.Debugf("[%s] no subscriptions configured; streaming adapter idle", w.context.Name)
		close(w.done)
		return nil
	}
	if w.started.Load() {
		return fmt.Errorf("context %s: stream adapter already running", w.context.Name)
	}

	handle, err := w.context.NewStream(ctx, w.context)
	if err != nil {
		return fmt.Errorf("building stream handle for context %s failed: %w", w.context.Name, err)
	}
	w.handle = handle

	channels := make([]string, 0, len(w.context.Subscriptions))
	for channel := range w.context.Subscriptions {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	subs := make([]ChannelSub, 0, len(channels))
	for _, channel := range channels {
		subs = append(subs, ChannelSub{
			Channel:    channel,
			ResultType: w.context.Subscriptions[channel],
			Deliver:    w.deliver,
		})
	}

	w.runCtx, w.cancel = context.WithCancel(context.Background())
	w.keepGoing.Store(true)
	w.started.Store(true)
	logger.Infof("[%s] streaming adapter started (%d channels)", w.context.Name, len(subs))

	go func() {
		defer close(w.done)
		if err := w.handle.ConnectWS(w.runCtx, subs); err != nil && w.runCtx.Err() == nil {
			// A delivery failure on one message stops this connection; the
			// error identifies the channel and payload.
			logger.Errorf("[%s] stream connection terminated: %v", w.context.Name, err)
		}
		logger.Infof("[%s] streaming adapter stopped", w.context.Name)
	}()
	return nil
}

// deliver shapes one inbound message and hands it to the callback together
// with the handle's own context object. A shaping failure propagates to the
// connection instead of being dropped silently.
func (w *StreamAdapter) deliver(channel string, raw any) error {
	res, err := w.shaper.ShapeChannelResult(channel, raw)
	if err != nil {
		return err
	}
	w.context.Callback(res, w.handle.Context())
	return nil
}

// Shutdown clears keep-going and delegates to the handle's shutdown
// capability when it has one.
func (w *StreamAdapter) Shutdown() {
	w.stopOnce.Do(func() {
		w.keepGoing.Store(false)
		if w.cancel != nil {
			w.cancel()
		}
		if s, ok := w.handle.(Shutdowner); ok {
			s.Shutdown()
		}
	})
}

// Done reports connection termination.
func (w *StreamAdapter) Done() <-chan struct{} { return w.done }

// Started reports whether Run ever launched the connection. Idle contexts
// never start but their Done channel is already closed.
func (w *StreamAdapter) Started() bool { return w.started.Load() }

// Running reports whether the connection loop is active.
func (w *StreamAdapter) Running() bool {
	return w.started.Load() && w.keepGoing.Load()
}
