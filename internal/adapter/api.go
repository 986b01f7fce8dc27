package adapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quotra/internal/logger"
	"quotra/internal/schema"
)

const idlePassPause = 50 * time.Millisecond

// APIAdapter runs the recurring call loop for one context. Each loop pass
// dispatches every configured call, then drains due scheduled work, so
// plain calls fire once per pass and delayed or prioritized calls fire when
// their turn comes, interleaved with the plain ones.
type APIAdapter struct {
	context *Context
	shaper  *schema.Shaper
	queue   *WorkQueue

	handle Handle

	epMu      sync.RWMutex
	endpoints map[string]endpoint

	runCtx    context.Context
	cancel    context.CancelFunc
	keepGoing atomic.Bool
	started   atomic.Bool
	stopOnce  sync.Once
	done      chan struct{}
}

// endpoint is the resolved dispatch target for one callname: either a
// direct callable or a concrete endpoint name on the handle.
type endpoint struct {
	direct EndpointFunc
	name   string
}

func NewAPIAdapter(c *Context) *APIAdapter {
	return &APIAdapter{
		context:   c,
		shaper:    c.shaper(),
		queue:     NewWorkQueue(),
		endpoints: make(map[string]endpoint),
		done:      make(chan struct{}),
	}
}

// Run builds the operation handle, installs the adapter back-reference into
// the context, resolves every configured call to its endpoint once, and
// starts the loop in its own goroutine. A handle construction failure is
// fatal for this context.
func (a *APIAdapter) Run(ctx context.Context) error {
	if err := a.context.validate(); err != nil {
		return err
	}
	if a.context.NewHandle == nil {
		return fmt.Errorf("context %s: handle factory is required", a.context.Name)
	}
	if a.started.Load() {
		return fmt.Errorf("context %s: adapter already running", a.context.Name)
	}

	handle, err := a.context.NewHandle(ctx, a.context)
	if err != nil {
		return fmt.Errorf("building handle for context %s failed: %w", a.context.Name, err)
	}
	a.handle = handle
	a.context.Inst = a

	for name := range a.context.Calls {
		a.setEndpoint(name, a.resolve(name))
	}

	// The loop lives on its own context so a caller's startup context
	// cannot stall or kill it; only Shutdown stops the loop.
	a.runCtx, a.cancel = context.WithCancel(context.Background())
	a.keepGoing.Store(true)
	a.started.Store(true)
	logger.Infof("[%s] scheduled call adapter started (%d calls)", a.context.Name, len(a.context.Calls))
	go a.loop()
	return nil
}

// resolve picks the concrete dispatch target for callname: a direct
// callable on the handle wins, then the handle's override table, then the
// literal callname.
func (a *APIAdapter) resolve(callname string) endpoint {
	if dc, ok := a.handle.(DirectCaller); ok {
		if fn, ok := dc.Endpoint(callname); ok && fn != nil {
			logger.Infof("[%s] using direct endpoint for /%s", a.handle.Name(), callname)
			return endpoint{direct: fn, name: callname}
		}
	}
	if ov, ok := a.handle.(EndpointOverrider); ok {
		if mapped, ok := ov.EndpointOverrides()[callname]; ok && mapped != "" {
			logger.Infof("[%s] using override for /%s: /%s", a.handle.Name(), callname, mapped)
			return endpoint{name: mapped}
		}
	}
	return endpoint{name: callname}
}

func (a *APIAdapter) setEndpoint(callname string, ep endpoint) {
	a.epMu.Lock()
	a.endpoints[callname] = ep
	a.epMu.Unlock()
}

func (a *APIAdapter) endpointFor(callname string) endpoint {
	a.epMu.RLock()
	ep, ok := a.endpoints[callname]
	a.epMu.RUnlock()
	if ok {
		return ep
	}
	ep = a.resolve(callname)
	a.setEndpoint(callname, ep)
	return ep
}

func (a *APIAdapter) loop() {
	defer close(a.done)
	for a.keepGoing.Load() && a.runCtx.Err() == nil {
		for name, spec := range a.context.Calls {
			if err := a.Call(a.runCtx, name, spec.Arguments, spec.Delay, spec.Priority); err != nil {
				logger.Errorf("[%s] call %s failed: %v", a.context.Name, name, err)
			}
		}
		a.queue.Drain(a.runCtx)
		if len(a.context.Calls) == 0 && a.queue.Len() == 0 {
			sleepWithContext(a.runCtx, idlePassPause)
		}
	}
	logger.Infof("[%s] scheduled call adapter stopped", a.context.Name)
}

// Call dispatches one named operation. With a delay or priority the shaped
// thunk is registered on the adapter's work queue instead of running
// inline. Shaping failures surface as *schema.ShapingError and are fatal
// for this call only; handle errors propagate unmodified.
func (a *APIAdapter) Call(ctx context.Context, callname string, arguments any, delay time.Duration, priority int) error {
	ep := a.endpointFor(callname)

	thunk := func(ctx context.Context, args any) error {
		var raw any
		if ep.direct != nil {
			req, err := a.shaper.ShapeRequest(callname, args)
			if err != nil {
				return err
			}
			raw, err = ep.direct(ctx, req)
			if err != nil {
				return err
			}
		} else {
			req, err := a.shaper.ShapeRequest(ep.name, args)
			if err != nil {
				return err
			}
			raw, err = a.handle.Call(ctx, ep.name, callArgs(req.Payload)...)
			if err != nil {
				return err
			}
		}
		res, err := a.shaper.ShapeResult(callname, raw)
		if err != nil {
			return err
		}
		a.context.Callback(res, a.context)
		return nil
	}

	if delay > 0 || priority > 0 {
		a.queue.Enter(delay, priority, func(ctx context.Context) {
			if err := thunk(ctx, arguments); err != nil {
				logger.Errorf("[%s] scheduled call %s failed: %v", a.context.Name, callname, err)
			}
		})
		return nil
	}
	return thunk(ctx, arguments)
}

// Queue exposes the adapter's scheduler for strategies reaching in through
// the context back-reference.
func (a *APIAdapter) Queue() *WorkQueue { return a.queue }

// Handle returns the operation handle built at Run, or nil before Run.
func (a *APIAdapter) Handle() Handle { return a.handle }

// Shutdown clears the keep-going flag so the loop exits after its current
// pass, signals cancellation to scheduled waits, and tears down the handle
// when it exposes a shutdown capability.
func (a *APIAdapter) Shutdown() {
	a.stopOnce.Do(func() {
		a.keepGoing.Store(false)
		if a.cancel != nil {
			a.cancel()
		}
		if s, ok := a.handle.(Shutdowner); ok {
			s.Shutdown()
		}
	})
}

// Done reports loop termination. It never closes when Run was not called.
func (a *APIAdapter) Done() <-chan struct{} { return a.done }

// Started reports whether Run ever launched the loop. It stays true after
// shutdown; callers waiting on Done must check it first.
func (a *APIAdapter) Started() bool { return a.started.Load() }

// Running reports whether the loop has started and not yet been stopped.
func (a *APIAdapter) Running() bool {
	return a.started.Load() && a.keepGoing.Load()
}

// callArgs normalizes a call's bound arguments into the variadic form the
// handle expects: absent arguments mean a zero-arg call.
func callArgs(payload any) []any {
	if payload == nil {
		return nil
	}
	if list, ok := payload.([]any); ok {
		return list
	}
	return []any{payload}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
