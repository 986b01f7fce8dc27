package exchange

import (
	"context"
	"sync"
)

// worker serializes all calls against one exchange through a single
// goroutine, guaranteeing at most one in-flight call per exchange. The
// base context is cancelled on shutdown to signal outstanding work.
type worker struct {
	tasks chan *task

	baseCtx  context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

type task struct {
	ctx  context.Context
	run  func(ctx context.Context)
	err  error
	done chan struct{}
}

func newWorker() *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		tasks:   make(chan *task),
		baseCtx: ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.baseCtx.Done():
			return
		case t := <-w.tasks:
			// A caller may have given up while queued; skip stale work
			// and report the cancellation so the skip never reads as a
			// successful call.
			if err := t.ctx.Err(); err != nil {
				t.err = err
				close(t.done)
				continue
			}
			runCtx, cancel := context.WithCancel(t.ctx)
			stop := context.AfterFunc(w.baseCtx, cancel)
			t.run(runCtx)
			stop()
			cancel()
			close(t.done)
		}
	}
}

// do runs fn on the worker goroutine and waits for it to finish. It returns
// early when ctx is cancelled before the task starts, or when the worker has
// been stopped.
func (w *worker) do(ctx context.Context, fn func(ctx context.Context)) error {
	t := &task{ctx: ctx, run: fn, done: make(chan struct{})}
	select {
	case w.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.baseCtx.Done():
		return w.baseCtx.Err()
	}
	select {
	case <-t.done:
		return t.err
	case <-w.baseCtx.Done():
		return w.baseCtx.Err()
	}
}

// stop requests cancellation of outstanding work and waits for the loop to
// exit. It does not forcibly interrupt a call already in flight beyond the
// cooperative context signal.
func (w *worker) stop() {
	w.stopOnce.Do(w.cancel)
	<-w.done
}
