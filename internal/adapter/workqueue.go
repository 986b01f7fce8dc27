package adapter

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// WorkQueue holds delayed and prioritized call thunks for one adapter. Each
// adapter owns exactly one instance; it is never shared across adapters.
// Items due at the same instant run in ascending priority order, then in
// registration order.
type WorkQueue struct {
	mu    sync.Mutex
	items workHeap
	seq   uint64
	nowFn func() time.Time
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{nowFn: time.Now}
}

// Enter registers run to execute after delay with the given priority
// (lower value runs first among items due together).
func (q *WorkQueue) Enter(delay time.Duration, priority int, run func(ctx context.Context)) {
	if run == nil {
		return
	}
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, &workItem{
		due:      q.nowFn().Add(delay),
		priority: priority,
		seq:      q.seq,
		run:      run,
	})
	q.mu.Unlock()
}

// Len reports the number of pending items.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Drain runs pending items until the queue is empty, sleeping until each
// item's due time. It returns immediately when the queue is empty and stops
// early when ctx is cancelled, leaving unexecuted items queued.
func (q *WorkQueue) Drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.items.Len() == 0 {
			q.mu.Unlock()
			return
		}
		next := q.items[0]
		wait := next.due.Sub(q.nowFn())
		if wait > 0 {
			q.mu.Unlock()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		heap.Pop(&q.items)
		q.mu.Unlock()
		next.run(ctx)
	}
}

type workItem struct {
	due      time.Time
	priority int
	seq      uint64
	run      func(ctx context.Context)
}

type workHeap []*workItem

func (h workHeap) Len() int { return len(h) }

func (h workHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h workHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workHeap) Push(x any) { *h = append(*h, x.(*workItem)) }

func (h *workHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
