package events

import (
	"container/heap"
	"context"
	"sync"
)

// Queue is the priority-ordered, buffered, non-blocking event queue from
// base spec §4.1. A single internal dispatch goroutine drains it in
// priority-then-FIFO order and hands each event to a Router. No
// priority-queue library appears anywhere in the reference corpus, so this
// uses the standard container/heap — see DESIGN.md.
type Queue struct {
	router *Router

	mu      sync.Mutex
	items   queueHeap
	order   uint64
	seqs    map[string]int64
	notify  chan struct{}
	done    chan struct{}
	closed  bool
	closeMu sync.Once
}

type queueItem struct {
	event    Event
	priority Priority
	order    uint64
}

// queueHeap orders by priority (High first), then by insertion order
// within a priority (FIFO), per base spec §4.1's ordering guarantee.
type queueHeap []*queueItem

func (h queueHeap) Len() int { return len(h) }
func (h queueHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].order < h[j].order
}
func (h queueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *queueHeap) Push(x any)   { *h = append(*h, x.(*queueItem)) }
func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// NewQueue constructs a Queue that dispatches to router. Call Run in its
// own goroutine to start draining.
func NewQueue(router *Router) *Queue {
	return &Queue{
		router: router,
		seqs:   make(map[string]int64),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue adds event to the queue at the given priority. It never blocks;
// the queue is bounded only by memory, per base spec §4.1. The event's
// per-session sequence number is assigned here, immediately before
// insertion, so sequence order matches enqueue order.
func (q *Queue) Enqueue(event Event, priority Priority) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.seqs[event.SessionID()]++
	if setter, ok := event.(seqSetter); ok {
		setter.setSeq(q.seqs[event.SessionID()])
	}
	q.order++
	heap.Push(&q.items, &queueItem{event: event, priority: priority, order: q.order})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is cancelled or Close is called,
// delivering every popped event to the Router. It is intended to run in
// its own goroutine for the lifetime of the owning session/process.
func (q *Queue) Run(ctx context.Context) {
	for {
		event, ok := q.pop()
		if ok {
			q.router.Route(ctx, event)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			// drain whatever remains before exiting
			for {
				event, ok := q.pop()
				if !ok {
					return
				}
				q.router.Route(ctx, event)
			}
		case <-q.notify:
		}
	}
}

func (q *Queue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.event, true
}

// Close stops accepting new events and signals Run to drain and return.
func (q *Queue) Close() {
	q.closeMu.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
}

// Len reports how many events are currently buffered, for tests and
// diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
