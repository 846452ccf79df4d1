package events_test

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/events"
)

func TestQueueDeliversHighPriorityBeforeLow(t *testing.T) {
	router := events.NewRouter(nil)
	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	router.Register(events.SubscriberFunc(func(ctx context.Context, e events.Event) error {
		mu.Lock()
		order = append(order, string(e.Type()))
		if len(order) == 3 {
			close(done)
		}
		mu.Unlock()
		return nil
	}))

	q := events.NewQueue(router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// enqueue low-priority events first, then a high-priority one; the
	// high-priority event must still be delivered before the remaining
	// low-priority backlog once dispatch starts draining.
	q.Enqueue(events.NewTextChunkEvent("s1", "t1", 0, "a"), events.PriorityLow)
	q.Enqueue(events.NewTextChunkEvent("s1", "t1", 0, "b"), events.PriorityLow)
	q.Enqueue(events.NewSessionStateChangedEvent("s1", "t1", core.Idle()), events.PriorityHigh)
	go q.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, string(events.SessionStateChanged), order[0])
}

func TestQueueAssignsMonotoneSequencePerSession(t *testing.T) {
	router := events.NewRouter(nil)
	var mu sync.Mutex
	var seqs []int64
	count := 0
	doneCh := make(chan struct{})

	router.Register(events.SubscriberFunc(func(ctx context.Context, e events.Event) error {
		mu.Lock()
		seqs = append(seqs, e.Seq())
		count++
		if count == 5 {
			close(doneCh)
		}
		mu.Unlock()
		return nil
	}))

	q := events.NewQueue(router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for i := 0; i < 5; i++ {
		q.Enqueue(events.NewTextChunkEvent("s1", "t1", 0, "x"), events.PriorityNormal)
	}

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, s := range seqs {
		assert.Equal(t, int64(i+1), s)
	}
}

// TestQueueSequenceIsMonotonePerSessionProperty verifies base spec §8's
// "universal invariant" that per-session event sequence numbers are
// strictly increasing in enqueue order, for any number of events enqueued
// at any mix of priorities: priority reorders dispatch, never Seq().
func TestQueueSequenceIsMonotonePerSessionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Seq() values assigned at enqueue are exactly 1..N in enqueue order", prop.ForAll(
		func(priorities []events.Priority) bool {
			q := events.NewQueue(events.NewRouter(nil))
			for i, p := range priorities {
				evt := events.NewTextChunkEvent("s1", "t1", 0, "x")
				q.Enqueue(evt, p)
				if evt.Seq() != int64(i+1) {
					return false
				}
			}
			return true
		},
		genPrioritySlice(),
	))

	properties.TestingRun(t)
}

func genPrioritySlice() gopter.Gen {
	return gen.IntRange(0, 30).FlatMap(func(n any) gopter.Gen {
		return gen.SliceOfN(n.(int), gen.OneConstOf(events.PriorityLow, events.PriorityNormal, events.PriorityHigh))
	}, reflect.TypeOf([]events.Priority{}))
}

func TestQueueCloseDrainsRemainingEvents(t *testing.T) {
	router := events.NewRouter(nil)
	var mu sync.Mutex
	delivered := 0
	router.Register(events.SubscriberFunc(func(ctx context.Context, e events.Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	}))

	q := events.NewQueue(router)
	q.Enqueue(events.NewTextChunkEvent("s1", "t1", 0, "x"), events.PriorityNormal)
	q.Enqueue(events.NewTextChunkEvent("s1", "t1", 0, "y"), events.PriorityNormal)

	ctx := context.Background()
	runDone := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(runDone)
	}()
	q.Close()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, delivered)
}
