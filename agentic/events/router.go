package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/goadesign/agentic-core/agentic/telemetry"
)

// Subscriber reacts to routed events. Unlike the teacher's hooks.Subscriber,
// a returned error never halts delivery to other subscribers — see the
// package doc comment and DESIGN.md for the grounding of this departure.
type Subscriber interface {
	OnEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event) error

// OnEvent calls f.
func (f SubscriberFunc) OnEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription represents an active registration on a Router. Close is
// idempotent, mirroring the teacher's hooks.Subscription.
type Subscription interface {
	Close()
}

// Router fans out events to every registered subscriber, logging and
// continuing past individual subscriber failures or panics instead of
// stopping iteration — grounded directly on the original implementation's
// agentic/events/router.rs route(), which logs a subscriber error with
// warn! and proceeds to the next subscriber.
type Router struct {
	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
	log         telemetry.Logger
}

type subscription struct {
	router *Router
	once   sync.Once
}

// NewRouter constructs a Router. A nil logger defaults to NoopLogger.
func NewRouter(log telemetry.Logger) *Router {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Router{subscribers: make(map[*subscription]Subscriber), log: log}
}

// Register adds sub to the router and returns a handle to unregister it.
func (r *Router) Register(sub Subscriber) Subscription {
	s := &subscription{router: r}
	r.mu.Lock()
	r.subscribers[s] = sub
	r.mu.Unlock()
	return s
}

// SubscriberCount reports how many subscribers are currently registered.
// Supplemented introspection (SPEC_FULL.md §3); absent from the teacher.
func (r *Router) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Route delivers event to every subscriber registered at the time of the
// call. A subscriber snapshot is taken under the read lock so registration
// changes during delivery never race with iteration. Every subscriber is
// always invoked: an error or panic from one is logged and does not
// prevent delivery to the rest.
func (r *Router) Route(ctx context.Context, event Event) {
	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		r.deliver(ctx, sub, event)
	}
}

func (r *Router) deliver(ctx context.Context, sub Subscriber, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(ctx, "event subscriber panicked",
				"event_type", string(event.Type()), "session_id", event.SessionID(),
				"panic", fmt.Sprint(rec))
		}
	}()
	if err := sub.OnEvent(ctx, event); err != nil {
		r.log.Warn(ctx, "event subscriber returned an error",
			"event_type", string(event.Type()), "session_id", event.SessionID(), "error", err.Error())
	}
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.router.mu.Lock()
		delete(s.router.subscribers, s)
		s.router.mu.Unlock()
	})
}
