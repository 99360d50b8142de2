// Package bus implements the application event bus: a typed
// publish/subscribe hub that decouples the pipeline from its consumers
// (answer generation, the transcript viewer, logging).
//
// Thread affinity is a per-subscription choice, not a bus property: a
// subscriber declares a [DispatchMode] at registration. Synchronous handlers
// run inline on the publisher's goroutine and must be fast; asynchronous
// handlers run on a dedicated per-subscription goroutine fed by a buffered
// queue, so a slow consumer (an LLM call, a websocket write) never stalls
// the publisher.
package bus

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Kind identifies an event stream.
type Kind string

// Event kinds published by the application.
const (
	// KindTranscript carries a pipeline.Transcript payload: a finalized
	// utterance transcript.
	KindTranscript Kind = "transcript"

	// KindQuestion carries a string payload: a transcript classified as an
	// interview question.
	KindQuestion Kind = "question"

	// KindAnswerToken carries a string payload: one streamed token of a
	// generated answer.
	KindAnswerToken Kind = "answer_token"

	// KindAnswerDone carries a string payload: the complete generated answer.
	KindAnswerDone Kind = "answer_done"

	// KindError carries an error payload: a recovered failure surfaced to
	// the user.
	KindError Kind = "error"

	// KindStatus carries a string payload: pipeline lifecycle transitions
	// ("started", "stopped").
	KindStatus Kind = "status"
)

// DispatchMode selects how a subscription's handler is invoked.
type DispatchMode int

const (
	// DispatchSync runs the handler inline on the publishing goroutine.
	// Use for cheap handlers (counters, logging).
	DispatchSync DispatchMode = iota

	// DispatchAsync queues events to a per-subscription goroutine. Use for
	// handlers that block. Events are dropped (and logged) when the
	// subscriber's queue overflows.
	DispatchAsync
)

// asyncQueueDepth bounds each async subscription's backlog.
const asyncQueueDepth = 64

// Handler receives a published event payload.
type Handler func(payload any)

// subscription is one registered handler.
type subscription struct {
	id      int
	mode    DispatchMode
	handler Handler
	queue   chan any // nil for sync subscriptions
	done    chan struct{}
}

// Bus is the event hub. The zero value is not usable; create with New.
type Bus struct {
	log *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[Kind][]*subscription
	closed bool
}

// New creates an empty Bus. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		log:  log,
		subs: map[Kind][]*subscription{},
	}
}

// Subscription is the caller's handle for cancelling a subscription.
type Subscription struct {
	bus  *Bus
	kind Kind
	id   int
}

// Subscribe registers handler for events of the given kind. The returned
// Subscription's Unsubscribe removes it; async subscriptions drain their
// queue before Unsubscribe returns.
func (b *Bus) Subscribe(kind Kind, mode DispatchMode, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		mode:    mode,
		handler: handler,
	}
	if mode == DispatchAsync && !b.closed {
		sub.queue = make(chan any, asyncQueueDepth)
		sub.done = make(chan struct{})
		go b.deliverLoop(kind, sub)
	}
	b.subs[kind] = append(b.subs[kind], sub)

	return &Subscription{bus: b, kind: kind, id: sub.id}
}

// Publish delivers payload to every subscriber of kind. Synchronous handlers
// run before Publish returns; asynchronous handlers receive the event on
// their own goroutine. Publish never blocks on a slow async subscriber.
func (b *Bus) Publish(kind Kind, payload any) {
	b.mu.RLock()
	subs := b.subs[kind]
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return
	}

	for _, sub := range subs {
		switch sub.mode {
		case DispatchSync:
			b.invoke(kind, sub, payload)
		case DispatchAsync:
			select {
			case sub.queue <- payload:
			default:
				b.log.Warn("event dropped, subscriber queue full",
					"kind", string(kind), "subscriber", sub.id)
			}
		}
	}
}

// Unsubscribe removes the subscription. For async subscriptions it waits for
// queued events to finish delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.kind, s.id)
}

// Close tears down the bus: all subscriptions are removed and async delivery
// goroutines drained. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[Kind][]*subscription{}
	b.mu.Unlock()

	for _, list := range subs {
		for _, sub := range list {
			if sub.queue != nil {
				close(sub.queue)
				<-sub.done
			}
		}
	}
}

func (b *Bus) remove(kind Kind, id int) {
	b.mu.Lock()
	list := b.subs[kind]
	var removed *subscription
	for i, sub := range list {
		if sub.id == id {
			removed = sub
			b.subs[kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	if removed != nil && removed.queue != nil {
		close(removed.queue)
		<-removed.done
	}
}

// deliverLoop drains one async subscription's queue.
func (b *Bus) deliverLoop(kind Kind, sub *subscription) {
	defer close(sub.done)
	for payload := range sub.queue {
		b.invoke(kind, sub, payload)
	}
}

// invoke runs a handler with panic containment: one misbehaving subscriber
// must not take down the publisher or the bus.
func (b *Bus) invoke(kind Kind, sub *subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				"kind", string(kind),
				"subscriber", sub.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	sub.handler(payload)
}
