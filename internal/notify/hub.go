// Package notify fans dispatch lifecycle events out to observers. Observers
// run on their own goroutines behind bounded queues so a slow or failing
// observer never holds up message dispatch.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/ocpp"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 256

// Filter selects events by phase and action. Empty sets match everything.
type Filter struct {
	Phases  []Phase
	Actions []ocpp.Action
}

func (f Filter) matches(e Event) bool {
	if len(f.Phases) > 0 {
		ok := false
		for _, p := range f.Phases {
			if p == e.Phase {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Actions) > 0 {
		for _, a := range f.Actions {
			if a == e.Action {
				return true
			}
		}
		return false
	}
	return true
}

type subscriber[T any] struct {
	ch    chan T
	fn    func(T)
	match func(T) bool
}

func (s *subscriber[T]) run(log zerolog.Logger) {
	for v := range s.ch {
		s.call(log, v)
	}
}

func (s *subscriber[T]) call(log zerolog.Logger, v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("notification subscriber panicked")
		}
	}()
	s.fn(v)
}

// Hub is a multicast point for Events and Diagnostics.
type Hub struct {
	mu      sync.RWMutex
	events  map[uint64]*subscriber[Event]
	diags   map[uint64]*subscriber[Diagnostic]
	next    uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
	log     zerolog.Logger
}

// NewHub returns a Hub whose subscribers queue up to buffer items.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		events: make(map[uint64]*subscriber[Event]),
		diags:  make(map[uint64]*subscriber[Diagnostic]),
		buffer: buffer,
		log:    logx.Component("notify"),
	}
}

// Subscribe registers fn for events matching f and returns a function that
// removes the subscription. Queued events are still delivered after removal.
func (h *Hub) Subscribe(f Filter, fn func(Event)) func() {
	s := &subscriber[Event]{ch: make(chan Event, h.buffer), fn: fn, match: f.matches}
	return add(h, h.events, s)
}

// SubscribeDiagnostics registers fn for every Diagnostic.
func (h *Hub) SubscribeDiagnostics(fn func(Diagnostic)) func() {
	s := &subscriber[Diagnostic]{ch: make(chan Diagnostic, h.buffer), fn: fn}
	return add(h, h.diags, s)
}

func add[T any](h *Hub, m map[uint64]*subscriber[T], s *subscriber[T]) func() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return func() {}
	}
	id := h.next
	h.next++
	m[id] = s
	h.mu.Unlock()
	go s.run(h.log)
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if cur, ok := m[id]; ok && cur == s {
				delete(m, id)
				close(s.ch)
			}
			h.mu.Unlock()
		})
	}
}

// Publish queues e for every matching subscriber without blocking. Events
// that do not fit a subscriber's queue are dropped and counted.
func (h *Hub) Publish(e Event) {
	publish(h, h.events, e)
}

// PublishDiagnostic queues d for every diagnostics subscriber.
func (h *Hub) PublishDiagnostic(d Diagnostic) {
	publish(h, h.diags, d)
}

func publish[T any](h *Hub, m map[uint64]*subscriber[T], v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, s := range m {
		if s.match != nil && !s.match(v) {
			continue
		}
		select {
		case s.ch <- v:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns the number of notifications discarded on full queues.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns the number of active event and diagnostic subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events) + len(h.diags)
}

// Close removes every subscriber. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.events {
		close(s.ch)
		delete(h.events, id)
	}
	for id, s := range h.diags {
		close(s.ch)
		delete(h.diags, id)
	}
}

// On subscribes fn to one (action, phase) slot with typed payloads. Req or
// Resp is nil when the event carries no decoded value of that type.
func On[Req, Resp any](h *Hub, action ocpp.Action, phase Phase, fn func(Event, *Req, *Resp)) func() {
	return h.Subscribe(Filter{Phases: []Phase{phase}, Actions: []ocpp.Action{action}}, func(e Event) {
		var req *Req
		var resp *Resp
		if v, ok := e.Request.Get(); ok {
			req, _ = v.(*Req)
		}
		if v, ok := e.Response.Get(); ok {
			resp, _ = v.(*Resp)
		}
		fn(e, req, resp)
	})
}
