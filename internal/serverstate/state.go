// Package serverstate tracks whether this CSMS node accepts station
// connections. The state can be shared through Redis so a load balancer or a
// sibling node sees the same drain flag.
package serverstate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/core/logx"
)

// Status is the readiness reported on /healthz.
type Status string

const (
	NotReady Status = "not_ready"
	Ready    Status = "ready"
	Draining Status = "draining"
)

// State is stored as one unit so readers never see a status without its
// drain flag.
type State struct {
	Status   Status    `json:"status"`
	Draining bool      `json:"draining"`
	Since    time.Time `json:"since"`
}

// Store persists State.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	v atomic.Pointer[State]
}

// NewMemoryStore returns a store initialised to NotReady.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	m.v.Store(&State{Status: NotReady, Since: time.Now()})
	return m
}

func (m *MemoryStore) Load(context.Context) (State, error) { return *m.v.Load(), nil }

func (m *MemoryStore) Save(_ context.Context, s State) error {
	m.v.Store(&s)
	return nil
}

// Tracker reads and updates the state through a Store. When the store fails
// the last known state is served.
type Tracker struct {
	store Store
	log   zerolog.Logger

	mu   sync.Mutex
	last State
}

// NewTracker wraps store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, log: logx.Component("serverstate"), last: State{Status: NotReady}}
}

// Get returns the current state.
func (t *Tracker) Get() State {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := t.store.Load(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.log.Warn().Err(err).Msg("state load failed; serving last known state")
		return t.last
	}
	t.last = st
	return st
}

func (t *Tracker) update(fn func(*State)) {
	st := t.Get()
	fn(&st)
	st.Since = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := t.store.Save(ctx, st); err != nil {
		t.log.Error().Err(err).Str("status", string(st.Status)).Msg("state save failed")
	}
	t.mu.Lock()
	t.last = st
	t.mu.Unlock()
}

// Set changes the status. It does not clear a drain.
func (t *Tracker) Set(s Status) {
	t.update(func(st *State) {
		if st.Draining {
			return
		}
		st.Status = s
	})
}

// StartDrain marks the node as draining.
func (t *Tracker) StartDrain() {
	t.update(func(st *State) {
		st.Draining = true
		st.Status = Draining
	})
}

// Reset clears a drain left over from a previous run and marks the node not ready.
func (t *Tracker) Reset() {
	t.update(func(st *State) {
		st.Draining = false
		st.Status = NotReady
	})
}

// IsDraining reports whether new stations must be turned away.
func (t *Tracker) IsDraining() bool { return t.Get().Draining }

var active atomic.Pointer[Tracker]

func init() { active.Store(NewTracker(NewMemoryStore())) }

// Use replaces the process-wide tracker.
func Use(t *Tracker) {
	if t != nil {
		active.Store(t)
	}
}

// Default returns the process-wide tracker.
func Default() *Tracker { return active.Load() }

// SetState updates the process-wide status.
func SetState(s Status) { Default().Set(s) }

// GetState returns the process-wide status.
func GetState() Status { return Default().Get().Status }

// StartDrain drains the process-wide tracker.
func StartDrain() { Default().StartDrain() }

// IsDraining reports the process-wide drain flag.
func IsDraining() bool { return Default().IsDraining() }
