// Package pending tracks outbound OCPP calls awaiting a reply on one
// connection. Each entry reaches exactly one terminal outcome.
package pending

import (
	"errors"
	"sync"
	"time"

	"github.com/gaspardpetit/csms/internal/envelope"
	"github.com/gaspardpetit/csms/internal/ocpp"
)

// ErrDuplicateID is returned when a message id is already pending.
var ErrDuplicateID = errors.New("pending: message id already in use")

// ErrTimeout is the outcome error of a call that expired.
var ErrTimeout = errors.New("pending: response timeout")

// State is the terminal state of a call.
type State int

const (
	Answered State = iota + 1
	Rejected
	TimedOut
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Answered:
		return "answered"
	case Rejected:
		return "rejected"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "pending"
}

// Outcome is delivered once per handle. Message is set for Answered and
// Rejected, Err for the other states.
type Outcome struct {
	State   State
	Message envelope.Message
	Err     error
	At      time.Time
}

// Answer builds the outcome for a CallResult or CallError.
func Answer(m envelope.Message) Outcome {
	st := Answered
	if m.Type.IsError() {
		st = Rejected
	}
	return Outcome{State: st, Message: m}
}

// Handle is the caller's view of one pending call.
type Handle struct {
	ID      string
	Action  ocpp.Action
	SentAt  time.Time
	Timeout time.Duration

	done    chan struct{}
	outcome Outcome
	timer   *time.Timer
}

// Done is closed once the outcome is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome returns the terminal outcome. It must only be called after Done is closed.
func (h *Handle) Outcome() Outcome { return h.outcome }

// Elapsed returns the time from send to completion.
func (h *Handle) Elapsed() time.Duration { return h.outcome.At.Sub(h.SentAt) }

// Table maps message ids to pending calls.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Handle
	now     func() time.Time
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*Handle), now: time.Now}
}

// Register adds a pending call. A positive timeout arms a timer that
// completes the call with TimedOut.
func (t *Table) Register(id string, action ocpp.Action, timeout time.Duration) (*Handle, error) {
	h := &Handle{ID: id, Action: action, SentAt: t.now(), Timeout: timeout, done: make(chan struct{})}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		return nil, ErrDuplicateID
	}
	t.entries[id] = h
	if timeout > 0 {
		h.timer = time.AfterFunc(timeout, func() {
			t.finish(id, h, Outcome{State: TimedOut, Err: ErrTimeout})
		})
	}
	return h, nil
}

// Complete resolves id with out. It reports false when id is not pending.
func (t *Table) Complete(id string, out Outcome) bool {
	return t.finish(id, nil, out)
}

// Cancel resolves id as Cancelled with reason.
func (t *Table) Cancel(id string, reason error) bool {
	return t.finish(id, nil, Outcome{State: Cancelled, Err: reason})
}

// Fail resolves id as Failed, used when the frame could not be delivered.
func (t *Table) Fail(id string, err error) bool {
	return t.finish(id, nil, Outcome{State: Failed, Err: err})
}

// finish removes id and delivers out. When want is set, the entry must still
// be that handle; this keeps a stale timer from resolving a reused id.
func (t *Table) finish(id string, want *Handle, out Outcome) bool {
	t.mu.Lock()
	h, ok := t.entries[id]
	if !ok || (want != nil && h != want) {
		t.mu.Unlock()
		return false
	}
	delete(t.entries, id)
	t.mu.Unlock()
	h.resolve(out, t.now())
	return true
}

func (h *Handle) resolve(out Outcome, at time.Time) {
	if h.timer != nil {
		h.timer.Stop()
	}
	out.At = at
	h.outcome = out
	close(h.done)
}

// DrainAll cancels every pending call with reason and returns the handles.
func (t *Table) DrainAll(reason error) []*Handle {
	t.mu.Lock()
	hs := make([]*Handle, 0, len(t.entries))
	for id, h := range t.entries {
		hs = append(hs, h)
		delete(t.entries, id)
	}
	t.mu.Unlock()
	now := t.now()
	for _, h := range hs {
		h.resolve(Outcome{State: Cancelled, Err: reason}, now)
	}
	return hs
}

// Len returns the number of pending calls.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Lookup returns the action of a pending id.
func (t *Table) Lookup(id string) (ocpp.Action, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.entries[id]
	if !ok {
		return "", false
	}
	return h.Action, true
}
