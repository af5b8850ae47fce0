// Package stations keeps the live connection of every station and its
// persisted record.
package stations

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/dispatch"
)

// ErrSuperseded closes a connection replaced by a newer one from the same station.
var ErrSuperseded = errors.New("stations: superseded by a new connection")

// ErrNotConnected is returned for stations without a live connection.
var ErrNotConnected = errors.New("stations: station not connected")

// Registry maps station ids to connections. A station has at most one live
// connection; attaching a second closes the first.
type Registry struct {
	store Store
	log   zerolog.Logger

	mu   sync.RWMutex
	live map[string]*dispatch.Conn
}

// NewRegistry uses store for records; nil means an in-memory store.
func NewRegistry(store Store) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{store: store, log: logx.Component("stations"), live: make(map[string]*dispatch.Conn)}
}

// Attach makes c the live connection of its station.
func (r *Registry) Attach(ctx context.Context, c *dispatch.Conn) {
	id := c.StationID()
	r.mu.Lock()
	old := r.live[id]
	r.live[id] = c
	r.mu.Unlock()
	if old != nil && old != c {
		r.log.Info().Str("station_id", id).Msg("closing superseded connection")
		old.Close(ErrSuperseded)
	}
	info := c.Info()
	r.update(ctx, id, func(rec *Record) {
		rec.Connected = true
		rec.Remote = info.Remote
		rec.Subprotocol = info.Subprotocol
		rec.ConnectedAt = time.Now().UTC()
		rec.LastSeen = rec.ConnectedAt
	})
}

// Detach forgets c if it is still the live connection of its station.
func (r *Registry) Detach(ctx context.Context, c *dispatch.Conn) {
	id := c.StationID()
	r.mu.Lock()
	cur, ok := r.live[id]
	if !ok || cur != c {
		r.mu.Unlock()
		return
	}
	delete(r.live, id)
	r.mu.Unlock()
	r.update(ctx, id, func(rec *Record) { rec.Connected = false })
}

// Conn returns the live connection of id.
func (r *Registry) Conn(id string) (*dispatch.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.live[id]
	return c, ok
}

// Connected returns the number of live connections.
func (r *Registry) Connected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// CloseAll closes every live connection with reason.
func (r *Registry) CloseAll(reason error) {
	r.mu.Lock()
	conns := make([]*dispatch.Conn, 0, len(r.live))
	for _, c := range r.live {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		c.Close(reason)
	}
}

// Update applies fn to the record of id, creating it when missing.
func (r *Registry) Update(ctx context.Context, id string, fn func(*Record)) error {
	rec, _, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.ID = id
	fn(&rec)
	return r.store.Put(ctx, rec)
}

func (r *Registry) update(ctx context.Context, id string, fn func(*Record)) {
	if err := r.Update(ctx, id, fn); err != nil {
		r.log.Error().Err(err).Str("station_id", id).Msg("station record update failed")
	}
}

// Touch records activity from id.
func (r *Registry) Touch(ctx context.Context, id string) {
	r.update(ctx, id, func(rec *Record) { rec.LastSeen = time.Now().UTC() })
}

// Get returns the record of id.
func (r *Registry) Get(ctx context.Context, id string) (Record, bool, error) {
	return r.store.Get(ctx, id)
}

// List returns all records ordered by id.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	return r.store.List(ctx)
}

// Forget deletes the record of a disconnected station.
func (r *Registry) Forget(ctx context.Context, id string) error {
	if _, ok := r.Conn(id); ok {
		return errors.New("stations: station is connected")
	}
	return r.store.Delete(ctx, id)
}
