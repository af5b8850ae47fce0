// Package eventlog persists dispatch notifications in badger so recent
// traffic can be inspected after the fact.
package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
)

const (
	eventPrefix   = "ev/"
	stationPrefix = "st/"
	seqKey        = "seq"
)

// Entry is a stored event.
type Entry struct {
	Seq uint64 `json:"seq"`
	notify.Event
}

// Options configure Open. An empty Dir keeps the log in memory.
type Options struct {
	Dir string
	// TTL expires entries; zero keeps them until deleted.
	TTL    time.Duration
	Logger *zerolog.Logger
}

// Log is an append-only event store.
type Log struct {
	db  *badger.DB
	seq *badger.Sequence
	ttl time.Duration
	log zerolog.Logger
}

// Open opens or creates the log.
func Open(opts Options) (*Log, error) {
	lg := logx.Component("eventlog")
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	bo := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{lg})
	if opts.Dir == "" {
		bo = bo.WithInMemory(true)
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %q: %w", opts.Dir, err)
	}
	seq, err := db.GetSequence([]byte(seqKey), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: sequence: %w", err)
	}
	return &Log{db: db, seq: seq, ttl: opts.TTL, log: lg}, nil
}

// Close releases the sequence lease and closes the database.
func (l *Log) Close() error {
	return errors.Join(l.seq.Release(), l.db.Close())
}

func eventKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(eventPrefix), seq)
}

func stationKey(station string, seq uint64) []byte {
	k := append([]byte(stationPrefix), station...)
	k = append(k, '/')
	return binary.BigEndian.AppendUint64(k, seq)
}

// Append stores ev and returns its sequence number.
func (l *Log) Append(ev notify.Event) (uint64, error) {
	n, err := l.seq.Next()
	if err != nil {
		return 0, err
	}
	// Sequence numbers start at zero; keep zero free as "none".
	n++
	b, err := json.Marshal(Entry{Seq: n, Event: ev})
	if err != nil {
		return 0, fmt.Errorf("eventlog: encode: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(l.entry(eventKey(n), b)); err != nil {
			return err
		}
		if ev.Conn.StationID == "" {
			return nil
		}
		return txn.SetEntry(l.entry(stationKey(ev.Conn.StationID, n), nil))
	})
	if err != nil {
		return 0, fmt.Errorf("eventlog: append: %w", err)
	}
	return n, nil
}

func (l *Log) entry(k, v []byte) *badger.Entry {
	e := badger.NewEntry(k, v)
	if l.ttl > 0 {
		e = e.WithTTL(l.ttl)
	}
	return e
}

// Query selects entries. Zero fields match everything.
type Query struct {
	Limit     int
	StationID string
	Action    ocpp.Action
	// Before returns only entries older than this sequence number.
	Before uint64
}

// DefaultLimit caps queries without a limit.
const DefaultLimit = 100

// Recent returns matching entries, newest first.
func (l *Log) Recent(q Query) ([]Entry, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	prefix := []byte(eventPrefix)
	if q.StationID != "" {
		prefix = append(append([]byte(stationPrefix), q.StationID...), '/')
	}
	start := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	if q.Before > 0 {
		start = binary.BigEndian.AppendUint64(append([]byte{}, prefix...), q.Before-1)
	}

	var out []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: prefix, PrefetchValues: q.StationID == ""})
		defer it.Close()
		for it.Seek(start); it.ValidForPrefix(prefix) && len(out) < q.Limit; it.Next() {
			key := it.Item().KeyCopy(nil)
			if len(key) != len(prefix)+8 {
				continue
			}
			seq := binary.BigEndian.Uint64(key[len(prefix):])
			item := it.Item()
			if q.StationID != "" {
				var err error
				item, err = txn.Get(eventKey(seq))
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return err
				}
			}
			var e Entry
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return fmt.Errorf("eventlog: decode %d: %w", seq, err)
			}
			if q.Action != "" && e.Action != q.Action {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Attach subscribes the log to hub and returns the unsubscribe function.
func (l *Log) Attach(hub *notify.Hub) func() {
	return hub.Subscribe(notify.Filter{}, func(ev notify.Event) {
		if _, err := l.Append(ev); err != nil {
			l.log.Error().Err(err).Str("action", string(ev.Action)).Str("message_id", ev.MessageID).Msg("event not logged")
		}
	})
}

// RunGC reclaims space left by expired entries until stop is closed.
func (l *Log) RunGC(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			for l.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

type badgerLogger struct{ l zerolog.Logger }

func (b badgerLogger) Errorf(f string, a ...interface{})   { b.l.Error().Msgf(f, a...) }
func (b badgerLogger) Warningf(f string, a ...interface{}) { b.l.Warn().Msgf(f, a...) }
func (b badgerLogger) Infof(f string, a ...interface{})    { b.l.Debug().Msgf(f, a...) }
func (b badgerLogger) Debugf(f string, a ...interface{})   { b.l.Trace().Msgf(f, a...) }
