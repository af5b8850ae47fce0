package stations

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is what the CSMS knows about a station.
type Record struct {
	ID              string            `json:"id"`
	Model           string            `json:"model,omitempty"`
	VendorName      string            `json:"vendor_name,omitempty"`
	SerialNumber    string            `json:"serial_number,omitempty"`
	FirmwareVersion string            `json:"firmware_version,omitempty"`
	Registration    string            `json:"registration,omitempty"`
	BootReason      string            `json:"boot_reason,omitempty"`
	Connected       bool              `json:"connected"`
	Remote          string            `json:"remote,omitempty"`
	Subprotocol     string            `json:"subprotocol,omitempty"`
	ConnectedAt     time.Time         `json:"connected_at,omitempty"`
	LastBoot        time.Time         `json:"last_boot,omitempty"`
	LastSeen        time.Time         `json:"last_seen,omitempty"`
	Connectors      map[string]string `json:"connectors,omitempty"`
}

// Store persists station records.
type Store interface {
	Get(ctx context.Context, id string) (Record, bool, error)
	Put(ctx context.Context, r Record) error
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps records in process.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{recs: make(map[string]Record)} }

func (m *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[id]
	return r.clone(), ok, nil
}

func (m *MemoryStore) Put(_ context.Context, r Record) error {
	m.mu.Lock()
	m.recs[r.ID] = r.clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(context.Context) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r.clone())
	}
	m.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.recs, id)
	m.mu.Unlock()
	return nil
}

// RedisStore keeps records as JSON values of one hash, keyed by station id,
// so every CSMS node behind a balancer lists the same stations.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore stores records in the hash key. An empty key uses "csms:stations".
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = "csms:stations"
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, bool, error) {
	b, err := s.client.HGet(ctx, s.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *RedisStore) Put(ctx context.Context, r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, r.ID, b).Err()
}

func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(all))
	for id, v := range all {
		var r Record
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, errors.Join(errors.New("stations: corrupt record "+id), err)
		}
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.HDel(ctx, s.key, id).Err()
}

func (r Record) clone() Record {
	if r.Connectors != nil {
		m := make(map[string]string, len(r.Connectors))
		for k, v := range r.Connectors {
			m[k] = v
		}
		r.Connectors = m
	}
	return r
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
