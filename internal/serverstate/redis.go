package serverstate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the state under one key, JSON encoded.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore uses key on client, writing a NotReady state if the key does
// not exist yet.
func NewRedisStore(ctx context.Context, client redis.UniversalClient, key string) (*RedisStore, error) {
	if key == "" {
		key = "csms:state"
	}
	b, err := json.Marshal(State{Status: NotReady, Since: time.Now()})
	if err != nil {
		return nil, err
	}
	if err := client.SetNX(ctx, key, b, 0).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client, key: key}, nil
}

func (r *RedisStore) Load(ctx context.Context) (State, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{Status: NotReady}, nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

func (r *RedisStore) Save(ctx context.Context, s State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, b, 0).Err()
}
