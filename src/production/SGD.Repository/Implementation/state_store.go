package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	interfaces "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Interfaces"
)

// StateKeyPrefix namespaces cached device states
const StateKeyPrefix = "device:state:"

// RedisStateStore keeps one JSON document per device under device:state:<uid>
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore creates a store; ttl 0 keeps states forever
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, ttl: ttl}
}

func StateKey(deviceUID string) string {
	return StateKeyPrefix + deviceUID
}

func (s *RedisStateStore) Get(ctx context.Context, deviceUID string) (*sgdmodels.DeviceState, error) {
	raw, err := s.client.Get(ctx, StateKey(deviceUID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", deviceUID, err)
	}

	var state sgdmodels.DeviceState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", deviceUID, err)
	}
	return &state, nil
}

func (s *RedisStateStore) Put(ctx context.Context, state *sgdmodels.DeviceState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", state.DeviceUID, err)
	}
	if err := s.client.Set(ctx, StateKey(state.DeviceUID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", state.DeviceUID, err)
	}
	return nil
}

// ListUIDs scans the keyspace for cached devices
func (s *RedisStateStore) ListUIDs(ctx context.Context) ([]string, error) {
	var uids []string
	iter := s.client.Scan(ctx, 0, StateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		uids = append(uids, strings.TrimPrefix(iter.Val(), StateKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return uids, nil
}

func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
