package repository

import (
	"context"
	"fmt"

	"building_monitor/internal/logger"
	"building_monitor/internal/models"

	"github.com/redis/go-redis/v9"
)

// nullMarker is the hash value stored for an unknown next event time.
const nullMarker = "null"

// StateRedis keeps one hash per group: field = entity id, value = timestamp
// or "null". Save swaps the whole hash inside MULTI/EXEC.
type StateRedis struct {
	client redis.UniversalClient
	key    string
	log    *logger.Logger
}

// NewRedisClient builds a client for the configured server.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewStateRedis(client redis.UniversalClient, key string, log *logger.Logger) *StateRedis {
	if log == nil {
		log = logger.Nop()
	}
	return &StateRedis{client: client, key: key, log: log}
}

func (r *StateRedis) Load(ctx context.Context) (models.StateMap, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		r.log.Warnw("state_redis_unavailable", "key", r.key, "err", err)
		return models.StateMap{}, fmt.Errorf("%w: hgetall %s: %v", models.ErrCorruptState, r.key, err)
	}
	state, err := decodeStateFields(fields)
	if err != nil {
		r.log.Warnw("state_redis_corrupt", "key", r.key, "err", err)
		return models.StateMap{}, fmt.Errorf("%w: %s: %v", models.ErrCorruptState, r.key, err)
	}
	return state, nil
}

func (r *StateRedis) Save(ctx context.Context, state models.StateMap) error {
	values := encodeStateFields(state)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) > 0 {
			pipe.HSet(ctx, r.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save state to %s: %w", r.key, err)
	}
	return nil
}

// Close closes the client connection pool.
func (r *StateRedis) Close() error {
	return r.client.Close()
}

func encodeStateFields(state models.StateMap) map[string]interface{} {
	out := make(map[string]interface{}, len(state))
	for id, t := range state {
		if t == nil {
			out[string(id)] = nullMarker
			continue
		}
		out[string(id)] = formatTimestamp(*t)
	}
	return out
}

func decodeStateFields(fields map[string]string) (models.StateMap, error) {
	state := make(models.StateMap, len(fields))
	for id, v := range fields {
		if v == nullMarker || v == "" {
			state[models.EntityID(id)] = nil
			continue
		}
		t, err := parseTimestamp(v)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", id, err)
		}
		state[models.EntityID(id)] = &t
	}
	return state, nil
}
