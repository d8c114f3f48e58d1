package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"building_monitor/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashClient serves HGetAll and TxPipelined from an in-memory hash. Other
// client methods are not used by StateRedis.
type hashClient struct {
	redis.UniversalClient
	hashes  map[string]map[string]string
	readErr error
	txErr   error
	closed  bool
}

func newHashClient() *hashClient {
	return &hashClient{hashes: map[string]map[string]string{}}
}

func (c *hashClient) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	if c.readErr != nil {
		return redis.NewMapStringStringResult(nil, c.readErr)
	}
	out := map[string]string{}
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (c *hashClient) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := &hashPipe{}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	if c.txErr != nil {
		return nil, c.txErr
	}
	for _, key := range pipe.deleted {
		delete(c.hashes, key)
	}
	for key, fields := range pipe.set {
		c.hashes[key] = fields
	}
	return nil, nil
}

func (c *hashClient) Close() error {
	c.closed = true
	return nil
}

type hashPipe struct {
	redis.Pipeliner
	deleted []string
	set     map[string]map[string]string
}

func (p *hashPipe) Del(_ context.Context, keys ...string) *redis.IntCmd {
	p.deleted = append(p.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (p *hashPipe) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if p.set == nil {
		p.set = map[string]map[string]string{}
	}
	fields := map[string]string{}
	for _, v := range values {
		for k, val := range v.(map[string]interface{}) {
			fields[k] = val.(string)
		}
	}
	p.set[key] = fields
	return redis.NewIntResult(int64(len(fields)), nil)
}

func TestStateRedis_SaveReplacesWholeHash(t *testing.T) {
	client := newHashClient()
	client.hashes["state:oil"] = map[string]string{"gone": nullMarker}
	store := NewStateRedis(client, "state:oil", nil)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := models.StateMap{"a": &at, "b": nil}
	require.NoError(t, store.Save(ctx, state))

	assert.Equal(t, map[string]string{
		"a": "2025-06-01T12:00:00.000000000Z",
		"b": nullMarker,
	}, client.hashes["state:oil"])

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, state.Equal(loaded), "loaded %v", loaded)
}

func TestStateRedis_SaveEmptyMapDeletesHash(t *testing.T) {
	client := newHashClient()
	client.hashes["state:oil"] = map[string]string{"a": nullMarker}
	store := NewStateRedis(client, "state:oil", nil)

	require.NoError(t, store.Save(context.Background(), models.StateMap{}))
	_, present := client.hashes["state:oil"]
	assert.False(t, present)
}

func TestStateRedis_MissingKeyIsEmpty(t *testing.T) {
	store := NewStateRedis(newHashClient(), "state:none", nil)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, state)
	assert.Empty(t, state)
}

func TestStateRedis_CorruptHashIsEmptyWithError(t *testing.T) {
	client := newHashClient()
	client.hashes["state:oil"] = map[string]string{"a": "tomorrow"}
	store := NewStateRedis(client, "state:oil", nil)

	state, err := store.Load(context.Background())
	assert.True(t, errors.Is(err, models.ErrCorruptState), "got %v", err)
	assert.NotNil(t, state)
	assert.Empty(t, state)
}

func TestStateRedis_SaveError(t *testing.T) {
	client := newHashClient()
	client.txErr = errors.New("EXECABORT")
	store := NewStateRedis(client, "state:oil", nil)

	err := store.Save(context.Background(), models.StateMap{"a": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state:oil")
	assert.Empty(t, client.hashes)
}

func TestStateRedis_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	store := NewStateRedis(client, "state:oil", nil)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	state, err := store.Load(ctx)
	assert.True(t, errors.Is(err, models.ErrCorruptState), "got %v", err)
	assert.NotNil(t, state)
	assert.Empty(t, state)

	assert.Error(t, store.Save(ctx, models.StateMap{"a": nil}))
}

func TestStateRedis_CloseClosesClient(t *testing.T) {
	client := newHashClient()
	require.NoError(t, NewStateRedis(client, "k", nil).Close())
	assert.True(t, client.closed)
}

func TestStateFields_RoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := models.StateMap{"a": &at, "b": nil}

	fields := encodeStateFields(state)
	assert.Equal(t, map[string]interface{}{
		"a": "2025-06-01T12:00:00.000000000Z",
		"b": nullMarker,
	}, fields)

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}
	decoded, err := decodeStateFields(raw)
	require.NoError(t, err)
	assert.True(t, state.Equal(decoded))
}

func TestDecodeStateFields_RejectsGarbage(t *testing.T) {
	_, err := decodeStateFields(map[string]string{"a": "later"})
	assert.Error(t, err)
}

func TestDecodeStateFields_EmptyHash(t *testing.T) {
	state, err := decodeStateFields(map[string]string{})
	require.NoError(t, err)
	assert.Empty(t, state)
}
