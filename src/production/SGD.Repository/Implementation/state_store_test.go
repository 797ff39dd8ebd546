package implementation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	interfaces "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Interfaces"
)

func setupStateStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStateStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStateStore(client, ttl)
}

func TestRedisStateStore_PutGet(t *testing.T) {
	mr, store := setupStateStore(t, 0)
	ctx := context.Background()

	state := &sgdmodels.DeviceState{
		DeviceUID:   "ESP32_GARDEN_001",
		Status:      sgdmodels.StatusOnline,
		LastSeen:    1_700_000_000_000,
		ControlMode: sgdmodels.ModeAuto,
		PumpState:   sgdmodels.PumpOff,
		Sensors:     sgdmodels.SensorData{Temperature: 24.5, AirHumidity: 60, Light: 1200, SoilMoisture: 33},
	}
	require.NoError(t, store.Put(ctx, state))

	raw, err := mr.Get("device:state:ESP32_GARDEN_001")
	require.NoError(t, err)
	assert.Contains(t, raw, `"soilMoisture":33`)
	assert.Contains(t, raw, `"controlMode":"AUTO"`)

	got, err := store.Get(ctx, "ESP32_GARDEN_001")
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestRedisStateStore_GetMissing(t *testing.T) {
	_, store := setupStateStore(t, 0)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRedisStateStore_TTL(t *testing.T) {
	mr, store := setupStateStore(t, time.Minute)
	require.NoError(t, store.Put(context.Background(), &sgdmodels.DeviceState{DeviceUID: "A"}))
	assert.Equal(t, time.Minute, mr.TTL("device:state:A"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(context.Background(), "A")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRedisStateStore_ListUIDs(t *testing.T) {
	mr, store := setupStateStore(t, 0)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &sgdmodels.DeviceState{DeviceUID: "A"}))
	require.NoError(t, store.Put(ctx, &sgdmodels.DeviceState{DeviceUID: "B"}))
	require.NoError(t, mr.Set("unrelated", "x"))

	uids, err := store.ListUIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, uids)
	assert.NoError(t, store.Ping(ctx))
}
