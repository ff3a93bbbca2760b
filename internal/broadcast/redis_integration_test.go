package broadcast

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/sessiond/internal/models"
)

func TestRedisBusDelivery(t *testing.T) {
	addr := os.Getenv("SESSIOND_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SESSIOND_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	bus := NewRedis(client, "sessiond-test:events", zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })

	got := make(chan Event, 1)
	_, err := bus.Subscribe(func(ev Event) { got <- ev })
	require.NoError(t, err)

	// Give the pub/sub subscription a moment to establish.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, bus.Publish(ctx, Event{
		Kind:   KindLogout,
		Role:   models.RoleAdmin,
		Origin: "test-origin",
		At:     time.Now(),
	}))

	select {
	case ev := <-got:
		assert.Equal(t, KindLogout, ev.Kind)
		assert.Equal(t, models.RoleAdmin, ev.Role)
		assert.Equal(t, "test-origin", ev.Origin)
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}
