package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricefeed/internal/model"
)

// fakeConn records writes and can be set to fail.
type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	failSend bool
	closed   bool
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	h := New(cfg, nil)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Stop(ctx)
	})
	return h
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := startHub(t, Config{HeartbeatInterval: time.Hour})

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	h.Register(c1)
	h.Register(c2)
	assert.Equal(t, 2, h.Count())

	h.Unregister(c1)
	assert.Equal(t, 1, h.Count())
	assert.True(t, c1.isClosed())

	// Unregistering twice is harmless.
	h.Unregister(c1)
	assert.Equal(t, 1, h.Count())
}

func TestHub_BroadcastPartialFailureIsolation(t *testing.T) {
	h := startHub(t, Config{HeartbeatInterval: time.Hour})

	c1 := &fakeConn{}
	c2 := &fakeConn{failSend: true}
	c3 := &fakeConn{}
	h.Register(c1)
	h.Register(c2)
	h.Register(c3)

	obs := model.PriceObservation{
		AssetID:    "bitcoin",
		Price:      65000.0,
		ObservedAt: time.Now().UTC(),
	}
	h.Broadcast(obs)

	// Healthy connections got the update despite the dead one.
	assert.Equal(t, 1, c1.received())
	assert.Equal(t, 1, c3.received())
	assert.Equal(t, 0, c2.received())

	// The failed connection was pruned and closed.
	assert.Equal(t, 2, h.Count())
	assert.True(t, c2.isClosed())

	var payload model.PriceObservation
	require.NoError(t, json.Unmarshal(c1.messages[0], &payload))
	assert.Equal(t, obs.AssetID, payload.AssetID)
	assert.Equal(t, obs.Price, payload.Price)
}

func TestHub_BroadcastNoSubscribers(t *testing.T) {
	h := startHub(t, Config{HeartbeatInterval: time.Hour})

	// Just must not panic or block.
	h.Broadcast(model.PriceObservation{AssetID: "bitcoin", Price: 1})
}

func TestHub_HeartbeatDelivered(t *testing.T) {
	h := startHub(t, Config{HeartbeatInterval: 20 * time.Millisecond})

	c := &fakeConn{}
	h.Register(c)

	require.Eventually(t, func() bool {
		return c.received() >= 1
	}, time.Second, 5*time.Millisecond)

	var hb model.Heartbeat
	c.mu.Lock()
	first := c.messages[0]
	c.mu.Unlock()
	require.NoError(t, json.Unmarshal(first, &hb))
	assert.Equal(t, "heartbeat", hb.Type)
	assert.False(t, hb.Timestamp.IsZero())
}

func TestHub_HeartbeatPrunesDeadConnection(t *testing.T) {
	h := startHub(t, Config{HeartbeatInterval: 20 * time.Millisecond})

	c := &fakeConn{failSend: true}
	h.Register(c)

	require.Eventually(t, func() bool {
		return h.Count() == 0
	}, time.Second, 5*time.Millisecond)
	assert.True(t, c.isClosed())
}
