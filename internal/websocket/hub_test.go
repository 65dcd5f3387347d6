package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tutorchat/internal/models"
)

func serveHub(t *testing.T, hub *Hub, sessionID uuid.UUID) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, err := hub.Upgrade(w, r, sessionID)
		if err != nil {
			return
		}
		go func() {
			defer hub.Unregister(sessionID, client)
			for {
				if _, err := client.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) models.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg models.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_PublishLocal(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	id := uuid.New()
	srv := serveHub(t, hub, id)

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Connections(id) == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), id, models.WSMessage{Type: models.WSTypeTurn, Payload: "hello"})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, models.WSTypeTurn, msg.Type)
		assert.Equal(t, "hello", msg.Payload)
	}
}

func TestHub_PublishOtherSessionNotDelivered(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	id := uuid.New()
	srv := serveHub(t, hub, id)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Connections(id) == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), uuid.New(), models.WSMessage{Type: models.WSTypeTurn, Payload: "elsewhere"})
	hub.Publish(context.Background(), id, models.WSMessage{Type: models.WSTypeSession, Payload: "mine"})

	msg := readMessage(t, conn)
	assert.Equal(t, "mine", msg.Payload)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	id := uuid.New()
	srv := serveHub(t, hub, id)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Connections(id) == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Connections(id) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	// Two hubs sharing Redis stand in for two replicas.
	hubA := NewHub(rdb, zap.NewNop())
	hubB := NewHub(rdb, zap.NewNop())
	id := uuid.New()

	conn := dial(t, serveHub(t, hubB, id))
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(updatesKeyPrefix + id.String())[updatesKeyPrefix+id.String()] == 1
	}, 2*time.Second, 10*time.Millisecond)

	hubA.Publish(context.Background(), id, models.WSMessage{Type: models.WSTypeTurn, Payload: "from a"})

	msg := readMessage(t, conn)
	assert.Equal(t, models.WSTypeTurn, msg.Type)
	assert.Equal(t, "from a", msg.Payload)
}

func TestHub_RedisSubscriptionEndsWithLastConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := NewHub(rdb, zap.NewNop())
	id := uuid.New()
	channel := updatesKeyPrefix + id.String()

	conn := dial(t, serveHub(t, hub, id))
	require.Eventually(t, func() bool { return mr.PubSubNumSub(channel)[channel] == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return mr.PubSubNumSub(channel)[channel] == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_SendEncodesJSON(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	id := uuid.New()
	var got *Client
	ready := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := hub.Upgrade(w, r, id)
		if err != nil {
			return
		}
		got = c
		close(ready)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	<-ready
	require.NoError(t, got.Send(models.WSMessage{Type: models.WSTypeError, Payload: models.ErrorEvent{ErrorCode: "X", ErrorMessage: "y"}}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"error"`, string(raw["type"]))
}
