package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalchat/internal/backend"
	"globalchat/internal/backend/memory"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	logx.SetOutput(io.Discard)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := NewClient(conn, "u1")
		if err := hub.Attach(context.Background(), "messages", backend.EventInsert, client); err != nil {
			client.Reject(err)
			return
		}

		go client.WritePump()
		client.ReadPump()
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestNewFrame(t *testing.T) {
	frame, err := NewFrame(TypeSubscribed, "ref1", SubscribedPayload{Table: "messages", Event: "INSERT"})
	require.NoError(t, err)

	assert.Equal(t, TypeSubscribed, frame.Type)
	assert.Equal(t, "ref1", frame.Ref)
	assert.JSONEq(t, `{"table":"messages","event":"INSERT"}`, string(frame.Payload))
	assert.NotZero(t, frame.Timestamp)

	raw := json.RawMessage(`{"a":1}`)
	frame, err = NewFrame(TypeChange, "ref1", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, frame.Payload)

	frame, err = NewFrame(TypeError, "ref1", nil)
	require.NoError(t, err)
	b, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "payload")
}

func TestChannelKey(t *testing.T) {
	assert.Equal(t, "messages:INSERT", ChannelKey("messages", backend.EventInsert))
	assert.Equal(t, "messages:*", ChannelKey("messages", backend.EventAll))
}

func TestSubscriberReceivesAckAndChanges(t *testing.T) {
	store := memory.New()
	hub := NewHub(store)
	t.Cleanup(hub.Shutdown)

	conn := dial(t, newTestServer(t, hub))

	ack := readFrame(t, conn)
	assert.Equal(t, TypeSubscribed, ack.Type)
	assert.NotEmpty(t, ack.Ref)

	require.NoError(t, store.Insert(context.Background(), "messages", backend.Row{"content": "hi"}))

	frame := readFrame(t, conn)
	assert.Equal(t, TypeChange, frame.Type)
	assert.Equal(t, ack.Ref, frame.Ref)

	var change backend.Change
	require.NoError(t, json.Unmarshal(frame.Payload, &change))
	assert.Equal(t, "hi", change.New["content"])
}

func TestEmptyChannelShutsDownAfterInactivity(t *testing.T) {
	store := memory.New()
	hub := NewHub(store)
	hub.inactivity = 50 * time.Millisecond
	t.Cleanup(hub.Shutdown)

	conn := dial(t, newTestServer(t, hub))
	readFrame(t, conn)

	require.Equal(t, 1, hub.ChannelCount())
	require.Equal(t, 1, store.SubscriberCount())

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return hub.ChannelCount() == 0 && store.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	second := dial(t, newTestServer(t, hub))
	assert.Equal(t, TypeSubscribed, readFrame(t, second).Type)
	assert.Equal(t, 1, hub.ChannelCount())
}

func TestShutdownClosesSubscribers(t *testing.T) {
	store := memory.New()
	hub := NewHub(store)

	conn := dial(t, newTestServer(t, hub))
	readFrame(t, conn)

	hub.Shutdown()
	hub.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, store.SubscriberCount())
}

func TestAttachFailsWhenUpstreamFails(t *testing.T) {
	store := memory.New()
	store.SetError(memory.OpSubscribe, memory.ErrInjected)
	hub := NewHub(store)
	t.Cleanup(hub.Shutdown)

	conn := dial(t, newTestServer(t, hub))

	frame := readFrame(t, conn)
	assert.Equal(t, TypeError, frame.Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, errs.ErrRealtime, payload.Code)
	assert.Equal(t, 0, hub.ChannelCount())
}

func TestAttachDoesNotHoldHubWhileChannelIsBusy(t *testing.T) {
	logx.SetOutput(io.Discard)
	hub := NewHub(memory.New())
	t.Cleanup(hub.Shutdown)

	// A channel whose Run loop never picks up registrations.
	stalled := newChannel("global_chat_messages", backend.EventInsert, hub.cleanup, time.Minute)
	hub.mu.Lock()
	hub.channels[stalled.Key] = stalled
	hub.mu.Unlock()

	blocked := make(chan error, 1)
	go func() {
		blocked <- hub.Attach(context.Background(), "global_chat_messages", backend.EventInsert, NewClient(nil, "u1"))
	}()

	done := make(chan error, 1)
	go func() {
		done <- hub.Attach(context.Background(), "user_profiles", backend.EventAll, NewClient(nil, "u2"))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("attach to an idle channel waited on a busy one")
	}
	assert.Equal(t, 2, hub.ChannelCount())

	// Once the stalled channel is gone the waiting client moves to a fresh one.
	close(stalled.done)
	select {
	case err := <-blocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("attach never returned after the channel finished")
	}

	hub.mu.Lock()
	current := hub.channels[stalled.Key]
	hub.mu.Unlock()
	assert.NotSame(t, stalled, current)
}
