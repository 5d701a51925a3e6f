package gateway

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

// newTestClient builds a conn-free Client and adds it to the Hub's connection
// registry, so room broadcasts reach its send buffer; dispatch/deliver never
// touch the underlying websocket connection directly.
func newTestClient(h *Hub, userID, username string) *Client {
	c := newClient(h, nil, userID, username, userID+"-conn")
	h.mu.Lock()
	h.connections[userID] = map[string]*Client{c.connectionID: c}
	h.mu.Unlock()
	return c
}

func drain(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	default:
		t.Fatal("expected a queued message, found none")
		return Envelope{}
	}
}

func decodeAckData(t *testing.T, env Envelope, out any) ackPayload {
	t.Helper()
	var ack ackPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ack))
	if out != nil && ack.Data != nil {
		b, err := json.Marshal(ack.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, out))
	}
	return ack
}

func newTestHub() *Hub {
	return NewHub(Deps{Origin: "https://app.test"})
}

func dispatchAck(t *testing.T, h *Hub, c *Client, event string, payload any) ackPayload {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = b
	}
	h.dispatch(c, Envelope{Event: event, Payload: raw, AckID: "ack-1"})
	// Handlers broadcast before dispatch queues the ack, so the ack is the
	// last queued envelope; the ones before it are put back in order.
	var queued [][]byte
	for len(c.send) > 0 {
		queued = append(queued, <-c.send)
	}
	require.NotEmpty(t, queued, "expected a queued message, found none")
	for _, m := range queued[:len(queued)-1] {
		c.send <- m
	}
	var env Envelope
	require.NoError(t, json.Unmarshal(queued[len(queued)-1], &env))
	assert.Equal(t, "ack:ack-1", env.Event)
	return decodeAckData(t, env, nil)
}

func TestRoomCreateThenJoinStartsGame(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHub()
	alice := newTestClient(h, "u1", "alice")
	bob := newTestClient(h, "u2", "bob")

	createAck := dispatchAck(t, h, alice, "room:create", struct{}{})
	require.True(t, createAck.OK)

	var roomState RoomState
	b, _ := json.Marshal(createAck.Data)
	require.NoError(t, json.Unmarshal(b, &roomState))
	assert.Equal(t, "waiting", roomState.Status)
	roomID := roomState.RoomID
	require.Len(t, roomID, 8)

	joinAck := dispatchAck(t, h, bob, "room:join", struct {
		RoomID string `json:"roomId"`
	}{roomID})
	require.True(t, joinAck.OK)

	// room:state broadcast + game:start + game:state queued on both clients.
	aliceEvents := []string{drain(t, alice).Event, drain(t, alice).Event, drain(t, alice).Event}
	assert.Contains(t, aliceEvents, "room:state")
	assert.Contains(t, aliceEvents, "game:start")
	assert.Contains(t, aliceEvents, "game:state")
}

func TestChessMoveRejectsOutOfTurn(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHub()
	alice := newTestClient(h, "u1", "alice")
	bob := newTestClient(h, "u2", "bob")

	dispatchAck(t, h, alice, "room:create", struct{}{})
	joinAck := dispatchAck(t, h, bob, "room:join", struct {
		RoomID string `json:"roomId"`
	}{mustRoomID(h, "u1")})
	require.True(t, joinAck.OK)

	drainAll(alice)
	drainAll(bob)

	r, _ := h.getRoom(mustRoomID(h, "u1"))
	snap, ok := r.Snapshot(time.Now())
	require.True(t, ok)

	var black *Client
	if snap.WhiteUserID == "u1" {
		black = bob
	} else {
		black = alice
	}

	ack := dispatchAck(t, h, black, "chess:move", struct {
		From string `json:"from"`
		To   string `json:"to"`
	}{"e7", "e5"})
	assert.False(t, ack.OK)
	assert.Equal(t, "Not your turn", ack.Error)
}

func TestDrawOfferAcceptedEndsGame(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHub()
	alice := newTestClient(h, "u1", "alice")
	bob := newTestClient(h, "u2", "bob")

	dispatchAck(t, h, alice, "room:create", struct{}{})
	dispatchAck(t, h, bob, "room:join", struct {
		RoomID string `json:"roomId"`
	}{mustRoomID(h, "u1")})
	drainAll(alice)
	drainAll(bob)

	reqAck := dispatchAck(t, h, alice, "game:draw:request", struct{}{})
	require.True(t, reqAck.OK)
	drainAll(alice)
	drainAll(bob)

	respAck := dispatchAck(t, h, bob, "game:draw:respond", struct {
		Accept bool `json:"accept"`
	}{true})
	require.True(t, respAck.OK)

	events := drainAllEvents(bob)
	assert.Contains(t, events, "draw:status")
	assert.Contains(t, events, "game:over")
}

func mustRoomID(h *Hub, userID string) string {
	roomID, _ := h.presence.RoomOf(userID)
	return roomID
}

func drainAll(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func drainAllEvents(c *Client) []string {
	var out []string
	for {
		select {
		case raw := <-c.send:
			var env Envelope
			_ = json.Unmarshal(raw, &env)
			out = append(out, env.Event)
		default:
			return out
		}
	}
}
