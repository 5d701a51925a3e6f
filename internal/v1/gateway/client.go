package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/chess-session-core/internal/v1/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a middleman between one websocket connection and the Hub. Reads
// and writes each run on their own goroutine; readPump is the connection's
// only reader, writePump its only writer, per gorilla/websocket's single-
// goroutine-per-direction discipline.
type Client struct {
	hub *Hub
	conn *websocket.Conn

	userID       string
	username     string
	connectionID string

	send      chan []byte
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID, username, connectionID string) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		userID:       userID,
		username:     username,
		connectionID: connectionID,
		send:         make(chan []byte, sendBufferSize),
	}
}

// teardown closes the underlying connection exactly once, however many
// goroutines (deliver, readPump, writePump) decide the connection is done.
// It never touches c.send, and nothing else closes that channel either:
// unregister, which runs after readPump's ReadMessage unblocks with an
// error, only removes the client from the Hub's registries.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.teardown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				logging.Warn(ctxForClient(c), "websocket read error", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logging.Warn(ctxForClient(c), "dropped malformed envelope", zap.Error(err))
			continue
		}

		c.hub.dispatch(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver enqueues an envelope for this connection. Non-blocking: a client
// reading too slowly has its connection torn down rather than stalling the
// hub's dispatch goroutine.
func (c *Client) deliver(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error(ctxForClient(c), "failed to marshal outbound payload", zap.String("event", event), zap.Error(err))
		return
	}

	env := Envelope{Event: event, Payload: data}
	raw, err := json.Marshal(env)
	if err != nil {
		logging.Error(ctxForClient(c), "failed to marshal envelope", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case c.send <- raw:
	default:
		logging.Warn(ctxForClient(c), "client send buffer full, dropping connection", zap.String("connectionId", c.connectionID))
		c.teardown()
	}
}

func (c *Client) ack(ackID string, data any, errMsg string) {
	if ackID == "" {
		return
	}
	payload := ackPayload{OK: errMsg == "", Data: data, Error: errMsg}
	c.deliver("ack:"+ackID, payload)
}

// ctxForClient stamps a connection's identity onto a logging context.
func ctxForClient(c *Client) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, logging.UserIDKey, c.userID)
	return ctx
}
