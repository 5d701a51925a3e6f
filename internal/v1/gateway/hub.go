// Package gateway is the event-dispatched boundary: it authenticates each
// connection, owns the registries that cut across rooms (rooms by id,
// presence, the room-by-user index), and fans broadcasts out to the
// connections subscribed to a room or addressed to a specific user.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/chess-session-core/internal/v1/auth"
	"github.com/example/chess-session-core/internal/v1/bus"
	"github.com/example/chess-session-core/internal/v1/logging"
	"github.com/example/chess-session-core/internal/v1/metrics"
	"github.com/example/chess-session-core/internal/v1/presence"
	"github.com/example/chess-session-core/internal/v1/ratelimit"
	"github.com/example/chess-session-core/internal/v1/room"
	"github.com/example/chess-session-core/internal/v1/social"
)

// TokenValidator is satisfied by both auth.Validator and auth.MockValidator.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// Hub is the process-wide registry: rooms by id, plus presence. It never
// holds Hub.mu while calling into a Room's own lock, and never holds a
// Room's lock while reaching back into Hub state (spec.md §5's ordering:
// registry lock first, room lock second, never reversed).
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room.Room

	presence    *presence.Directory
	connections map[string]map[string]*Client // userId -> connectionId -> Client

	validator   TokenValidator
	bus         *bus.Service
	social      *social.Client
	rateLimiter *ratelimit.RateLimiter
	origin      string
}

// Deps bundles the Hub's external collaborators so construction sites don't
// need a long positional argument list.
type Deps struct {
	Validator   TokenValidator
	Bus         *bus.Service
	Social      *social.Client
	RateLimiter *ratelimit.RateLimiter
	Origin      string
}

// NewHub wires a fresh Hub. Use Reset in tests to clear registries between
// cases without reconstructing collaborators.
func NewHub(deps Deps) *Hub {
	return &Hub{
		rooms:       make(map[string]*room.Room),
		presence:    presence.NewDirectory(),
		connections: make(map[string]map[string]*Client),
		validator:   deps.Validator,
		bus:         deps.Bus,
		social:      deps.Social,
		rateLimiter: deps.RateLimiter,
		origin:      deps.Origin,
	}
}

// Reset clears all registries. Exposed for tests.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms = make(map[string]*room.Room)
	h.presence.Reset()
	h.connections = make(map[string]map[string]*Client)
}

// ServeWS upgrades an HTTP request to a websocket connection, authenticates
// it, registers the connection, and starts its pumps. Token is read from the
// Authorization bearer header or, when that is absent, the "token" query
// parameter of the handshake URL — either satisfies spec.md §6's "handshake
// auth payload or header".
func (h *Hub) ServeWS(c *gin.Context) {
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return
	}

	token := bearerToken(c.Request)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket auth failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	connectionID := uuid.NewString()
	client := newClient(h, conn, claims.Subject, claims.Username, connectionID)
	h.register(client)

	go client.writePump()
	go client.readPump()
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return r.URL.Query().Get("token")
}

// register adds a connection to the presence/connections registries and, on
// reconnect to an existing room, re-subscribes it and replays the current
// snapshot.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	becameOnline := h.presence.Connect(c.userID, c.username, c.connectionID)
	if h.connections[c.userID] == nil {
		h.connections[c.userID] = make(map[string]*Client)
	}
	h.connections[c.userID][c.connectionID] = c
	roomID, hasRoom := h.presence.RoomOf(c.userID)
	h.mu.Unlock()

	metrics.IncConnection()

	if hasRoom {
		h.sendRoomAndGameSnapshot(roomID, c)
	}
	if becameOnline {
		h.broadcastOnlineList()
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if conns, ok := h.connections[c.userID]; ok {
		delete(conns, c.connectionID)
		if len(conns) == 0 {
			delete(h.connections, c.userID)
		}
	}
	wentOffline := h.presence.Disconnect(c.userID, c.connectionID)
	roomID, hasRoom := h.presence.RoomOf(c.userID)
	h.mu.Unlock()

	metrics.DecConnection()

	if wentOffline && hasRoom {
		h.broadcastRoomState(roomID)
	}
	if wentOffline {
		h.broadcastOnlineList()
	}
}

func (h *Hub) getRoom(roomID string) (*room.Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	return r, ok
}

func (h *Hub) createRoom(roomID string) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.rooms[roomID]; ok {
		return existing
	}
	r := room.New(roomID)
	h.rooms[roomID] = r
	return r
}

func (h *Hub) removeRoomIfEmpty(r *room.Room) {
	if !r.IsEmpty() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.rooms[r.RoomID]; ok && existing == r {
		delete(h.rooms, r.RoomID)
	}
}

func (h *Hub) setUserRoom(userID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presence.SetRoom(userID, roomID)
}

func (h *Hub) clearUserRoom(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presence.ClearRoom(userID)
}

func (h *Hub) connectionsFor(userID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.connections[userID]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// connectionsInRoom returns every local connection whose owner currently
// occupies roomID, used to fan broadcasts out without Room needing any
// notion of a connection.
func (h *Hub) connectionsInRoom(roomID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*Client
	for userID, conns := range h.connections {
		if assignedRoom, ok := h.presence.RoomOf(userID); ok && assignedRoom == roomID {
			for _, c := range conns {
				out = append(out, c)
			}
		}
	}
	return out
}

func (h *Hub) broadcastToRoom(roomID, event string, payload any) {
	for _, c := range h.connectionsInRoom(roomID) {
		c.deliver(event, payload)
	}
	if h.bus != nil {
		_ = h.bus.Publish(context.Background(), roomID, event, payload, h.processID())
	}
}

func (h *Hub) deliverToUser(userID, event string, payload any) {
	for _, c := range h.connectionsFor(userID) {
		c.deliver(event, payload)
	}
	if h.bus != nil {
		_ = h.bus.PublishDirect(context.Background(), userID, event, payload, h.processID())
	}
}

func (h *Hub) broadcastOnlineList() {
	online := h.presence.Online()
	refs := make([]presence.UserRef, len(online))
	copy(refs, online)

	h.mu.Lock()
	allUserIDs := make([]string, 0, len(h.connections))
	for userID := range h.connections {
		allUserIDs = append(allUserIDs, userID)
	}
	h.mu.Unlock()

	for _, userID := range allUserIDs {
		for _, c := range h.connectionsFor(userID) {
			c.deliver("presence:online", refs)
		}
	}
}

func (h *Hub) broadcastRoomState(roomID string) {
	r, ok := h.getRoom(roomID)
	if !ok {
		return
	}
	h.broadcastToRoom(roomID, "room:state", h.buildRoomState(r))
}

func (h *Hub) buildRoomState(r *room.Room) RoomState {
	players := r.Players()
	status := string(r.Status())

	snap, hasGame := r.Snapshot(time.Now())

	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		view := PlayerView{UserID: p.UserID, Username: p.Username, Online: h.presence.IsOnline(p.UserID)}
		if hasGame {
			switch p.UserID {
			case snap.WhiteUserID:
				view.Color = "w"
			case snap.BlackUserID:
				view.Color = "b"
			}
		}
		views = append(views, view)
	}

	return RoomState{RoomID: r.RoomID, Players: views, Status: status}
}

func (h *Hub) buildGameSnapshot(r *room.Room, snap room.Snapshot) GameSnapshot {
	out := GameSnapshot{
		RoomID:  r.RoomID,
		FEN:     snap.FEN,
		Turn:    string(snap.Turn),
		IsCheck: snap.IsCheck,
		Status:  snap.Status,
		ClockMs: ClockMs{W: snap.ClockWhiteMs, B: snap.ClockBlackMs},
		Players: GameSnapshotPlayers{White: snap.WhiteUserID, Black: snap.BlackUserID},
	}
	if snap.HasWinner {
		out.WinnerColor = string(snap.WinnerColor)
	}
	return out
}

func (h *Hub) sendRoomAndGameSnapshot(roomID string, c *Client) {
	r, ok := h.getRoom(roomID)
	if !ok {
		return
	}
	c.deliver("room:state", h.buildRoomState(r))
	if snap, ok := r.Snapshot(time.Now()); ok {
		c.deliver("game:state", h.buildGameSnapshot(r, snap))
	}
}

// processID distinguishes this process's own publishes from a peer
// process's when using the Redis bus, so a publisher never re-delivers its
// own broadcast to itself a second time.
func (h *Hub) processID() string {
	return processInstanceID
}

var processInstanceID = uuid.NewString()

// generateRoomID derives an 8-character uppercase alphanumeric room id from
// a fresh UUID, per spec.md §6's room-id format.
func generateRoomID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:8])
}
