package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/chess-session-core/internal/v1/logging"
	"github.com/example/chess-session-core/internal/v1/metrics"
	"github.com/example/chess-session-core/internal/v1/room"
	"github.com/example/chess-session-core/internal/v1/social"
)

// Room membership error strings, returned verbatim in acks per the wire
// contract. Distinct from the room package's own sentinels because these
// concern Hub-level registry state (Room↔User index), not Room internals.
var (
	errNotInARoom      = "You are not in a room"
	errAlreadyInARoom  = "You are already in a room"
	errLeaveFirst      = "Leave your current room first"
	errRoomNotFound    = "Room not found"
	errRoomGone        = "Room no longer exists"
	errInvalidRoom     = "Invalid room"
)

type handlerFunc func(h *Hub, c *Client, payload json.RawMessage) (any, string)

var dispatchTable = map[string]handlerFunc{
	"room:create":           handleRoomCreate,
	"room:join":             handleRoomJoin,
	"room:leave":            handleRoomLeave,
	"room:state":            handleRoomState,
	"game:state":            handleGameState,
	"chess:move":            handleChessMove,
	"invite:send":           handleInviteSend,
	"game:rematch:request":  handleRematchRequest,
	"game:rematch:respond":  handleRematchRespond,
	"game:draw:request":     handleDrawRequest,
	"game:draw:respond":     handleDrawRespond,
}

// dispatch resolves an inbound envelope to its handler and replies exactly
// once via ack, per spec.md §4.5's "never silently drop".
func (h *Hub) dispatch(c *Client, env Envelope) {
	handler, ok := dispatchTable[env.Event]
	if !ok {
		logging.Warn(ctxForClient(c), "unknown event", zap.String("event", env.Event))
		c.ack(env.AckID, nil, "Unknown event")
		return
	}

	start := time.Now()
	data, errMsg := handler(h, c, env.Payload)
	metrics.EventProcessingDuration.WithLabelValues(env.Event).Observe(time.Since(start).Seconds())

	status := "ok"
	if errMsg != "" {
		status = "error"
		logging.Warn(ctxForClient(c), "event rejected", zap.String("event", env.Event), zap.String("error", errMsg))
	}
	metrics.GatewayEvents.WithLabelValues(env.Event, status).Inc()

	c.ack(env.AckID, data, errMsg)
}

func decodePayload[T any](payload json.RawMessage) (T, bool) {
	var out T
	if len(payload) == 0 {
		return out, true
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, false
	}
	return out, true
}

func normalizeRoomID(seed string) string {
	return strings.ToUpper(strings.TrimSpace(seed))
}

func handleRoomCreate(h *Hub, c *Client, payload json.RawMessage) (any, string) {
	req, ok := decodePayload[struct {
		RoomID string `json:"roomId"`
	}](payload)
	if !ok {
		return nil, errInvalidRoom
	}

	if _, already := h.presence.RoomOf(c.userID); already {
		return nil, errAlreadyInARoom
	}

	roomID := normalizeRoomID(req.RoomID)
	if roomID == "" {
		roomID = generateRoomID()
	}
	for {
		existing, exists := h.getRoom(roomID)
		if !exists || existing.IsEmpty() {
			break
		}
		roomID = generateRoomID()
	}

	r := h.createRoom(roomID)
	if _, err := r.Join(room.Player{UserID: c.userID, Username: c.username}); err != nil {
		return nil, err.Error()
	}
	h.setUserRoom(c.userID, roomID)

	return h.buildRoomState(r), ""
}

func handleRoomJoin(h *Hub, c *Client, payload json.RawMessage) (any, string) {
	req, ok := decodePayload[struct {
		RoomID string `json:"roomId"`
	}](payload)
	if !ok || req.RoomID == "" {
		return nil, errInvalidRoom
	}
	roomID := normalizeRoomID(req.RoomID)

	if current, already := h.presence.RoomOf(c.userID); already && current != roomID {
		return nil, errLeaveFirst
	}

	r, exists := h.getRoom(roomID)
	if !exists {
		return nil, errRoomNotFound
	}

	started, err := r.Join(room.Player{UserID: c.userID, Username: c.username})
	if err != nil {
		return nil, err.Error()
	}
	h.setUserRoom(c.userID, roomID)

	h.broadcastRoomState(roomID)
	if started {
		h.broadcastGameStart(r)
	}

	return h.buildRoomState(r), ""
}

func handleRoomLeave(h *Hub, c *Client, _ json.RawMessage) (any, string) {
	roomID, ok := h.presence.RoomOf(c.userID)
	if !ok {
		return nil, errNotInARoom
	}

	r, exists := h.getRoom(roomID)
	if !exists {
		h.clearUserRoom(c.userID)
		return struct{}{}, ""
	}

	_, hadGame := r.Snapshot(time.Now())

	nowEmpty := r.Leave(c.userID)
	h.clearUserRoom(c.userID)

	if hadGame {
		h.broadcastToRoom(roomID, "room:error", roomErrorEvent{Message: fmt.Sprintf("%s left the room", c.username)})
	}
	if nowEmpty {
		h.removeRoomIfEmpty(r)
	} else {
		h.broadcastRoomState(roomID)
	}

	return struct{}{}, ""
}

func handleRoomState(h *Hub, c *Client, _ json.RawMessage) (any, string) {
	roomID, ok := h.presence.RoomOf(c.userID)
	if !ok {
		return nil, errNotInARoom
	}
	r, exists := h.getRoom(roomID)
	if !exists {
		return nil, errRoomGone
	}
	return h.buildRoomState(r), ""
}

func handleGameState(h *Hub, c *Client, _ json.RawMessage) (any, string) {
	roomID, ok := h.presence.RoomOf(c.userID)
	if !ok {
		return nil, errNotInARoom
	}
	r, exists := h.getRoom(roomID)
	if !exists {
		return nil, errRoomGone
	}
	snap, hasGame := r.Snapshot(time.Now())
	if !hasGame {
		return nil, room.ErrGameNotStarted.Error()
	}
	return h.buildGameSnapshot(r, snap), ""
}

func handleChessMove(h *Hub, c *Client, payload json.RawMessage) (any, string) {
	req, ok := decodePayload[struct {
		RoomID    string `json:"roomId"`
		From      string `json:"from"`
		To        string `json:"to"`
		Promotion string `json:"promotion"`
	}](payload)
	if !ok {
		return nil, errInvalidRoom
	}

	roomID, inRoom := h.presence.RoomOf(c.userID)
	if !inRoom {
		return nil, errNotInARoom
	}
	if req.RoomID != "" && normalizeRoomID(req.RoomID) != roomID {
		return nil, errInvalidRoom
	}

	if h.rateLimiter != nil {
		if err := h.rateLimiter.CheckWebSocketMove(context.Background(), c.userID); err != nil {
			return nil, "Too many moves, slow down"
		}
	}

	r, exists := h.getRoom(roomID)
	if !exists {
		return nil, errRoomGone
	}

	applied, err := r.ApplyMove(time.Now(), c.userID, req.From, req.To, req.Promotion)
	if err != nil {
		if errors.Is(err, room.ErrIllegalMove) {
			metrics.MovesTotal.WithLabelValues("illegal").Inc()
		}
		return nil, err.Error()
	}
	metrics.MovesTotal.WithLabelValues("legal").Inc()

	moveResult := MoveResult{
		RoomID: roomID,
		From:   req.From,
		To:     req.To,
		SAN:    applied.SAN,
		FEN:    applied.FEN,
		Turn:   string(applied.Turn),
		By:     MoveByView{UserID: c.userID, Username: c.username},
	}
	h.broadcastToRoom(roomID, "chess:move", moveResult)
	h.broadcastToRoom(roomID, "game:state", h.buildGameSnapshot(r, applied.Snapshot))

	if applied.Snapshot.Status != "active" {
		metrics.GameCompletionsTotal.WithLabelValues(applied.Snapshot.Status).Inc()
		h.broadcastToRoom(roomID, "game:over", h.buildGameSnapshot(r, applied.Snapshot))
	}

	return moveResult, ""
}

func handleInviteSend(h *Hub, c *Client, payload json.RawMessage) (any, string) {
	req, ok := decodePayload[struct {
		ToUserID string `json:"toUserId"`
		RoomID   string `json:"roomId"`
	}](payload)
	if !ok {
		return nil, "Missing target user"
	}

	if h.social == nil {
		return nil, "Create or join a room first"
	}

	result, err := social.Invite(context.Background(), h.social, hubMembership{h}, hubOnline{h}, h.origin, c.userID, req.ToUserID, req.RoomID)
	if err != nil {
		metrics.InviteAttemptsTotal.WithLabelValues("rejected").Inc()
		return nil, err.Error()
	}
	metrics.InviteAttemptsTotal.WithLabelValues("delivered").Inc()

	h.deliverToUser(req.ToUserID, "invite:received", InviteReceivedEvent{
		From:       FromView{UserID: c.userID},
		RoomID:     result.RoomID,
		InviteLink: result.InviteLink,
	})

	return struct {
		RoomID     string `json:"roomId"`
		InviteLink string `json:"inviteLink"`
	}{result.RoomID, result.InviteLink}, ""
}

func handleDrawRequest(h *Hub, c *Client, _ json.RawMessage) (any, string) {
	roomID, ok := h.presence.RoomOf(c.userID)
	if !ok {
		return nil, errNotInARoom
	}
	r, exists := h.getRoom(roomID)
	if !exists {
		return nil, errRoomGone
	}

	opponentID, err := r.ProposeDraw(time.Now(), c.userID)
	if err != nil {
		return nil, err.Error()
	}

	h.deliverToUser(opponentID, "draw:requested", RequestedEvent{From: FromView{UserID: c.userID}})
	h.broadcastToRoom(roomID, "draw:status", StatusEvent{Status: "requested", Message: "Draw offered", By: c.userID})

	return struct {
		WaitingFor string `json:"waitingFor"`
	}{opponentID}, ""
}

func handleDrawRespond(h *Hub, c *Client, payload json.RawMessage) (any, string) {
	req, ok := decodePayload[struct {
		Accept bool `json:"accept"`
	}](payload)
	if !ok {
		return nil, "Invalid request"
	}

	roomID, inRoom := h.presence.RoomOf(c.userID)
	if !inRoom {
		return nil, errNotInARoom
	}
	r, exists := h.getRoom(roomID)
	if !exists {
		return nil, errRoomGone
	}

	accepted, _, err := r.RespondDraw(time.Now(), c.userID, req.Accept)
	if err != nil {
		return nil, err.Error()
	}

	if accepted {
		h.broadcastToRoom(roomID, "draw:status", StatusEvent{Status: "accepted", Message: "Draw agreed", By: c.userID})
		if snap, hasGame := r.Snapshot(time.Now()); hasGame {
			h.broadcastToRoom(roomID, "game:over", h.buildGameSnapshot(r, snap))
			metrics.GameCompletionsTotal.WithLabelValues("draw").Inc()
		}
	} else {
		h.broadcastToRoom(roomID, "draw:status", StatusEvent{Status: "declined", Message: "Draw declined", By: c.userID})
	}

	return struct {
		Accepted bool `json:"accepted"`
	}{accepted}, ""
}

func handleRematchRequest(h *Hub, c *Client, _ json.RawMessage) (any, string) {
	roomID, ok := h.presence.RoomOf(c.userID)
	if !ok {
		return nil, errNotInARoom
	}
	r, exists := h.getRoom(roomID)
	if !exists {
		return nil, errRoomGone
	}

	opponentID, started, err := r.ProposeRematch(time.Now(), c.userID)
	if err != nil {
		return nil, err.Error()
	}

	if started {
		h.finishRematch(r, roomID)
		return struct {
			Started bool `json:"started"`
		}{true}, ""
	}

	h.deliverToUser(opponentID, "rematch:requested", RequestedEvent{From: FromView{UserID: c.userID}})
	h.broadcastToRoom(roomID, "rematch:status", StatusEvent{Status: "requested", Message: "Rematch offered", By: c.userID})

	return struct {
		WaitingFor string `json:"waitingFor"`
	}{opponentID}, ""
}

func handleRematchRespond(h *Hub, c *Client, payload json.RawMessage) (any, string) {
	req, ok := decodePayload[struct {
		Accept bool `json:"accept"`
	}](payload)
	if !ok {
		return nil, "Invalid request"
	}

	roomID, inRoom := h.presence.RoomOf(c.userID)
	if !inRoom {
		return nil, errNotInARoom
	}
	r, exists := h.getRoom(roomID)
	if !exists {
		return nil, errRoomGone
	}

	started, _, err := r.RespondRematch(time.Now(), c.userID, req.Accept)
	if err != nil {
		return nil, err.Error()
	}

	if started {
		h.finishRematch(r, roomID)
		return struct {
			Started bool `json:"started"`
		}{true}, ""
	}

	h.broadcastToRoom(roomID, "rematch:status", StatusEvent{Status: "declined", Message: "Rematch declined", By: c.userID})
	return struct{}{}, ""
}

func (h *Hub) finishRematch(r *room.Room, roomID string) {
	h.broadcastToRoom(roomID, "rematch:status", StatusEvent{Status: "started", Message: "Rematch starting"})
	h.broadcastGameStart(r)
}

func (h *Hub) broadcastGameStart(r *room.Room) {
	snap, ok := r.Snapshot(time.Now())
	if !ok {
		return
	}
	h.broadcastToRoom(r.RoomID, "game:start", GameStartEvent{
		RoomID: r.RoomID,
		White:  snap.WhiteUserID,
		Black:  snap.BlackUserID,
		FEN:    snap.FEN,
		Turn:   string(snap.Turn),
	})
	h.broadcastToRoom(r.RoomID, "game:state", h.buildGameSnapshot(r, snap))
}

// hubMembership adapts Hub to social.RoomMembership without exposing Hub's
// registries to the social package.
type hubMembership struct{ h *Hub }

func (m hubMembership) CurrentRoomID(userID string) (string, bool) {
	return m.h.presence.RoomOf(userID)
}

func (m hubMembership) IsSeated(roomID, userID string) bool {
	r, ok := m.h.getRoom(roomID)
	if !ok {
		return false
	}
	for _, p := range r.Players() {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type hubOnline struct{ h *Hub }

func (o hubOnline) IsOnline(userID string) bool { return o.h.presence.IsOnline(userID) }
