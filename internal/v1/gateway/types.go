package gateway

import "encoding/json"

// Envelope is the single wire frame used for every message in both
// directions: inbound commands and outbound broadcasts/acks alike.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	AckID   string          `json:"ackId,omitempty"`
}

// ackPayload is the body of an "ack:<id>" reply.
type ackPayload struct {
	OK    bool `json:"ok"`
	Data  any  `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// PlayerView is one occupant's wire-visible identity within a RoomState.
type PlayerView struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
	Color    string `json:"color,omitempty"`
}

// RoomState is the wire shape for room:state broadcasts and acks.
type RoomState struct {
	RoomID  string       `json:"roomId"`
	Players []PlayerView `json:"players"`
	Status  string       `json:"status"`
}

// GameSnapshotPlayers names the two seats in a GameSnapshot.
type GameSnapshotPlayers struct {
	White string `json:"white"`
	Black string `json:"black"`
}

// ClockMs is the wire shape for a game snapshot's remaining time.
type ClockMs struct {
	W int64 `json:"w"`
	B int64 `json:"b"`
}

// GameSnapshot is the wire shape for game:state/game:over broadcasts.
type GameSnapshot struct {
	RoomID      string              `json:"roomId"`
	FEN         string              `json:"fen"`
	Turn        string              `json:"turn"`
	IsCheck     bool                `json:"isCheck"`
	Status      string              `json:"status"`
	WinnerColor string              `json:"winnerColor,omitempty"`
	ClockMs     ClockMs             `json:"clockMs"`
	Players     GameSnapshotPlayers `json:"players"`
}

// MoveByView identifies the mover in a MoveResult.
type MoveByView struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// MoveResult is the wire shape for chess:move broadcasts and acks.
type MoveResult struct {
	RoomID string     `json:"roomId"`
	From   string     `json:"from"`
	To     string     `json:"to"`
	SAN    string     `json:"san"`
	FEN    string     `json:"fen"`
	Turn   string     `json:"turn"`
	By     MoveByView `json:"by"`
}

// GameStartEvent is the wire shape for game:start broadcasts.
type GameStartEvent struct {
	RoomID string `json:"roomId"`
	White  string `json:"white"`
	Black  string `json:"black"`
	FEN    string `json:"fen"`
	Turn   string `json:"turn"`
}

// StatusEvent is the wire shape for draw:status/rematch:status broadcasts.
type StatusEvent struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	By      string `json:"by,omitempty"`
}

// RequestedEvent is the wire shape for draw:requested/rematch:requested,
// delivered only to the opponent's socket set.
type RequestedEvent struct {
	From FromView `json:"from"`
}

// FromView identifies the proposer/inviter in a targeted event.
type FromView struct {
	UserID string `json:"userId"`
}

// InviteReceivedEvent is the wire shape for invite:received.
type InviteReceivedEvent struct {
	From       FromView `json:"from"`
	RoomID     string   `json:"roomId"`
	InviteLink string   `json:"inviteLink"`
}

// roomErrorEvent is the wire shape for room:error.
type roomErrorEvent struct {
	Message string `json:"message"`
}
