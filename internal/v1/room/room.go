// Package room implements the per-room game state machine: seating up to
// two players, starting a Game when both seats fill, applying moves with the
// ordered pre-checks the wire contract promises, and running the draw and
// rematch side protocols. Each Room serializes its own mutations behind a
// single mutex; the Gateway is responsible for never holding a registry lock
// while calling into one.
package room

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/example/chess-session-core/internal/v1/chess"
	"github.com/example/chess-session-core/internal/v1/clock"
)

// Status is the room-visible lifecycle stage, distinct from a Game's
// terminal state.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusReady   Status = "ready"
	StatusPlaying Status = "playing"
)

// Sentinel errors surfaced verbatim in event acks.
var (
	ErrRoomFull             = errors.New("Room is full")
	ErrGameNotStarted       = errors.New("Game not started")
	ErrGameAlreadyOver      = errors.New("Game is already over")
	ErrNotAPlayer           = errors.New("You are not a player in this game")
	ErrNotYourTurn          = errors.New("Not your turn")
	ErrMoveMissingSquares   = errors.New("Move must include from and to squares")
	ErrIllegalMove          = errors.New("Illegal move")
	ErrRematchNotAvailable  = errors.New("Rematch is only available after game over")
	ErrNoRematchPending     = errors.New("No rematch request to respond to")
	ErrOnlyPlayersRematch   = errors.New("Only players can request rematch")
	ErrOnlyPlayersRespond   = errors.New("Only players can respond to rematch")
	ErrOpponentGone         = errors.New("Opponent is no longer in the room")
)

// Player is the room-visible identity of a seated occupant.
type Player struct {
	UserID   string
	Username string
}

// MoveLogEntry records one applied move.
type MoveLogEntry struct {
	From      string
	To        string
	SAN       string
	ByUserID  string
	Timestamp time.Time
}

// Game is the in-progress or just-terminated contest within a Room. Only one
// Game exists per Room at a time; it is replaced wholesale on rematch.
type Game struct {
	Rules          *chess.Game
	WhiteUserID    string
	BlackUserID    string
	Clock          *clock.Clock
	AgreedDraw     bool
	PendingRematch map[string]struct{}
	PendingDraw    map[string]struct{}
	MoveLog        []MoveLogEntry

	// LeftUserID is set to a seated player's id once they leave the room
	// after this Game has already ended. A still-active Game is discarded
	// outright on leave instead (see Room.Leave); this only tracks the
	// terminal case, where the record is kept around for a final snapshot
	// but rematch is no longer available.
	LeftUserID string
}

// Snapshot is the authoritative, side-effect-free view of a Game at an
// instant — the thing every "status" query and broadcast is built from.
type Snapshot struct {
	RoomID       string
	FEN          string
	Turn         chess.Color
	IsCheck      bool
	Status       string // "active" | "checkmate" | "stalemate" | "insufficient_material" | "threefold_repetition" | "draw" | "timeout"
	WinnerColor  chess.Color
	HasWinner    bool
	ClockWhiteMs int64
	ClockBlackMs int64
	WhiteUserID  string
	BlackUserID  string
}

// Room is the per-game aggregate: up to two seated players and at most one
// Game. All methods acquire the room's own mutex; callers must not hold any
// other lock when calling in.
type Room struct {
	mu      sync.Mutex
	RoomID  string
	players []Player // ordered, size 0..2
	game    *Game
}

// New returns an empty room with the given id.
func New(roomID string) *Room {
	return &Room{RoomID: roomID}
}

// Players returns a snapshot of currently seated players.
func (r *Room) Players() []Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Player, len(r.players))
	copy(out, r.players)
	return out
}

// Status reports the room-level lifecycle stage.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Room) statusLocked() Status {
	switch {
	case r.game != nil:
		return StatusPlaying
	case len(r.players) == 2:
		return StatusReady
	default:
		return StatusWaiting
	}
}

// IsEmpty reports whether the room has no occupants and is eligible for
// removal from the registry.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0
}

// Join seats a user. Re-joining an already-seated user is a no-op success
// (idempotent on reconnect). Returns true if this join caused the room to
// reach two players and start a game.
func (r *Room) Join(user Player) (started bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		if p.UserID == user.UserID {
			return false, nil
		}
	}
	if len(r.players) >= 2 {
		return false, ErrRoomFull
	}

	r.players = append(r.players, user)
	if len(r.players) == 2 && r.game == nil {
		r.maybeStartLocked(time.Now())
		return true, nil
	}
	return false, nil
}

// Leave removes a user from the room. If the user was seated in a still-
// active Game, the Game is discarded entirely (no forfeit recorded, per the
// preserved source behavior). If the Game had already ended, its record is
// kept for a final snapshot but flagged with LeftUserID so a rematch offer
// correctly reports the opponent as gone instead of "not available" or "no
// request pending". Reports whether the room is now empty.
func (r *Room) Leave(userID string) (nowEmpty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.players {
		if p.UserID == userID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}

	if r.game != nil && (r.game.WhiteUserID == userID || r.game.BlackUserID == userID) {
		snap, _ := r.snapshotLocked(time.Now())
		if snap.Status == "active" {
			r.game = nil
		} else {
			r.game.LeftUserID = userID
		}
	}

	return len(r.players) == 0
}

// maybeStartLocked assigns colors by uniform-random permutation and starts a
// fresh Game. Caller must hold the lock and must have verified exactly two
// players and no existing Game.
func (r *Room) maybeStartLocked(now time.Time) {
	white, black := r.players[0].UserID, r.players[1].UserID
	if rand.Intn(2) == 1 {
		white, black = black, white
	}

	r.game = &Game{
		Rules:          chess.NewGame(),
		WhiteUserID:    white,
		BlackUserID:    black,
		Clock:          clock.New(now, chess.White),
		PendingRematch: make(map[string]struct{}),
		PendingDraw:    make(map[string]struct{}),
	}
}

// Snapshot computes the current authoritative game view, folding clock
// elapsed time and re-evaluating termination precedence. Returns false if no
// Game exists.
func (r *Room) Snapshot(now time.Time) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(now)
}

func (r *Room) snapshotLocked(now time.Time) (Snapshot, bool) {
	g := r.game
	if g == nil {
		return Snapshot{}, false
	}

	g.Clock.Sample(now)

	snap := Snapshot{
		RoomID:       r.RoomID,
		FEN:          g.Rules.FEN(),
		Turn:         g.Rules.Turn(),
		IsCheck:      g.Rules.InCheck(),
		ClockWhiteMs: g.Clock.WhiteMs(),
		ClockBlackMs: g.Clock.BlackMs(),
		WhiteUserID:  g.WhiteUserID,
		BlackUserID:  g.BlackUserID,
	}

	switch {
	case g.Clock.WhiteMs() <= 0:
		snap.Status = "timeout"
		snap.WinnerColor, snap.HasWinner = chess.Black, true
	case g.Clock.BlackMs() <= 0:
		snap.Status = "timeout"
		snap.WinnerColor, snap.HasWinner = chess.White, true
	case g.AgreedDraw:
		snap.Status = "draw"
	default:
		switch g.Rules.TerminalState() {
		case chess.Checkmate:
			snap.Status = "checkmate"
			snap.WinnerColor, snap.HasWinner = g.Rules.WinnerOf(chess.Checkmate)
		case chess.Stalemate:
			snap.Status = "stalemate"
		case chess.InsufficientMaterial:
			snap.Status = "insufficient_material"
		case chess.ThreefoldRepetition:
			snap.Status = "threefold_repetition"
		case chess.Draw:
			snap.Status = "draw"
		default:
			snap.Status = "active"
		}
	}

	if snap.Status != "active" {
		g.Clock.Freeze()
	}

	return snap, true
}

// MoveApplied carries everything the Gateway needs to build a chess:move
// broadcast and, if terminal, a game:over broadcast.
type MoveApplied struct {
	SAN      string
	FEN      string
	Turn     chess.Color
	ByUserID string
	Snapshot Snapshot
}

// ApplyMove runs the ordered pre-check sequence and, on success, mutates the
// Game and returns the broadcast material. now is the instant the move was
// received, used for clock sampling and switching.
func (r *Room) ApplyMove(now time.Time, userID, from, to, promotion string) (MoveApplied, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game == nil {
		return MoveApplied{}, ErrGameNotStarted
	}
	g := r.game

	snap, _ := r.snapshotLocked(now)
	if snap.Status != "active" {
		return MoveApplied{}, ErrGameAlreadyOver
	}

	var color chess.Color
	switch userID {
	case g.WhiteUserID:
		color = chess.White
	case g.BlackUserID:
		color = chess.Black
	default:
		return MoveApplied{}, ErrNotAPlayer
	}

	if g.Rules.Turn() != color {
		return MoveApplied{}, ErrNotYourTurn
	}

	if trimmedEmpty(from) || trimmedEmpty(to) {
		return MoveApplied{}, ErrMoveMissingSquares
	}

	result, err := g.Rules.Move(from, to, promotion)
	if err != nil {
		return MoveApplied{}, ErrIllegalMove
	}

	g.Clock.Switch(now)
	g.MoveLog = append(g.MoveLog, MoveLogEntry{
		From: from, To: to, SAN: result.SAN, ByUserID: userID, Timestamp: now,
	})

	newSnap, _ := r.snapshotLocked(now)

	return MoveApplied{
		SAN:      result.SAN,
		FEN:      result.FEN,
		Turn:     result.NextTurn,
		ByUserID: userID,
		Snapshot: newSnap,
	}, nil
}

func trimmedEmpty(s string) bool {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return i == j
}

// OpponentOf returns the other seated player's userId for a player currently
// in a Game, or false if userID is not seated in the current Game.
func (r *Room) OpponentOf(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.game == nil {
		return "", false
	}
	switch userID {
	case r.game.WhiteUserID:
		return r.game.BlackUserID, true
	case r.game.BlackUserID:
		return r.game.WhiteUserID, true
	default:
		return "", false
	}
}

// ProposeDraw adds userID to the pending-draw set. Idempotent. Returns the
// opponent userId so the caller can target a broadcast.
func (r *Room) ProposeDraw(now time.Time, userID string) (opponentID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game == nil {
		return "", ErrGameNotStarted
	}
	snap, _ := r.snapshotLocked(now)
	if snap.Status != "active" {
		return "", ErrGameAlreadyOver
	}

	opponentID, ok := r.opponentOfLocked(userID)
	if !ok {
		return "", ErrNotAPlayer
	}

	r.game.PendingDraw[userID] = struct{}{}
	return opponentID, nil
}

// RespondDraw processes a response to an outstanding draw offer. When
// accept is true and the proposer is pending, the draw is agreed and the
// Game becomes terminal. Either way the pending set is cleared.
func (r *Room) RespondDraw(now time.Time, userID string, accept bool) (accepted bool, opponentID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game == nil {
		return false, "", ErrGameNotStarted
	}
	opponentID, ok := r.opponentOfLocked(userID)
	if !ok {
		return false, "", ErrNotAPlayer
	}

	_, proposerPending := r.game.PendingDraw[opponentID]
	if accept && proposerPending {
		r.game.AgreedDraw = true
		r.game.PendingDraw = make(map[string]struct{})
		return true, opponentID, nil
	}

	r.game.PendingDraw = make(map[string]struct{})
	return false, opponentID, nil
}

func (r *Room) opponentOfLocked(userID string) (string, bool) {
	if r.game == nil {
		return "", false
	}
	switch userID {
	case r.game.WhiteUserID:
		return r.game.BlackUserID, true
	case r.game.BlackUserID:
		return r.game.WhiteUserID, true
	default:
		return "", false
	}
}

// ProposeRematch adds userID to the pending-rematch set. Valid only once the
// current Game has terminated. If the opponent is already pending, the
// rematch starts immediately and started is true (callers re-snapshot to
// get the fresh state).
func (r *Room) ProposeRematch(now time.Time, userID string) (opponentID string, started bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game == nil {
		return "", false, ErrRematchNotAvailable
	}
	if r.game.LeftUserID != "" {
		return "", false, ErrOpponentGone
	}
	snap, _ := r.snapshotLocked(now)
	if snap.Status == "active" {
		return "", false, ErrRematchNotAvailable
	}

	opponentID, ok := r.opponentOfLocked(userID)
	if !ok {
		return "", false, ErrOnlyPlayersRematch
	}

	r.game.PendingRematch[userID] = struct{}{}

	if _, opponentPending := r.game.PendingRematch[opponentID]; opponentPending {
		r.startRematchLocked(now)
		return opponentID, true, nil
	}

	return opponentID, false, nil
}

// RespondRematch processes a response to an outstanding rematch request.
func (r *Room) RespondRematch(now time.Time, userID string, accept bool) (started bool, opponentID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game == nil {
		return false, "", ErrRematchNotAvailable
	}
	if r.game.LeftUserID != "" {
		return false, "", ErrOpponentGone
	}
	opponentID, ok := r.opponentOfLocked(userID)
	if !ok {
		return false, "", ErrOnlyPlayersRespond
	}
	if len(r.game.PendingRematch) == 0 {
		return false, opponentID, ErrNoRematchPending
	}

	if !accept {
		r.game.PendingRematch = make(map[string]struct{})
		return false, opponentID, nil
	}

	r.game.PendingRematch[userID] = struct{}{}
	if _, opponentPending := r.game.PendingRematch[opponentID]; opponentPending {
		r.startRematchLocked(now)
		return true, opponentID, nil
	}
	return false, opponentID, nil
}

func (r *Room) startRematchLocked(now time.Time) {
	r.game = nil
	if len(r.players) == 2 {
		r.maybeStartLocked(now)
	}
}
