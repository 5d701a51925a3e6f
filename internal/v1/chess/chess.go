// Package chess wraps the third-party chess rules engine behind a narrow,
// side-effect-free interface: apply a move, read the side to move, read
// terminal status. Nothing here understands sockets, rooms, or clocks.
package chess

import (
	"errors"
	"strings"

	libchess "github.com/corentings/chess"
)

// Color is the side to move, using the wire-level one-letter convention.
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

// TerminalState is the outcome of a position, evaluated fresh on every query.
type TerminalState string

const (
	Active               TerminalState = "active"
	Checkmate            TerminalState = "checkmate"
	Stalemate            TerminalState = "stalemate"
	InsufficientMaterial TerminalState = "insufficient_material"
	ThreefoldRepetition  TerminalState = "threefold_repetition"
	Draw                 TerminalState = "draw"
)

// ErrIllegalMove is returned for any move the engine rejects, including a
// malformed UCI pair and any panic the underlying library raises — never
// propagated past this package.
var ErrIllegalMove = errors.New("illegal move")

// MoveResult carries the data the Room needs to build a broadcast after a
// successful move.
type MoveResult struct {
	SAN      string
	FEN      string
	NextTurn Color
}

// Game is a single chess position plus its move history, independent of any
// clock or room concept.
type Game struct {
	rules *libchess.Game
}

// NewGame returns a Game at the standard starting position.
func NewGame() *Game {
	return &Game{rules: libchess.NewGame()}
}

// Turn reports the side to move.
func (g *Game) Turn() Color {
	if g.rules.Position().Turn() == libchess.White {
		return White
	}
	return Black
}

// InCheck reports whether the side to move is currently in check.
func (g *Game) InCheck() bool {
	return g.rules.Position().InCheck()
}

// FEN serializes the current position for client reconstruction.
func (g *Game) FEN() string {
	return g.rules.Position().String()
}

// Move applies a move from one algebraic square to another. from/to are
// lowercased before use. promotion defaults to queen when a pawn reaches the
// back rank and the caller omits it. Any error from the underlying library,
// including a panic, surfaces only as ErrIllegalMove.
func (g *Game) Move(from, to, promotion string) (MoveResult, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))

	if len(from) != 2 || len(to) != 2 {
		return MoveResult{}, ErrIllegalMove
	}

	result, err := g.applyUCI(from + to + promotion)
	if err != nil && promotion == "" && isBackRank(to) {
		// Retry once, assuming the caller meant the default queen promotion.
		result, err = g.applyUCI(from + to + "q")
	}
	if err != nil {
		return MoveResult{}, ErrIllegalMove
	}
	return result, nil
}

// TerminalState classifies the current position per the termination
// precedence the caller is responsible for applying (clock and agreed-draw
// checks happen above this layer; this method only reports board-derived
// status).
func (g *Game) TerminalState() TerminalState {
	switch g.rules.Method() {
	case libchess.Checkmate:
		return Checkmate
	case libchess.Stalemate:
		return Stalemate
	case libchess.InsufficientMaterial:
		return InsufficientMaterial
	case libchess.ThreefoldRepetition:
		return ThreefoldRepetition
	case libchess.FivefoldRepetition, libchess.FiftyMoveRule, libchess.SeventyFiveMoveRule, libchess.DrawOffer:
		return Draw
	default:
		return Active
	}
}

// WinnerOf returns the color that is NOT to move, used when a checkmate
// terminates the game (the side to move has just been mated).
func (g *Game) WinnerOf(terminal TerminalState) (Color, bool) {
	if terminal != Checkmate {
		return "", false
	}
	if g.Turn() == White {
		return Black, true
	}
	return White, true
}

func (g *Game) applyUCI(uci string) (result MoveResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = MoveResult{}
			err = ErrIllegalMove
		}
	}()

	pos := g.rules.Position()
	mv, decodeErr := libchess.UCINotation{}.Decode(pos, uci)
	if decodeErr != nil {
		return MoveResult{}, ErrIllegalMove
	}

	san := libchess.AlgebraicNotation{}.Encode(pos, mv)
	if moveErr := g.rules.Move(mv); moveErr != nil {
		return MoveResult{}, ErrIllegalMove
	}

	return MoveResult{
		SAN:      san,
		FEN:      g.FEN(),
		NextTurn: g.Turn(),
	}, nil
}

func isBackRank(square string) bool {
	return len(square) == 2 && (square[1] == '1' || square[1] == '8')
}
