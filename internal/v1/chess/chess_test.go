package chess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGame_StartingPosition(t *testing.T) {
	g := NewGame()
	assert.Equal(t, White, g.Turn())
	assert.Equal(t, Active, g.TerminalState())
	assert.False(t, g.InCheck())
	assert.Contains(t, g.FEN(), "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR")
}

func TestMove_LegalAdvancesTurn(t *testing.T) {
	g := NewGame()
	result, err := g.Move("e2", "e4", "")
	require.NoError(t, err)
	assert.Equal(t, "e4", result.SAN)
	assert.Equal(t, Black, result.NextTurn)
	assert.Equal(t, Black, g.Turn())
}

func TestMove_IllegalDoesNotMutateState(t *testing.T) {
	g := NewGame()
	before := g.FEN()

	_, err := g.Move("e2", "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove)
	assert.Equal(t, before, g.FEN())
	assert.Equal(t, White, g.Turn())
}

func TestMove_OutOfTurnIsIllegal(t *testing.T) {
	g := NewGame()
	_, err := g.Move("e7", "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestFoolsMate_EndsInCheckmate(t *testing.T) {
	g := NewGame()
	moves := [][2]string{
		{"f2", "f3"},
		{"e7", "e5"},
		{"g2", "g4"},
	}
	for _, m := range moves {
		_, err := g.Move(m[0], m[1], "")
		require.NoError(t, err)
	}

	// Qh4#
	result, err := g.Move("d8", "h4", "")
	require.NoError(t, err)
	assert.Equal(t, "Qh4#", result.SAN)

	assert.Equal(t, Checkmate, g.TerminalState())
	winner, ok := g.WinnerOf(g.TerminalState())
	require.True(t, ok)
	assert.Equal(t, Black, winner)
}

func TestMove_MalformedSquaresAreIllegal(t *testing.T) {
	g := NewGame()
	_, err := g.Move("", "e4", "")
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = g.Move("e2", "", "")
	assert.ErrorIs(t, err, ErrIllegalMove)
}
