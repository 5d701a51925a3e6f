package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_SecondPlayerStartsGame(t *testing.T) {
	r := New("ABC123")
	started, err := r.Join(Player{UserID: "u1", Username: "alice"})
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, StatusWaiting, r.Status())

	started, err = r.Join(Player{UserID: "u2", Username: "bob"})
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, StatusPlaying, r.Status())
}

func TestJoin_RejoinIsIdempotent(t *testing.T) {
	r := New("ABC123")
	r.Join(Player{UserID: "u1", Username: "alice"})
	started, err := r.Join(Player{UserID: "u1", Username: "alice"})
	require.NoError(t, err)
	assert.False(t, started)
	assert.Len(t, r.Players(), 1)
}

func TestJoin_ThirdDistinctUserRejected(t *testing.T) {
	r := New("ABC123")
	r.Join(Player{UserID: "u1"})
	r.Join(Player{UserID: "u2"})
	_, err := r.Join(Player{UserID: "u3"})
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestLeave_DropsGameWithoutForfeit(t *testing.T) {
	r := New("ABC123")
	r.Join(Player{UserID: "u1"})
	r.Join(Player{UserID: "u2"})

	empty := r.Leave("u1")
	assert.False(t, empty)
	assert.Equal(t, StatusWaiting, r.Status())
	_, ok := r.Snapshot(time.Now())
	assert.False(t, ok)
}

func TestLeave_LastPlayerEmptiesRoom(t *testing.T) {
	r := New("ABC123")
	r.Join(Player{UserID: "u1"})
	empty := r.Leave("u1")
	assert.True(t, empty)
	assert.True(t, r.IsEmpty())
}

func seatTwo(t *testing.T, r *Room) (white, black string) {
	t.Helper()
	r.Join(Player{UserID: "u1", Username: "alice"})
	r.Join(Player{UserID: "u2", Username: "bob"})
	snap, ok := r.Snapshot(time.Now())
	require.True(t, ok)
	return snap.WhiteUserID, snap.BlackUserID
}

func TestApplyMove_RejectsOutOfTurn(t *testing.T) {
	r := New("ABC123")
	white, black := seatTwo(t, r)

	_, err := r.ApplyMove(time.Now(), black, "e7", "e5", "")
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = r.ApplyMove(time.Now(), white, "e2", "e4", "")
	assert.NoError(t, err)
}

func TestApplyMove_RejectsNonPlayer(t *testing.T) {
	r := New("ABC123")
	seatTwo(t, r)

	_, err := r.ApplyMove(time.Now(), "intruder", "e2", "e4", "")
	assert.ErrorIs(t, err, ErrNotAPlayer)
}

func TestApplyMove_RejectsIllegalAndLeavesStateUnchanged(t *testing.T) {
	r := New("ABC123")
	white, _ := seatTwo(t, r)
	before, _ := r.Snapshot(time.Now())

	_, err := r.ApplyMove(time.Now(), white, "e2", "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove)

	after, _ := r.Snapshot(time.Now())
	assert.Equal(t, before.FEN, after.FEN)
	assert.Equal(t, before.Turn, after.Turn)
}

func TestApplyMove_SwitchesClockAndTurn(t *testing.T) {
	r := New("ABC123")
	white, black := seatTwo(t, r)

	result, err := r.ApplyMove(time.Now(), white, "e2", "e4", "")
	require.NoError(t, err)
	assert.Equal(t, "e4", result.SAN)

	snap, _ := r.Snapshot(time.Now())
	assert.Equal(t, "active", snap.Status)

	_, err = r.ApplyMove(time.Now(), black, "e7", "e5", "")
	assert.NoError(t, err)
}

func TestApplyMove_TimeoutEndsGame(t *testing.T) {
	r := New("ABC123")
	white, _ := seatTwo(t, r)

	future := time.Now().Add(181 * time.Second)
	_, err := r.ApplyMove(future, white, "e2", "e4", "")
	assert.ErrorIs(t, err, ErrGameAlreadyOver)

	snap, _ := r.Snapshot(future)
	assert.Equal(t, "timeout", snap.Status)
}

func TestDrawProtocol_AcceptedEndsGame(t *testing.T) {
	r := New("ABC123")
	white, black := seatTwo(t, r)

	opponent, err := r.ProposeDraw(time.Now(), white)
	require.NoError(t, err)
	assert.Equal(t, black, opponent)

	accepted, opponent, err := r.RespondDraw(time.Now(), black, true)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, white, opponent)

	snap, _ := r.Snapshot(time.Now())
	assert.Equal(t, "draw", snap.Status)
	assert.False(t, snap.HasWinner)
}

func TestDrawProtocol_DeclineClearsPending(t *testing.T) {
	r := New("ABC123")
	white, black := seatTwo(t, r)

	r.ProposeDraw(time.Now(), white)
	accepted, _, err := r.RespondDraw(time.Now(), black, false)
	require.NoError(t, err)
	assert.False(t, accepted)

	snap, _ := r.Snapshot(time.Now())
	assert.Equal(t, "active", snap.Status)
}

func TestDrawProtocol_ProposeTwiceIsIdempotent(t *testing.T) {
	r := New("ABC123")
	white, _ := seatTwo(t, r)

	_, err := r.ProposeDraw(time.Now(), white)
	require.NoError(t, err)
	_, err = r.ProposeDraw(time.Now(), white)
	require.NoError(t, err)
}

func TestRematchProtocol_BothAcceptStartsFreshGame(t *testing.T) {
	r := New("ABC123")
	white, black := seatTwo(t, r)
	_, err := r.ProposeDraw(time.Now(), white)
	require.NoError(t, err)
	r.RespondDraw(time.Now(), black, true)

	_, started, err := r.ProposeRematch(time.Now(), white)
	require.NoError(t, err)
	assert.False(t, started)

	started, _, err = r.RespondRematch(time.Now(), black, true)
	require.NoError(t, err)
	assert.True(t, started)

	snap, ok := r.Snapshot(time.Now())
	require.True(t, ok)
	assert.Equal(t, "active", snap.Status)
}

func TestRematchProtocol_NotAvailableWhileActive(t *testing.T) {
	r := New("ABC123")
	white, _ := seatTwo(t, r)
	_, _, err := r.ProposeRematch(time.Now(), white)
	assert.ErrorIs(t, err, ErrRematchNotAvailable)
}

func TestRematchProtocol_DeclineClearsPendingSet(t *testing.T) {
	r := New("ABC123")
	white, black := seatTwo(t, r)
	r.ProposeDraw(time.Now(), white)
	r.RespondDraw(time.Now(), black, true)

	r.ProposeRematch(time.Now(), white)
	started, _, err := r.RespondRematch(time.Now(), black, false)
	require.NoError(t, err)
	assert.False(t, started)

	_, _, err = r.RespondRematch(time.Now(), black, true)
	assert.ErrorIs(t, err, ErrNoRematchPending)
}

func TestRematchProtocol_OpponentLeftAfterGameOverReportsGone(t *testing.T) {
	r := New("ABC123")
	white, black := seatTwo(t, r)
	r.ProposeDraw(time.Now(), white)
	r.RespondDraw(time.Now(), black, true)

	r.Leave(black)

	_, _, err := r.ProposeRematch(time.Now(), white)
	assert.ErrorIs(t, err, ErrOpponentGone)
}

func TestRoomState_TwoConsecutiveSnapshotsAreEqual(t *testing.T) {
	r := New("ABC123")
	seatTwo(t, r)

	now := time.Now()
	first, _ := r.Snapshot(now)
	second, _ := r.Snapshot(now)
	assert.Equal(t, first, second)
}
