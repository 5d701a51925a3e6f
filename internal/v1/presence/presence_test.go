package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnect_FirstConnectionReportsOnline(t *testing.T) {
	d := NewDirectory()

	first := d.Connect("u1", "alice", "conn-1")
	assert.True(t, first)
	assert.True(t, d.IsOnline("u1"))
}

func TestConnect_SecondTabDoesNotReReportOnline(t *testing.T) {
	d := NewDirectory()

	d.Connect("u1", "alice", "conn-1")
	second := d.Connect("u1", "alice", "conn-2")

	assert.False(t, second)
	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, d.ConnectionsOf("u1"))
}

func TestDisconnect_OnlyLastConnectionGoesOffline(t *testing.T) {
	d := NewDirectory()
	d.Connect("u1", "alice", "conn-1")
	d.Connect("u1", "alice", "conn-2")

	wentOffline := d.Disconnect("u1", "conn-1")
	assert.False(t, wentOffline)
	assert.True(t, d.IsOnline("u1"))

	wentOffline = d.Disconnect("u1", "conn-2")
	assert.True(t, wentOffline)
	assert.False(t, d.IsOnline("u1"))
}

func TestDisconnect_UnknownConnectionIsNoop(t *testing.T) {
	d := NewDirectory()
	d.Connect("u1", "alice", "conn-1")

	wentOffline := d.Disconnect("u1", "conn-does-not-exist")
	assert.False(t, wentOffline)
	assert.True(t, d.IsOnline("u1"))
}

func TestOnline_ReturnsSnapshotOfProfiles(t *testing.T) {
	d := NewDirectory()
	d.Connect("u1", "alice", "conn-1")
	d.Connect("u2", "bob", "conn-2")

	online := d.Online()
	assert.Len(t, online, 2)
	assert.Contains(t, online, UserRef{UserID: "u1", Username: "alice"})
	assert.Contains(t, online, UserRef{UserID: "u2", Username: "bob"})
}

func TestRoomOf_TracksAssignmentIndependentOfConnection(t *testing.T) {
	d := NewDirectory()
	d.Connect("u1", "alice", "conn-1")
	d.SetRoom("u1", "room-1")

	roomID, ok := d.RoomOf("u1")
	assert.True(t, ok)
	assert.Equal(t, "room-1", roomID)

	d.Disconnect("u1", "conn-1")
	roomID, ok = d.RoomOf("u1")
	assert.True(t, ok)
	assert.Equal(t, "room-1", roomID, "room assignment survives disconnect to allow reconnection")
}

func TestClearRoom_RemovesAssignment(t *testing.T) {
	d := NewDirectory()
	d.SetRoom("u1", "room-1")
	d.ClearRoom("u1")

	_, ok := d.RoomOf("u1")
	assert.False(t, ok)
}

func TestReset_ClearsAllState(t *testing.T) {
	d := NewDirectory()
	d.Connect("u1", "alice", "conn-1")
	d.SetRoom("u1", "room-1")

	d.Reset()

	assert.False(t, d.IsOnline("u1"))
	assert.Empty(t, d.Online())
	_, ok := d.RoomOf("u1")
	assert.False(t, ok)
}
