package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMembership struct {
	currentRoom map[string]string
	seated      map[string]map[string]bool
}

func (f *fakeMembership) CurrentRoomID(userID string) (string, bool) {
	roomID, ok := f.currentRoom[userID]
	return roomID, ok
}

func (f *fakeMembership) IsSeated(roomID, userID string) bool {
	return f.seated[roomID][userID]
}

type fakeOnline struct {
	online map[string]bool
}

func (f *fakeOnline) IsOnline(userID string) bool { return f.online[userID] }

func newFriendshipServer(t *testing.T, status FriendshipStatus) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(friendshipResponse{Status: status})
	}))
}

func TestInvite_RejectsSelfInvite(t *testing.T) {
	client := NewClient("http://unused")
	_, err := Invite(context.Background(), client, &fakeMembership{}, &fakeOnline{}, "https://app", "u1", "u1", "")
	assert.ErrorIs(t, err, ErrSelfInvite)
}

func TestInvite_RejectsWithoutRoom(t *testing.T) {
	client := NewClient("http://unused")
	membership := &fakeMembership{currentRoom: map[string]string{}}
	_, err := Invite(context.Background(), client, membership, &fakeOnline{}, "https://app", "u1", "u2", "")
	assert.ErrorIs(t, err, ErrNoRoom)
}

func TestInvite_RejectsWhenNotSeatedInGivenRoom(t *testing.T) {
	client := NewClient("http://unused")
	membership := &fakeMembership{seated: map[string]map[string]bool{"ROOM01": {}}}
	_, err := Invite(context.Background(), client, membership, &fakeOnline{}, "https://app", "u1", "u2", "room01")
	assert.ErrorIs(t, err, ErrNotInThatRoom)
}

func TestInvite_RejectsWhenNotFriends(t *testing.T) {
	srv := newFriendshipServer(t, StatusNone)
	defer srv.Close()

	client := NewClient(srv.URL)
	membership := &fakeMembership{seated: map[string]map[string]bool{"ROOM01": {"u1": true}}}
	_, err := Invite(context.Background(), client, membership, &fakeOnline{}, "https://app", "u1", "u2", "room01")
	assert.ErrorIs(t, err, ErrNotFriends)
}

func TestInvite_RejectsWhenTargetOffline(t *testing.T) {
	srv := newFriendshipServer(t, StatusAccepted)
	defer srv.Close()

	client := NewClient(srv.URL)
	membership := &fakeMembership{seated: map[string]map[string]bool{"ROOM01": {"u1": true}}}
	online := &fakeOnline{online: map[string]bool{}}
	_, err := Invite(context.Background(), client, membership, online, "https://app", "u1", "u2", "room01")
	assert.ErrorIs(t, err, ErrTargetOffline)
}

func TestInvite_SucceedsAndComposesLink(t *testing.T) {
	srv := newFriendshipServer(t, StatusAccepted)
	defer srv.Close()

	client := NewClient(srv.URL)
	membership := &fakeMembership{seated: map[string]map[string]bool{"ROOM01": {"u1": true}}}
	online := &fakeOnline{online: map[string]bool{"u2": true}}

	result, err := Invite(context.Background(), client, membership, online, "https://app", "u1", "u2", "room01")
	require.NoError(t, err)
	assert.Equal(t, "ROOM01", result.RoomID)
	assert.Equal(t, "https://app/?room=ROOM01", result.InviteLink)
}

func TestInvite_FallsBackToCurrentRoomWhenSeedOmitted(t *testing.T) {
	srv := newFriendshipServer(t, StatusAccepted)
	defer srv.Close()

	client := NewClient(srv.URL)
	membership := &fakeMembership{
		currentRoom: map[string]string{"u1": "ROOM99"},
		seated:      map[string]map[string]bool{"ROOM99": {"u1": true}},
	}
	online := &fakeOnline{online: map[string]bool{"u2": true}}

	result, err := Invite(context.Background(), client, membership, online, "https://app", "u1", "u2", "")
	require.NoError(t, err)
	assert.Equal(t, "ROOM99", result.RoomID)
}
