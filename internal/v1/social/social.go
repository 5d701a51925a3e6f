// Package social adapts to the external social graph service: it answers
// "are these two users friends?" over HTTP and composes the invite payload
// the Gateway delivers to a target's socket set. It never touches Room or
// Presence state directly — callers pass in what they already resolved.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// Sentinel errors, surfaced verbatim in event acks.
var (
	ErrSelfInvite     = errors.New("You cannot invite yourself")
	ErrNoRoom         = errors.New("Create or join a room first")
	ErrNotInThatRoom  = errors.New("You are not in that room")
	ErrNotFriends     = errors.New("You can only invite users from your friend list")
	ErrTargetOffline  = errors.New("Friend is offline")
	ErrMissingTarget  = errors.New("Missing target user")
)

// FriendshipStatus mirrors the social graph service's status vocabulary.
type FriendshipStatus string

const (
	StatusAccepted FriendshipStatus = "ACCEPTED"
	StatusPending  FriendshipStatus = "PENDING"
	StatusNone     FriendshipStatus = "NONE"
)

// Client talks to the social graph service over HTTP, guarded by a circuit
// breaker so a degraded dependency fails closed (treated as "not friends")
// rather than hanging the inviting player's request.
type Client struct {
	baseAddr   string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewClient returns a Client pointed at the social graph service's base
// address, e.g. "http://localhost:4001".
func NewClient(baseAddr string) *Client {
	st := gobreaker.Settings{
		Name:        "social-graph-service",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
	}

	return &Client{
		baseAddr:   baseAddr,
		httpClient: &http.Client{Timeout: 3 * time.Second},
		cb:         gobreaker.NewCircuitBreaker(st),
	}
}

type friendshipResponse struct {
	Status FriendshipStatus `json:"status"`
}

// AreFriends reports whether an ACCEPTED friendship exists between the two
// users. Any transport failure, non-200 response, or open breaker is treated
// as "not friends" — the invite is denied rather than the caller blocked.
func (c *Client) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		reqURL := fmt.Sprintf("%s/friendships?userA=%s&userB=%s",
			c.baseAddr, url.QueryEscape(userA), url.QueryEscape(userB))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("social graph service returned %d", resp.StatusCode)
		}

		var body friendshipResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, err
		}
		return body.Status == StatusAccepted, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			return false, nil
		}
		return false, nil
	}
	return result.(bool), nil
}

// RoomMembership answers the two room-scoped questions Invite needs without
// reaching into Room internals itself.
type RoomMembership interface {
	// CurrentRoomID returns the room the user currently occupies, if any.
	CurrentRoomID(userID string) (string, bool)
	// IsSeated reports whether userID is an occupant of roomID.
	IsSeated(roomID, userID string) bool
}

// OnlineChecker answers whether a user has at least one open connection.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// InviteResult is returned to the caller on success.
type InviteResult struct {
	RoomID      string
	InviteLink  string
}

// Invite runs the six-step validation sequence and, on success, returns the
// composed invite link. Delivery to the target's socket set is the caller's
// responsibility — this function has no knowledge of connections.
func Invite(ctx context.Context, friends *Client, membership RoomMembership, online OnlineChecker, origin, fromUserID, toUserID, roomIDSeed string) (InviteResult, error) {
	if toUserID == "" {
		return InviteResult{}, ErrMissingTarget
	}
	if toUserID == fromUserID {
		return InviteResult{}, ErrSelfInvite
	}

	roomID := normalizeRoomID(roomIDSeed)
	if roomID == "" {
		current, ok := membership.CurrentRoomID(fromUserID)
		if !ok {
			return InviteResult{}, ErrNoRoom
		}
		roomID = current
	}

	if !membership.IsSeated(roomID, fromUserID) {
		return InviteResult{}, ErrNotInThatRoom
	}

	areFriends, err := friends.AreFriends(ctx, fromUserID, toUserID)
	if err != nil {
		return InviteResult{}, err
	}
	if !areFriends {
		return InviteResult{}, ErrNotFriends
	}

	if !online.IsOnline(toUserID) {
		return InviteResult{}, ErrTargetOffline
	}

	link := fmt.Sprintf("%s/?room=%s", origin, url.QueryEscape(roomID))
	return InviteResult{RoomID: roomID, InviteLink: link}, nil
}

func normalizeRoomID(seed string) string {
	if seed == "" {
		return ""
	}
	upper := make([]byte, 0, len(seed))
	for i := 0; i < len(seed); i++ {
		c := seed[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = append(upper, c)
	}
	return string(upper)
}
