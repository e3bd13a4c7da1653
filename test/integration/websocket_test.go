// Package integration contains integration tests for the roomchat server.
//
// These tests verify that multiple components work together correctly by testing
// the complete system behavior with real HTTP servers, WebSocket connections,
// and end-to-end functionality.
package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/test/testhelpers"
)

const wait = 2 * time.Second

type roomInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UserCount int    `json:"userCount"`
}

type roomSummary struct {
	roomInfo
	LastMessageAt *int64 `json:"lastMessageAt"`
}

type message struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Text     string `json:"text"`
	TS       int64  `json:"ts"`
}

type roomState struct {
	roomInfo
	Messages []message `json:"messages"`
}

type memberNotice struct {
	SocketID string `json:"socketId"`
	Nickname string `json:"nickname"`
	Typing   *bool  `json:"typing,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func createRoom(t *testing.T, conn *websocket.Conn, name, nickname string) roomInfo {
	t.Helper()
	testhelpers.MustSend(t, conn, "room:create", map[string]any{"name": name, "nickname": nickname})
	var created struct {
		Room roomInfo `json:"room"`
	}
	testhelpers.WaitForEvent(t, conn, "room:created", wait).Decode(t, &created)
	return created.Room
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID, nickname string) roomState {
	t.Helper()
	testhelpers.MustSend(t, conn, "room:join", map[string]any{"roomId": roomID, "nickname": nickname})
	var state roomState
	testhelpers.WaitForEvent(t, conn, "room:state", wait).Decode(t, &state)
	return state
}

func expectError(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	var payload errorPayload
	testhelpers.WaitForEvent(t, conn, "error", wait).Decode(t, &payload)
	assert.Equal(t, want, payload.Message)
}

// TestLoungeConversation walks through create, join, send and disconnect.
func TestLoungeConversation(t *testing.T) {
	ts := testhelpers.StartTestServer(t, nil)
	ann := testhelpers.MustConnect(t, ts.WSURL)
	bob := testhelpers.MustConnect(t, ts.WSURL)

	room := createRoom(t, ann, "Lounge", "Ann")
	assert.Equal(t, "Lounge", room.Name)
	assert.Equal(t, 1, room.UserCount)
	assert.Len(t, room.ID, 21)

	var list []roomSummary
	testhelpers.WaitForEvent(t, bob, "room:list", wait).Decode(t, &list)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].LastMessageAt)

	state := joinRoom(t, bob, room.ID, "Bob")
	assert.Equal(t, 2, state.UserCount)
	assert.Empty(t, state.Messages)

	var joined memberNotice
	testhelpers.WaitForEvent(t, ann, "room:user-joined", wait).Decode(t, &joined)
	assert.Equal(t, "Bob", joined.Nickname)
	assert.NotEmpty(t, joined.SocketID)

	testhelpers.MustSend(t, ann, "message:send", map[string]any{"text": "hi"})
	for _, conn := range []*websocket.Conn{ann, bob} {
		var msg message
		testhelpers.WaitForEvent(t, conn, "message:new", wait).Decode(t, &msg)
		assert.Equal(t, "Ann", msg.Nickname)
		assert.Equal(t, "hi", msg.Text)
		assert.NotZero(t, msg.TS)
	}

	require.NoError(t, testhelpers.CloseWebSocket(bob))

	var left memberNotice
	testhelpers.WaitForEvent(t, ann, "room:user-left", wait).Decode(t, &left)
	assert.Equal(t, joined.SocketID, left.SocketID)

	testhelpers.WaitForEvent(t, ann, "room:list", wait).Decode(t, &list)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UserCount)
	assert.NotNil(t, list[0].LastMessageAt)
}

// TestLateJoinerSeesHistory verifies room:state carries earlier messages in order.
func TestLateJoinerSeesHistory(t *testing.T) {
	ts := testhelpers.StartTestServer(t, nil)
	ann := testhelpers.MustConnect(t, ts.WSURL)
	room := createRoom(t, ann, "Lounge", "Ann")

	for _, text := range []string{"one", "two", "three"} {
		testhelpers.MustSend(t, ann, "message:send", map[string]any{"roomId": room.ID, "text": text})
		testhelpers.WaitForEvent(t, ann, "message:new", wait)
	}

	cat := testhelpers.MustConnect(t, ts.WSURL)
	state := joinRoom(t, cat, room.ID, "Cat")
	require.Len(t, state.Messages, 3)
	assert.Equal(t, "one", state.Messages[0].Text)
	assert.Equal(t, "three", state.Messages[2].Text)
}

// TestOversizedTextRejected verifies a 501 character message never reaches the room.
func TestOversizedTextRejected(t *testing.T) {
	ts := testhelpers.StartTestServer(t, nil)
	ann := testhelpers.MustConnect(t, ts.WSURL)
	bob := testhelpers.MustConnect(t, ts.WSURL)
	room := createRoom(t, ann, "Lounge", "Ann")
	joinRoom(t, bob, room.ID, "Bob")

	testhelpers.MustSend(t, ann, "message:send", map[string]any{"text": strings.Repeat("x", 501)})
	expectError(t, ann, "Invalid message")

	testhelpers.ExpectNoEvent(t, bob, "message:new", 300*time.Millisecond)
}

// TestJoinUnknownRoom verifies the error stays with the caller.
func TestJoinUnknownRoom(t *testing.T) {
	ts := testhelpers.StartTestServer(t, nil)
	ann := testhelpers.MustConnect(t, ts.WSURL)

	testhelpers.MustSend(t, ann, "room:join", map[string]any{"roomId": "does-not-exist", "nickname": "Ann"})
	expectError(t, ann, "Room not found")

	testhelpers.MustSend(t, ann, "message:send", map[string]any{"text": "anyone?"})
	expectError(t, ann, "Room not found")
}

// TestTypingReachesPeersOnly verifies typing indicators skip the sender.
func TestTypingReachesPeersOnly(t *testing.T) {
	ts := testhelpers.StartTestServer(t, nil)
	ann := testhelpers.MustConnect(t, ts.WSURL)
	bob := testhelpers.MustConnect(t, ts.WSURL)
	room := createRoom(t, ann, "Lounge", "Ann")
	joinRoom(t, bob, room.ID, "Bob")

	testhelpers.MustSend(t, ann, "message:typing", map[string]any{"typing": true})

	var typing memberNotice
	testhelpers.WaitForEvent(t, bob, "message:typing", wait).Decode(t, &typing)
	assert.Equal(t, "Ann", typing.Nickname)
	require.NotNil(t, typing.Typing)
	assert.True(t, *typing.Typing)

	testhelpers.ExpectNoEvent(t, ann, "message:typing", 300*time.Millisecond)
}

// TestSwitchingRoomsNotifiesPreviousRoom verifies the implicit leave.
func TestSwitchingRoomsNotifiesPreviousRoom(t *testing.T) {
	ts := testhelpers.StartTestServer(t, nil)
	ann := testhelpers.MustConnect(t, ts.WSURL)
	bob := testhelpers.MustConnect(t, ts.WSURL)

	lounge := createRoom(t, ann, "Lounge", "Ann")
	joinRoom(t, bob, lounge.ID, "Bob")
	testhelpers.WaitForEvent(t, ann, "room:user-joined", wait)

	other := createRoom(t, bob, "Kitchen", "Bob")
	assert.Equal(t, 1, other.UserCount)

	var left memberNotice
	testhelpers.WaitForEvent(t, ann, "room:user-left", wait).Decode(t, &left)
	assert.Equal(t, "Bob", left.Nickname)
}
