package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatwave/internal/realtime"
	"github.com/Tyrowin/chatwave/internal/storage"
)

func (f fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, r)
	return w
}

func (f fixture) message(t *testing.T, room string, sender user, content string) storage.Message {
	t.Helper()
	msg, err := f.store.PersistMessage(context.Background(), storage.Message{
		RoomID: room, SenderID: sender.id, SenderUsername: sender.name, Content: content,
	})
	require.NoError(t, err)
	return msg
}

func TestHandleEditMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice)
	_, err := f.store.AddMember(ctx, room, bob.id, bob.name, storage.RoleMember)
	req.NoError(err)
	_, bobSink := f.connect(t, bob, room)
	msg := f.message(t, room, alice, "helo")
	path := "/api/messages/" + msg.ID

	// Only the sender may edit
	req.Equal(http.StatusUnauthorized, f.do(http.MethodPut, path, "", `{"content":"hello"}`).Code)
	req.Equal(http.StatusForbidden, f.do(http.MethodPut, path, bob.token, `{"content":"hello"}`).Code)
	req.Equal(http.StatusBadRequest, f.do(http.MethodPut, path, alice.token, `{"content":""}`).Code)
	req.Equal(http.StatusNotFound, f.do(http.MethodPut, "/api/messages/missing", alice.token, `{"content":"hello"}`).Code)

	// When alice fixes her typo
	w := f.do(http.MethodPut, path, alice.token, `{"content":"hello"}`)

	// Then the store and the live room see the new content
	req.Equal(http.StatusOK, w.Code)
	var edited storage.Message
	req.NoError(json.NewDecoder(w.Body).Decode(&edited))
	req.Equal("hello", edited.Content)
	req.True(edited.IsEdited)

	last := bobSink.last()
	req.Equal(realtime.FrameMessageEdited, last.Event)
	data := last.Data.(map[string]any)
	req.Equal(msg.ID, data["message_id"])
	req.Equal("hello", data["content"])
}

func TestHandleDeleteMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	owner, bob, carol := f.user(t, "owner"), f.user(t, "bob"), f.user(t, "carol")
	room := f.room(t, owner)
	for _, u := range []user{bob, carol} {
		_, err := f.store.AddMember(ctx, room, u.id, u.name, storage.RoleMember)
		req.NoError(err)
	}
	_, ownerSink := f.connect(t, owner, room)
	fromBob := f.message(t, room, bob, "first")
	fromCarol := f.message(t, room, carol, "second")

	// Another member cannot delete bob's message
	req.Equal(http.StatusForbidden, f.do(http.MethodDelete, "/api/messages/"+fromBob.ID, carol.token, "").Code)

	// The sender can
	req.Equal(http.StatusOK, f.do(http.MethodDelete, "/api/messages/"+fromBob.ID, bob.token, "").Code)
	req.Equal(realtime.FrameMessageDeleted, ownerSink.last().Event)

	// And so can the room's creator
	req.Equal(http.StatusOK, f.do(http.MethodDelete, "/api/messages/"+fromCarol.ID, owner.token, "").Code)

	// Deleted messages stay in history, flagged
	history, err := f.store.RoomMessages(ctx, room, 0, 10)
	req.NoError(err)
	req.Len(history, 2)
	for _, msg := range history {
		req.True(msg.IsDeleted)
	}

	// Deleting twice is accepted without a second announcement
	before := len(ownerSink.events())
	req.Equal(http.StatusOK, f.do(http.MethodDelete, "/api/messages/"+fromBob.ID, bob.token, "").Code)
	req.Len(ownerSink.events(), before)

	// And a deleted message can no longer be edited
	req.Equal(http.StatusBadRequest, f.do(http.MethodPut, "/api/messages/"+fromBob.ID, bob.token, `{"content":"again"}`).Code)
}
