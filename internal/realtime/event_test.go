package realtime_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatwave/internal/realtime"
)

func TestEncode_FrameNames(t *testing.T) {
	alice := newIdentity("alice")
	reaction := realtime.Reaction{MessageID: "m1", Room: "general", UserID: alice.UserID, Username: "alice", Emoji: "🎉"}

	tests := []struct {
		name  string
		event realtime.Event
		want  string
	}{
		{"message", chatMessage("general", "hi"), realtime.FrameReceiveMessage},
		{"edited", realtime.MessageEditedEvent(realtime.Message{ID: "m1", Room: "general", Content: "hey"}, alice, time.Now()), realtime.FrameMessageEdited},
		{"deleted", realtime.MessageDeletedEvent("general", "m1", alice, time.Now()), realtime.FrameMessageDeleted},
		{"reaction added", realtime.ReactionEvent(reaction, true), realtime.FrameReactionAdded},
		{"reaction removed", realtime.ReactionEvent(reaction, false), realtime.FrameReactionRemoved},
		{"joined", realtime.JoinedEvent("general", alice), realtime.FrameUserJoined},
		{"left", realtime.LeftEvent("general", alice), realtime.FrameUserLeft},
		{"typing start", realtime.TypingEvent("general", alice, true), realtime.FrameTypingStart},
		{"typing stop", realtime.TypingEvent("general", alice, false), realtime.FrameTypingStop},
		{"online", realtime.PresenceEvent(alice, true), realtime.FrameUserConnected},
		{"offline", realtime.PresenceEvent(alice, false), realtime.FrameUserDisconnected},
		{"rejected", realtime.RejectedEvent("send_message", realtime.ErrInvalidCommand), realtime.FrameError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			raw, err := realtime.Encode(tt.event)
			req.NoError(err)

			var frame decodedFrame
			req.NoError(json.Unmarshal(raw, &frame))
			req.Equal(tt.want, frame.Event)
			req.NotNil(frame.Data)
		})
	}
}

func TestEncode_MessagePayload(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := realtime.Encode(realtime.MessageEvent(realtime.Message{
		ID:             "m1",
		Room:           "general",
		SenderID:       "u1",
		SenderUsername: "alice",
		Content:        "hello",
		Type:           "image",
		MediaURL:       "https://cdn.example/cat.png",
		CreatedAt:      at,
	}))
	req.NoError(err)

	var frame decodedFrame
	req.NoError(json.Unmarshal(raw, &frame))
	req.Equal("general", frame.Data["room_id"])
	req.Equal("m1", frame.Data["message_id"])
	req.Equal("image", frame.Data["message_type"])
	req.Equal("https://cdn.example/cat.png", frame.Data["media_url"])
	req.Equal("2026-01-02T03:04:05Z", frame.Data["timestamp"])
	req.NotContains(frame.Data, "reply_to")
}

func TestEncode_MessageChanges(t *testing.T) {
	req := require.New(t)
	alice := newIdentity("alice")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	raw, err := realtime.Encode(realtime.MessageEditedEvent(realtime.Message{ID: "m1", Room: "general", Content: "fixed typo"}, alice, at))
	req.NoError(err)
	var edited decodedFrame
	req.NoError(json.Unmarshal(raw, &edited))
	req.Equal("fixed typo", edited.Data["content"])
	req.Equal(alice.UserID, edited.Data["user_id"])
	req.Equal("2026-01-02T03:04:05Z", edited.Data["timestamp"])

	raw, err = realtime.Encode(realtime.MessageDeletedEvent("general", "m1", alice, at))
	req.NoError(err)
	var deleted decodedFrame
	req.NoError(json.Unmarshal(raw, &deleted))
	req.Equal("m1", deleted.Data["message_id"])
	req.NotContains(deleted.Data, "content")
}

func TestEncode_UnknownKind(t *testing.T) {
	_, err := realtime.Encode(realtime.Event{Kind: "bogus"})
	require.ErrorIs(t, err, realtime.ErrInvalidCommand)
}

func TestErrorCode(t *testing.T) {
	req := require.New(t)
	req.Equal(realtime.CodeAuthRejected, realtime.ErrorCode(fmt.Errorf("%w: x", realtime.ErrAuthRejected)))
	req.Equal(realtime.CodeUpstreamUnavailable, realtime.ErrorCode(realtime.ErrUpstreamUnavailable))
	req.Equal(realtime.CodeInvalidRequest, realtime.ErrorCode(realtime.ErrInvalidCommand))
	req.Equal(realtime.CodeInternal, realtime.ErrorCode(realtime.ErrDeliveryFailed))
}
