package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/Tyrowin/chatwave/internal/auth"
	"github.com/Tyrowin/chatwave/internal/realtime"
	"github.com/Tyrowin/chatwave/internal/storage"
)

const maxRequestBody = 64 << 10

type editMessageRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleEditMessage lets the sender replace a message's content. The new
// content is pushed to the room's live connections.
func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
		return
	}
	edit, err := decodeData[editMessageRequest](body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	msg, ok := s.loadMessage(w, r)
	if !ok {
		return
	}
	if msg.SenderID != identity.UserID {
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "can only edit your own messages"})
		return
	}

	edited, err := s.store.EditMessage(r.Context(), msg.ID, edit.Content)
	if err != nil {
		s.writeStoreError(w, "Editing message failed", msg.ID, err)
		return
	}
	s.dispatcher.Dispatch(r.Context(), realtime.RoomID(edited.RoomID), realtime.MessageEditedEvent(realtime.Message{
		ID:      edited.ID,
		Room:    realtime.RoomID(edited.RoomID),
		Content: edited.Content,
	}, identity, edited.UpdatedAt))
	s.writeJSON(w, http.StatusOK, edited)
}

// handleDeleteMessage soft deletes a message. The sender and the room's
// creator may do so.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	msg, ok := s.loadMessage(w, r)
	if !ok {
		return
	}
	if !s.mayDelete(w, r, msg, identity) {
		return
	}

	if !msg.IsDeleted {
		deleted, err := s.store.SoftDeleteMessage(r.Context(), msg.ID)
		if err != nil {
			s.writeStoreError(w, "Deleting message failed", msg.ID, err)
			return
		}
		room := realtime.RoomID(deleted.RoomID)
		s.dispatcher.Dispatch(r.Context(), room, realtime.MessageDeletedEvent(room, deleted.ID, identity, deleted.UpdatedAt))
	}
	s.writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Message deleted successfully"})
}

func (s *Server) mayDelete(w http.ResponseWriter, r *http.Request, msg storage.Message, identity auth.Identity) bool {
	if msg.SenderID == identity.UserID {
		return true
	}
	room, err := s.store.GetRoom(r.Context(), msg.RoomID)
	if err != nil {
		s.writeStoreError(w, "Loading room failed", msg.ID, err)
		return false
	}
	if room.CreatedBy != identity.UserID {
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "can only delete your own messages or as room admin"})
		return false
	}
	return true
}

func (s *Server) loadMessage(w http.ResponseWriter, r *http.Request) (storage.Message, bool) {
	msg, err := s.store.GetMessage(r.Context(), r.PathValue("message_id"))
	if err != nil {
		s.writeStoreError(w, "Loading message failed", r.PathValue("message_id"), err)
		return storage.Message{}, false
	}
	return msg, true
}

// writeStoreError answers with the status matching a store failure. Backend
// details are only logged.
func (s *Server) writeStoreError(w http.ResponseWriter, what, messageID string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "message not found"})
	case errors.Is(err, storage.ErrInvalid):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.log.Error(what, "message_id", messageID, "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
	}
}
