package server

import "net/http"

// routes configures the ServeMux for every HTTP endpoint s serves.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/test", TestPageHandler)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /api/rooms/{room_id}/messages", s.handleHistory)
	mux.HandleFunc("PUT /api/messages/{message_id}", s.handleEditMessage)
	mux.HandleFunc("DELETE /api/messages/{message_id}", s.handleDeleteMessage)
	return mux
}
