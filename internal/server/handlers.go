package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Tyrowin/chatwave/internal/auth"
	"github.com/Tyrowin/chatwave/internal/storage"
)

// credentialFrom reads the bearer token from the Authorization header, falling
// back to the token query parameter browsers have to use for websockets.
func credentialFrom(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// handleWebSocket upgrades the request, authenticates the connection and
// starts its pumps. A rejected credential closes the socket right after the
// upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	credential := credentialFrom(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	c := newConnection(s, conn, r.RemoteAddr)
	if !s.spawn(c.writePump) {
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.HandshakeTimeout)
	defer cancel()
	identity, err := s.controller.Connect(ctx, c.handle, credential, c)
	if err != nil {
		s.log.Info("Connection rejected", "addr", r.RemoteAddr, "error", err)
		return
	}

	if !s.spawn(func() { c.readPump(s.ctx) }) {
		s.controller.Disconnect(context.WithoutCancel(ctx), c.handle, "server shutdown")
		return
	}
	s.log.Debug("Pumps started", "handle", c.handle, "user_id", identity.UserID, "addr", r.RemoteAddr)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatwave server is running!")
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Snapshot())
}

type historyMessage struct {
	storage.Message
	Reactions []storage.Reaction `json:"reactions"`
}

type historyResponse struct {
	RoomID   string           `json:"room_id"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
	Messages []historyMessage `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// authenticate verifies the bearer credential of an API request. On failure
// the response is already written.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, err := s.verifier.Verify(credentialFrom(r))
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, auth.ErrRejected) {
			status = http.StatusInternalServerError
		}
		s.writeJSON(w, status, errorResponse{Error: err.Error()})
		return auth.Identity{}, false
	}
	return identity, true
}

// handleHistory serves a room's messages, newest first, to its members.
// Every message carries its reactions.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	roomID := r.PathValue("room_id")
	skip, limit, err := s.page(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	member, err := s.store.IsMember(r.Context(), roomID, identity.UserID)
	if err != nil {
		s.log.Error("Membership lookup failed", "room_id", roomID, "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "membership lookup failed"})
		return
	}
	if !member {
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "not a member of this room"})
		return
	}

	messages, err := s.store.RoomMessages(r.Context(), roomID, skip, limit)
	if err != nil {
		s.log.Error("Loading history failed", "room_id", roomID, "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history unavailable"})
		return
	}
	page := make([]historyMessage, 0, len(messages))
	for _, msg := range messages {
		reactions, err := s.store.Reactions(r.Context(), msg.ID)
		if err != nil {
			s.log.Error("Loading reactions failed", "message_id", msg.ID, "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "history unavailable"})
			return
		}
		if reactions == nil {
			reactions = []storage.Reaction{}
		}
		page = append(page, historyMessage{Message: msg, Reactions: reactions})
	}
	s.writeJSON(w, http.StatusOK, historyResponse{RoomID: roomID, Skip: skip, Limit: limit, Messages: page})
}

// page reads skip and limit, capping limit at the configured page size.
func (s *Server) page(r *http.Request) (int, int, error) {
	skip, limit := 0, s.config.HistoryPageLimit
	query := r.URL.Query()
	if v := query.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid skip %q", v)
		}
		skip = n
	}
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
		limit = min(n, s.config.HistoryPageLimit)
	}
	return skip, limit, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Error writing JSON response", "error", err)
	}
}

// TestPageHandler serves an HTML page for trying the websocket protocol by hand.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>chatwave WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>chatwave WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="tokenInput" placeholder="Access token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="roomInput" placeholder="Room id">
        <button onclick="send('join_room', {room_id: room()})">Join</button>
        <button onclick="send('leave_room', {room_id: room()})">Leave</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');
        const messageInput = document.getElementById('messageInput');

        function room() { return document.getElementById('roomInput').value.trim(); }

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            line.style.color = color;
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const token = encodeURIComponent(document.getElementById('tokenInput').value.trim());
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?token=' + token);
            ws.onopen = function() { addLine('Connected to chatwave server', 'gray'); updateStatus(true); };
            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                const color = frame.event === 'error' ? 'red' : 'green';
                addLine(frame.event + ': ' + JSON.stringify(frame.data), color);
            };
            ws.onclose = function() { addLine('Connection closed', 'gray'); updateStatus(false); ws = null; };
            ws.onerror = function() { addLine('Connection error', 'red'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function send(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
                addLine('> ' + event, 'blue');
            }
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            if (content) {
                send('send_message', {room_id: room(), content: content});
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
