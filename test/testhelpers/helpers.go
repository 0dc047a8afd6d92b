// Package testhelpers provides a running chatwave server and websocket client
// helpers shared by the integration tests.
package testhelpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/chatwave/internal/auth"
	"github.com/Tyrowin/chatwave/internal/server"
	"github.com/Tyrowin/chatwave/internal/storage"
)

const (
	// TestOrigin is allowed by every harness.
	TestOrigin = "http://localhost:8080"
	testSecret = "integration-test-secret-0123456789"
	readWait   = 2 * time.Second
)

// Harness is one chatwave server backed by in-memory storage.
type Harness struct {
	Server *server.Server
	HTTP   *httptest.Server
	Store  *storage.Store
	Tokens *auth.Manager
	Config server.Config
}

// User is a registered identity with a valid access token.
type User struct {
	ID       string
	Username string
	Token    string
}

// Frame is one server event as received by a client.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// NewHarness starts a server. customize may adjust the configuration before
// the server is built. Everything is torn down with t.Cleanup.
func NewHarness(t *testing.T, customize func(cfg *server.Config)) *Harness {
	t.Helper()

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	cfg := server.DefaultConfig(testSecret)
	cfg.AllowedOrigins = TestOrigin
	cfg.StrictInvariants = true
	if customize != nil {
		customize(&cfg)
	}

	store, err := storage.Open("", log)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	tokens := auth.NewManager(auth.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})

	srv := server.New(log, cfg, store, tokens)
	srv.Start()
	httpServer := httptest.NewServer(srv.Handler())

	h := &Harness{Server: srv, HTTP: httpServer, Store: store, Tokens: tokens, Config: cfg}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Close()
		if err := srv.Shutdown(ctx); err != nil {
			t.Logf("Server shutdown: %v", err)
		}
		_ = store.Close()
	})
	return h
}

// WebSocketURL returns the ws:// address of the websocket endpoint.
func (h *Harness) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(h.HTTP.URL, "http") + "/ws"
}

// NewUser issues an access token for a fresh user id.
func (h *Harness) NewUser(t *testing.T, username string) User {
	t.Helper()
	id := uuid.NewString()
	token, err := h.Tokens.IssueAccess(id, username)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return User{ID: id, Username: username, Token: token}
}

// NewRoom creates a group room owned by owner and adds members to it.
func (h *Harness) NewRoom(t *testing.T, owner User, members ...User) string {
	t.Helper()
	ctx := context.Background()
	room, err := h.Store.CreateRoom(ctx, storage.Room{
		ID:        uuid.NewString(),
		Name:      "room-" + owner.Username,
		Type:      storage.RoomTypeGroup,
		CreatedBy: owner.ID,
	}, owner.Username)
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	for _, m := range members {
		if _, err := h.Store.AddMember(ctx, room.ID, m.ID, m.Username, storage.RoleMember); err != nil {
			t.Fatalf("Failed to add member %s: %v", m.Username, err)
		}
	}
	return room.ID
}

// Dial opens an authenticated websocket for user.
func (h *Harness) Dial(t *testing.T, user User) *websocket.Conn {
	t.Helper()
	conn, err := h.DialWithToken(user.Token, TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", user.Username, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialWithToken opens a websocket presenting token in the Authorization header.
func (h *Harness) DialWithToken(token, origin string) (*websocket.Conn, error) {
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	return ConnectWebSocket(h.WebSocketURL(), headers)
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
func ConnectWebSocket(url string, headers http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Send writes one client event.
func Send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal %s: %v", event, err)
	}
	msg := map[string]any{"event": event, "data": json.RawMessage(payload)}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// Join sends join_room and waits for the user_joined echo.
func Join(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	Send(t, conn, "join_room", map[string]string{"room_id": roomID})
	Expect(t, conn, "user_joined")
}

// ReadFrame reads the next frame within timeout.
func ReadFrame(conn *websocket.Conn, timeout time.Duration) (Frame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Frame{}, err
	}
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return Frame{}, err
	}
	return frame, nil
}

// Expect skips frames until one named event arrives.
func Expect(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	deadline := time.Now().Add(readWait)
	for time.Now().Before(deadline) {
		frame, err := ReadFrame(conn, time.Until(deadline))
		if err != nil {
			t.Fatalf("Waiting for %s: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
	t.Fatalf("Timed out waiting for %s", event)
	return Frame{}
}

// ExpectNone fails if a frame named event arrives within timeout. A read
// timeout leaves a gorilla connection unusable, so call it last on conn.
func ExpectNone(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		frame, err := ReadFrame(conn, time.Until(deadline))
		if err != nil {
			if IsTimeout(err) {
				return
			}
			t.Fatalf("Unexpected error while waiting for absence of %s: %v", event, err)
		}
		if frame.Event == event {
			t.Fatalf("Expected no %s, got %v", event, frame.Data)
		}
	}
}

// ExpectClosed waits for the server to close conn.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	deadline := time.Now().Add(readWait)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		if _, _, err := conn.ReadMessage(); err != nil {
			if IsTimeout(err) {
				break
			}
			return
		}
	}
	t.Fatalf("Expected connection to be closed")
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest executes an HTTP request with an optional bearer token.
func MakeRequest(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	return MakeRequestWithBody(t, method, url, token, "")
}

// MakeRequestWithBody is MakeRequest with a JSON body.
func MakeRequestWithBody(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	return resp
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
