package integration

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatwave/internal/server"
	"github.com/Tyrowin/chatwave/test/testhelpers"
)

func TestMultipleClientsMessageExchange(t *testing.T) {
	h := testhelpers.NewHarness(t, nil)

	const numClients = 5
	users := make([]testhelpers.User, numClients)
	for i := range users {
		users[i] = h.NewUser(t, fmt.Sprintf("user%d", i))
	}
	room := h.NewRoom(t, users[0], users[1:]...)

	conns := make([]*websocket.Conn, numClients)
	for i, u := range users {
		conns[i] = h.Dial(t, u)
		testhelpers.Join(t, conns[i], room)
	}

	for i, conn := range conns {
		testhelpers.Send(t, conn, "send_message", map[string]string{
			"room_id": room,
			"content": fmt.Sprintf("from %d", i),
		})
	}

	for i, conn := range conns {
		got := make(map[string]bool)
		for range numClients {
			frame := testhelpers.Expect(t, conn, "receive_message")
			content, _ := frame.Data["content"].(string)
			got[content] = true
		}
		for j := range numClients {
			if !got[fmt.Sprintf("from %d", j)] {
				t.Errorf("Client %d missed message from %d", i, j)
			}
		}
	}
}

func TestPerSenderOrdering(t *testing.T) {
	h := testhelpers.NewHarness(t, func(cfg *server.Config) {
		cfg.RateLimitBurst = 50
	})
	sender := h.NewUser(t, "sender")
	reader := h.NewUser(t, "reader")
	room := h.NewRoom(t, sender, reader)

	cs := h.Dial(t, sender)
	cr := h.Dial(t, reader)
	testhelpers.Join(t, cs, room)
	testhelpers.Join(t, cr, room)

	const count = 20
	for i := range count {
		testhelpers.Send(t, cs, "send_message", map[string]string{"room_id": room, "content": fmt.Sprintf("%02d", i)})
	}
	for i := range count {
		frame := testhelpers.Expect(t, cr, "receive_message")
		if want := fmt.Sprintf("%02d", i); frame.Data["content"] != want {
			t.Fatalf("Expected %s in order, got %v", want, frame.Data["content"])
		}
	}
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	h := testhelpers.NewHarness(t, nil)
	alice := h.NewUser(t, "alice")
	bob := h.NewUser(t, "bob")
	room := h.NewRoom(t, alice, bob)

	observer := h.Dial(t, bob)
	waitForConnections(t, h, 1)

	phone := h.Dial(t, alice)
	testhelpers.Expect(t, observer, "user_connected")
	laptop := h.Dial(t, alice)
	waitForConnections(t, h, 3)

	testhelpers.Join(t, phone, room)
	testhelpers.Join(t, laptop, room)

	testhelpers.Send(t, observer, "join_room", map[string]string{"room_id": room})
	testhelpers.Expect(t, observer, "user_joined")
	testhelpers.Send(t, observer, "send_message", map[string]string{"room_id": room, "content": "both devices"})
	testhelpers.Expect(t, phone, "receive_message")
	testhelpers.Expect(t, laptop, "receive_message")

	if err := testhelpers.CloseWebSocket(phone); err != nil {
		t.Fatalf("Failed to close phone: %v", err)
	}
	testhelpers.Expect(t, observer, "user_left")
	waitForConnections(t, h, 2)

	// alice is still online through the laptop
	testhelpers.ExpectNone(t, observer, "user_disconnected", quietPeriod)
}

func TestConcurrentConnectAndDisconnect(t *testing.T) {
	h := testhelpers.NewHarness(t, nil)
	owner := h.NewUser(t, "owner")

	const numClients = 20
	users := make([]testhelpers.User, numClients)
	for i := range users {
		users[i] = h.NewUser(t, fmt.Sprintf("user%d", i))
	}
	room := h.NewRoom(t, owner, users[:10]...)

	var wg sync.WaitGroup
	errs := make(chan error, numClients)
	for _, u := range users {
		wg.Add(1)
		go func(u testhelpers.User) {
			defer wg.Done()
			conn, err := h.DialWithToken(u.Token, testhelpers.TestOrigin)
			if err != nil {
				errs <- fmt.Errorf("%s: %w", u.Username, err)
				return
			}
			payload := fmt.Sprintf(`{"event":"join_room","data":{"room_id":%q}}`, room)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				errs <- fmt.Errorf("%s: %w", u.Username, err)
			}
			_ = testhelpers.CloseWebSocket(conn)
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	waitForConnections(t, h, 0)
	if rooms := h.Server.Snapshot().Rooms; rooms != 0 {
		t.Errorf("Expected no live rooms after everyone left, got %d", rooms)
	}
}
