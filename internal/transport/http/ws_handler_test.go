package http

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"training-portal/internal/domain"
)

func TestWebSocketStreamsAuthState(t *testing.T) {
	f := newFixture(t)

	u := "ws" + f.ts.URL[len("http"):] + "/ws/auth"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial snapshot is unauthenticated.
	view := readAuthState(t, conn)
	if view.HasSession {
		t.Fatalf("expected unauthenticated initial snapshot, got %+v", view)
	}

	if err := f.manager.SignIn(context.Background(), "admin@example.com", "Str0ng!pass"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view = readAuthState(t, conn)
		if view.HasSession && view.IsAdmin {
			return
		}
	}
	t.Fatalf("no admin snapshot delivered, last view %+v", view)
}

func readAuthState(t *testing.T, conn *websocket.Conn) domain.AuthorizationView {
	t.Helper()
	var msg struct {
		Type    string                   `json:"type"`
		Payload domain.AuthorizationView `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "authState" {
		t.Fatalf("expected authState message, got %s", msg.Type)
	}
	return msg.Payload
}
