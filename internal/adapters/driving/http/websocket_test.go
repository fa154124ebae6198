package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

func dialEvents(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var event Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

func TestEvents_RequiresSession(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %+v", resp)
	}
}

func TestEvents_InvalidScope(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?scope=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %+v", resp)
	}
}

func TestEvents_DashboardSnapshots(t *testing.T) {
	env := newTestEnv(t, domain.Document{ID: 1, Filename: "a.pdf"})
	env.login(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	conn := dialEvents(t, srv, "")

	first := readEvent(t, conn)
	if first.Type != EventDashboard || first.Dashboard == nil {
		t.Fatalf("expected initial dashboard event, got %+v", first)
	}

	resp, err := http.Post(srv.URL+"/api/v1/dashboard/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Type == EventDashboard && len(event.Dashboard.Documents) == 1 {
			return
		}
	}
	t.Fatal("expected a dashboard event with the refreshed list")
}

func TestEvents_ChatSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	conn := dialEvents(t, srv, "?scope=global")

	// Initial dashboard and chat snapshots
	seenChat := false
	for i := 0; i < 2; i++ {
		if event := readEvent(t, conn); event.Type == EventChat {
			seenChat = true
			if event.Scope != domain.GlobalScope {
				t.Errorf("expected global scope, got %s", event.Scope)
			}
		}
	}
	if !seenChat {
		t.Fatal("expected initial chat snapshot")
	}

	resp, err := http.Post(srv.URL+"/api/v1/chats/global/messages", "application/json",
		bytes.NewReader(mustJSON(MessageRequest{Question: "What were total revenues?"})))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Type == EventChat && event.Chat != nil && len(event.Chat.Messages) == 2 {
			if event.Chat.Messages[1].Role != domain.RoleBot {
				t.Errorf("expected bot reply, got %+v", event.Chat.Messages[1])
			}
			return
		}
	}
	t.Fatal("expected a chat event with the answer")
}
