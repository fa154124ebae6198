package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Event types pushed over /api/v1/events
const (
	EventDashboard = "dashboard"
	EventChat      = "chat"
)

// Event is one snapshot pushed to a WebSocket client
type Event struct {
	Type      string                 `json:"type"`
	Scope     domain.Scope           `json:"scope,omitempty"`
	Dashboard *domain.DashboardState `json:"dashboard,omitempty"`
	Chat      *domain.ChatState      `json:"chat,omitempty"`
}

// handleEvents godoc
// @Summary      Event stream
// @Description  WebSocket stream of dashboard snapshots, plus chat snapshots for every scope query parameter
// @Tags         Events
// @Param        scope  query  []string  false  "Chat scopes to follow"  collectionFormat(multi)
// @Success      101
// @Failure      401  {object}  ErrorResponse  "Not logged in"
// @Router       /events [get]
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Validate scopes before upgrading so errors are still plain HTTP
	var scopes []domain.Scope
	for _, raw := range r.URL.Query()["scope"] {
		scope, err := domain.ParseScope(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scopes = append(scopes, scope)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Hijacked connections are not closed by Shutdown, so also follow the
	// server context
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.baseContext(), cancel)
	defer stop()

	events := make(chan Event, 8)
	var wg sync.WaitGroup

	dashboard := s.views.Dashboard()
	dashCh, unsubscribe := dashboard.Subscribe()
	defer unsubscribe()

	initial := dashboard.State()
	events <- Event{Type: EventDashboard, Dashboard: &initial}

	wg.Add(1)
	go func() {
		defer wg.Done()
		forward(ctx, dashCh, events, func(state domain.DashboardState) Event {
			return Event{Type: EventDashboard, Dashboard: &state}
		})
	}()

	for _, scope := range scopes {
		chat, err := s.views.Chat(scope)
		if err != nil {
			continue
		}
		chatCh, unsubscribeChat := chat.Subscribe()
		defer unsubscribeChat()

		state := chat.State()
		select {
		case events <- Event{Type: EventChat, Scope: scope, Chat: &state}:
		default:
		}

		wg.Add(1)
		go func(scope domain.Scope) {
			defer wg.Done()
			forward(ctx, chatCh, events, func(state domain.ChatState) Event {
				return Event{Type: EventChat, Scope: scope, Chat: &state}
			})
		}(scope)
	}

	// Reader: handles pongs and notices the client going away
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.writeEvents(ctx, conn, events)
	cancel()
	wg.Wait()
}

// writeEvents is the single writer of a connection
func (s *Server) writeEvents(ctx context.Context, conn *websocket.Conn, events <-chan Event) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case event := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forward copies snapshots from a subscription into the connection's
// event queue until the subscription closes or ctx ends
func forward[T any](ctx context.Context, in <-chan T, out chan<- Event, wrap func(T) Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- wrap(v):
			case <-ctx.Done():
				return
			}
		}
	}
}
