package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
	"github.com/custodia-labs/investigraph/internal/core/ports/driving"
)

// Ensure ChatSession implements ChatView
var _ driving.ChatView = (*ChatSession)(nil)

// ChatSession holds one append-only transcript bound to a scope.
// Every submitted question produces exactly one user entry followed by
// exactly one bot entry, even when the query fails.
type ChatSession struct {
	api      driven.InvestiGraphAPI
	scope    domain.Scope
	logger   *slog.Logger
	notifier *Notifier[domain.ChatState]

	mu       sync.Mutex
	messages []domain.ChatMessage
	awaiting bool
	closed   bool
}

// ChatSessionConfig holds configuration for a chat session.
type ChatSessionConfig struct {
	API    driven.InvestiGraphAPI
	Scope  domain.Scope
	Logger *slog.Logger
}

// NewChatSession creates an empty transcript for the scope
func NewChatSession(cfg ChatSessionConfig) (*ChatSession, error) {
	scope, err := domain.ParseScope(string(cfg.Scope))
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ChatSession{
		api:      cfg.API,
		scope:    scope,
		logger:   logger.With("scope", string(scope)),
		notifier: NewNotifier[domain.ChatState](),
	}, nil
}

// Scope returns the scope the session queries
func (c *ChatSession) Scope() domain.Scope {
	return c.scope
}

// State returns a snapshot of the transcript
func (c *ChatSession) State() domain.ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *ChatSession) snapshot() domain.ChatState {
	phase := domain.PhaseIdle
	if c.awaiting {
		phase = domain.PhaseAwaiting
	}
	return domain.ChatState{
		Scope:    c.scope,
		Title:    c.scope.Title(),
		Messages: append([]domain.ChatMessage(nil), c.messages...),
		Phase:    phase,
	}
}

// Subscribe streams transcript snapshots
func (c *ChatSession) Subscribe() (<-chan domain.ChatState, func()) {
	return c.notifier.Subscribe()
}

// Submit appends the question, queries the backend and appends the answer.
// It blocks until the bot entry is appended.
func (c *ChatSession) Submit(ctx context.Context, question string) error {
	if domain.IsBlank(question) {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrCancelled
	}
	if c.awaiting {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	c.awaiting = true
	c.messages = append(c.messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})
	c.notifier.Publish(c.snapshot())
	c.mu.Unlock()

	reply := c.ask(ctx, question)

	c.mu.Lock()
	c.awaiting = false
	if c.closed {
		// The view went away while the query was in flight
		c.mu.Unlock()
		return nil
	}
	c.messages = append(c.messages, reply)
	c.notifier.Publish(c.snapshot())
	c.mu.Unlock()

	return nil
}

func (c *ChatSession) ask(ctx context.Context, question string) domain.ChatMessage {
	var (
		resp *domain.QueryResponse
		err  error
	)
	if c.scope.IsGlobal() {
		resp, err = c.api.QueryAll(ctx, question)
	} else {
		var id int64
		id, err = c.scope.DocumentID()
		if err == nil {
			resp, err = c.api.QueryDocument(ctx, id, question)
		}
	}

	if err != nil || resp == nil {
		c.logger.Warn("query failed", "error", err)
		return domain.ChatMessage{Role: domain.RoleBot, Content: domain.FallbackAnswer}
	}
	return domain.ChatMessage{Role: domain.RoleBot, Content: resp.Answer, Context: resp.Context}
}

// Close drops the transcript and ends every subscription
func (c *ChatSession) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.messages = nil
	c.mu.Unlock()

	c.notifier.Close()
}
