package driving

import (
	"context"
	"io"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

// ConfirmFunc asks the user to confirm a destructive action
type ConfirmFunc func() bool

// DashboardView is the state container behind the document dashboard
type DashboardView interface {
	// Mount starts the periodic refresh; Unmount stops it
	Mount(ctx context.Context) error
	Unmount()

	// State returns a snapshot of the dashboard
	State() domain.DashboardState

	// Subscribe streams snapshots until the returned cancel func is called
	Subscribe() (<-chan domain.DashboardState, func())

	Refresh(ctx context.Context) error
	Upload(ctx context.Context, file domain.UploadFile, content io.Reader) error
	Delete(ctx context.Context, id int64, confirm ConfirmFunc) error

	OpenImport()
	SetTicker(raw string)
	CloseImport() error
	SubmitImport(ctx context.Context) (*domain.ImportResult, error)

	// ImportTicker sets the ticker and submits it atomically
	ImportTicker(ctx context.Context, raw string) (*domain.ImportResult, error)

	Logout(ctx context.Context) error
}

// ChatView is the state container behind one chat transcript
type ChatView interface {
	// State returns a snapshot of the transcript
	State() domain.ChatState

	// Subscribe streams snapshots until the returned cancel func is called
	Subscribe() (<-chan domain.ChatState, func())

	// Submit sends one question. Blank input is ignored; a second
	// submission while one is outstanding fails with domain.ErrBusy.
	Submit(ctx context.Context, question string) error

	// Close drops the transcript; late answers are discarded
	Close()
}

// ViewRegistry hands out the live view containers shared by the
// presentation layers
type ViewRegistry interface {
	Dashboard() DashboardView

	// Chat returns the session for a scope, creating it on first use
	Chat(scope domain.Scope) (ChatView, error)

	// CloseChat drops the transcript of one scope
	CloseChat(scope domain.Scope)

	// ResetChats drops every transcript
	ResetChats()
}
