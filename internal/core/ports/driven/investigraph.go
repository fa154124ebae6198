package driven

import (
	"context"
	"io"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

// InvestiGraphAPI is the backend REST contract consumed by the client.
// Implementations attach the current session token to every
// authenticated request.
type InvestiGraphAPI interface {
	// Login exchanges credentials for an access token (form-encoded)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error)

	// Register creates a new account
	Register(ctx context.Context, req domain.SignUpRequest) error

	// Me returns the profile of the authenticated user
	Me(ctx context.Context) (*domain.User, error)

	// ListDocuments returns every document owned by the user
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// UploadDocument sends a single file as multipart form data
	UploadDocument(ctx context.Context, file domain.UploadFile, content io.Reader) (*domain.Document, error)

	// ImportFiling asks the backend to fetch the latest 10-K for a ticker
	ImportFiling(ctx context.Context, ticker string) (*domain.ImportAck, error)

	// DeleteDocument removes a document by id
	DeleteDocument(ctx context.Context, id int64) error

	// DocumentChunks returns the indexed chunks of a document
	DocumentChunks(ctx context.Context, id int64) ([]domain.Chunk, error)

	// DocumentGraph returns the knowledge graph of a document
	DocumentGraph(ctx context.Context, id int64) (*domain.DocumentGraph, error)

	// QueryDocument asks a question about one document
	QueryDocument(ctx context.Context, id int64, question string) (*domain.QueryResponse, error)

	// QueryAll asks a question across all documents
	QueryAll(ctx context.Context, question string) (*domain.QueryResponse, error)

	// Health checks backend liveness
	Health(ctx context.Context) error
}

// TokenSource supplies the bearer token for authenticated requests
type TokenSource interface {
	// Token returns the current access token or domain.ErrSessionNotFound
	Token(ctx context.Context) (string, error)
}
