package driving

import (
	"context"
	"io"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

// DocumentService provides direct access to the document endpoints
type DocumentService interface {
	// List returns all documents of the user
	List(ctx context.Context) ([]domain.Document, error)

	// Upload sends a single PDF file
	Upload(ctx context.Context, file domain.UploadFile, content io.Reader) (*domain.Document, error)

	// Delete removes a document
	Delete(ctx context.Context, id int64) error

	// Chunks returns the indexed chunks of a document
	Chunks(ctx context.Context, id int64) ([]domain.Chunk, error)

	// Graph returns the knowledge graph of a document
	Graph(ctx context.Context, id int64) (*domain.DocumentGraph, error)
}

// ImportWorkflow submits an SEC import and waits for a new document
type ImportWorkflow interface {
	// Import submits the ticker and polls until the document count
	// exceeds baseline or the attempt budget is spent.
	Import(ctx context.Context, ticker string, baseline int) (*domain.ImportResult, error)
}
