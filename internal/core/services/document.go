package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
	"github.com/custodia-labs/investigraph/internal/core/ports/driving"
)

// Ensure documentService implements DocumentService
var _ driving.DocumentService = (*documentService)(nil)

// documentService implements the DocumentService interface
type documentService struct {
	api driven.InvestiGraphAPI
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(api driven.InvestiGraphAPI) driving.DocumentService {
	return &documentService{api: api}
}

func (s *documentService) List(ctx context.Context) ([]domain.Document, error) {
	return s.api.ListDocuments(ctx)
}

// Upload sends a single PDF. Other file types are rejected locally.
func (s *documentService) Upload(ctx context.Context, file domain.UploadFile, content io.Reader) (*domain.Document, error) {
	if file.Name == "" || content == nil {
		return nil, fmt.Errorf("%w: no file selected", domain.ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(file.Name), ".pdf") {
		return nil, fmt.Errorf("%w: only PDF files can be uploaded", domain.ErrInvalidInput)
	}
	return s.api.UploadDocument(ctx, file, content)
}

func (s *documentService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrInvalidInput
	}
	return s.api.DeleteDocument(ctx, id)
}

func (s *documentService) Chunks(ctx context.Context, id int64) ([]domain.Chunk, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidInput
	}
	return s.api.DocumentChunks(ctx, id)
}

func (s *documentService) Graph(ctx context.Context, id int64) (*domain.DocumentGraph, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidInput
	}
	return s.api.DocumentGraph(ctx, id)
}
