package domain

import (
	"encoding/json"
	"time"
)

// Document represents a document owned by the current user.
// Documents are created server-side (upload or SEC import) and are never
// mutated by the client.
type Document struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	OwnerID   int64     `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON accepts both "uploaded_at" (backend schema) and
// "created_at" for the creation timestamp.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         int64      `json:"id"`
		Filename   string     `json:"filename"`
		OwnerID    int64      `json:"owner_id"`
		CreatedAt  *time.Time `json:"created_at"`
		UploadedAt *time.Time `json:"uploaded_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.ID = raw.ID
	d.Filename = raw.Filename
	d.OwnerID = raw.OwnerID
	switch {
	case raw.CreatedAt != nil:
		d.CreatedAt = *raw.CreatedAt
	case raw.UploadedAt != nil:
		d.CreatedAt = *raw.UploadedAt
	default:
		d.CreatedAt = time.Time{}
	}
	return nil
}

// Chunk is an indexed excerpt of a document
type Chunk struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Text       string `json:"text"`
	PageNumber int    `json:"page_number,omitempty"`
}

// GraphNode is an entity extracted from a document
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// GraphEdge is a relation between two entities
type GraphEdge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// DocumentGraph is the knowledge graph built for a document
type DocumentGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// UploadFile describes a local file selected for upload
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
}
