package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Role identifies the author of a chat message
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// FallbackAnswer replaces the bot reply when a query fails
const FallbackAnswer = "Sorry, I encountered an error."

// GlobalScope is the scope sentinel for querying all documents
const GlobalScope Scope = "global"

// CitationExcerptLength is the number of characters shown per citation
const CitationExcerptLength = 50

// Scope selects the documents a chat session queries: either a single
// document id or GlobalScope.
type Scope string

// IsGlobal reports whether the scope queries the whole corpus
func (s Scope) IsGlobal() bool {
	return s == GlobalScope
}

// DocumentID returns the document id of a per-document scope
func (s Scope) DocumentID() (int64, error) {
	if s.IsGlobal() {
		return 0, fmt.Errorf("%w: global scope has no document id", ErrInvalidInput)
	}
	id, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad document id %q", ErrInvalidInput, string(s))
	}
	return id, nil
}

// Title is the heading shown above the transcript
func (s Scope) Title() string {
	if s.IsGlobal() {
		return "Global Chat (All Documents)"
	}
	return "Document Chat"
}

// DocumentScope builds the scope for a single document
func DocumentScope(id int64) Scope {
	return Scope(strconv.FormatInt(id, 10))
}

// ParseScope validates a route value as a scope
func ParseScope(raw string) (Scope, error) {
	s := Scope(strings.TrimSpace(raw))
	if s.IsGlobal() {
		return s, nil
	}
	if _, err := s.DocumentID(); err != nil {
		return "", err
	}
	return s, nil
}

// Citation is a supporting excerpt returned alongside an answer
type Citation struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Excerpt returns the first CitationExcerptLength characters followed by
// an ellipsis. The full text is never shown.
func (c Citation) Excerpt() string {
	r := []rune(c.Text)
	if len(r) > CitationExcerptLength {
		r = r[:CitationExcerptLength]
	}
	return string(r) + "..."
}

// String renders the citation as a source line
func (c Citation) String() string {
	return fmt.Sprintf("Page %d: %s", c.PageNumber, c.Excerpt())
}

// ChatMessage is one transcript entry
type ChatMessage struct {
	Role    Role       `json:"role"`
	Content string     `json:"content"`
	Context []Citation `json:"context,omitempty"`
}

// QueryRequest is the body of both query endpoints
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse is the answer to a question with supporting citations
type QueryResponse struct {
	Answer  string     `json:"answer"`
	Context []Citation `json:"context"`
}

// IsBlank reports whether a question has no content
func IsBlank(question string) bool {
	return strings.TrimSpace(question) == ""
}
