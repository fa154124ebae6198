// Package investigraphtest provides an in-memory InvestiGraph backend for
// tests and offline demos. It speaks the same wire format as the real
// backend: form-encoded login, bearer JWTs, FastAPI style error bodies.
package investigraphtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/investigraph/internal/adapters/driven/auth"
	"github.com/custodia-labs/investigraph/internal/core/domain"
)

type user struct {
	id           int64
	username     string
	email        string
	passwordHash string
	active       bool
}

type document struct {
	id         int64
	ownerID    int64
	filename   string
	uploadedAt time.Time
	text       string
}

type pendingImport struct {
	ownerID   int64
	ticker    string
	remaining int
}

// ErrUnknownUser is returned by helpers given an unregistered username
var ErrUnknownUser = errors.New("unknown user")

// Backend is an in-memory stand-in for the InvestiGraph API
type Backend struct {
	auth *auth.Adapter
	mux  *http.ServeMux

	mu        sync.Mutex
	users     map[string]*user
	documents map[int64]*document
	imports   []*pendingImport
	nextUser  int64
	nextDoc   int64
	requests  map[string]int

	// ImportDelay is the number of document list requests after which a
	// submitted SEC import materialises. Zero completes on the next list.
	ImportDelay int

	// Failure toggles
	FailQueries bool
	FailUploads bool
	FailList    bool
	FailImports bool
}

// NewBackend creates an empty backend
func NewBackend() *Backend {
	b := &Backend{
		auth:      auth.NewAdapterWithCost("investigraphtest-secret", 4),
		users:     make(map[string]*user),
		documents: make(map[int64]*document),
		nextUser:  1,
		nextDoc:   1,
		requests:  make(map[string]int),
	}
	b.routes()
	return b
}

// NewServer starts an httptest server around a fresh backend
func NewServer() (*httptest.Server, *Backend) {
	b := NewBackend()
	return Serve(b), b
}

// Serve starts a loopback server for an existing backend
func Serve(b *Backend) *httptest.Server {
	return httptest.NewServer(b)
}

func (b *Backend) routes() {
	b.mux = http.NewServeMux()
	b.mux.HandleFunc("GET /health", b.handleHealth)
	b.mux.HandleFunc("POST /token", b.handleToken)
	b.mux.HandleFunc("POST /users/", b.handleCreateUser)
	b.mux.HandleFunc("GET /users/me", b.authenticated(b.handleMe))
	b.mux.HandleFunc("GET /documents/", b.authenticated(b.handleListDocuments))
	b.mux.HandleFunc("POST /documents/", b.authenticated(b.handleUpload))
	b.mux.HandleFunc("POST /documents/fetch-sec", b.authenticated(b.handleFetchSEC))
	b.mux.HandleFunc("POST /documents/query", b.authenticated(b.handleQueryAll))
	b.mux.HandleFunc("DELETE /documents/{id}", b.authenticated(b.handleDelete))
	b.mux.HandleFunc("GET /documents/{id}/chunks", b.authenticated(b.handleChunks))
	b.mux.HandleFunc("GET /documents/{id}/graph", b.authenticated(b.handleGraph))
	b.mux.HandleFunc("POST /documents/{id}/query", b.authenticated(b.handleQueryDocument))
}

// ServeHTTP implements http.Handler
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests[r.Method+" "+r.URL.Path]++
	b.mu.Unlock()
	b.mux.ServeHTTP(w, r)
}

// Requests returns how many times a "METHOD /path" was requested
func (b *Backend) Requests(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[route]
}

// Configure applies fn while holding the backend lock. Use it to flip
// failure toggles once the server is running.
func (b *Backend) Configure(fn func(b *Backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

// AddUser registers an account directly
func (b *Backend) AddUser(username, email, password string) error {
	hash, err := b.auth.HashPassword(password)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[username]; ok {
		return fmt.Errorf("user %s exists", username)
	}
	b.users[username] = &user{id: b.nextUser, username: username, email: email, passwordHash: hash, active: true}
	b.nextUser++
	return nil
}

// AddDocument stores a document for the user as if it had been uploaded
func (b *Backend) AddDocument(username, filename string) (domain.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[username]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	return b.addDocumentLocked(u.id, filename, "").toDomain(), nil
}

// DocumentCount returns the number of documents owned by the user
func (b *Backend) DocumentCount(username string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[username]
	if !ok {
		return 0
	}
	return len(b.listLocked(u.id))
}

// IssueToken returns a valid access token for a registered user
func (b *Backend) IssueToken(username string) (string, error) {
	return b.auth.GenerateToken(username)
}

func (b *Backend) addDocumentLocked(ownerID int64, filename, text string) *document {
	if text == "" {
		text = fmt.Sprintf("Contents of %s. Revenue grew year over year while operating expenses remained stable.", filename)
	}
	d := &document{
		id:         b.nextDoc,
		ownerID:    ownerID,
		filename:   filename,
		uploadedAt: time.Now().UTC(),
		text:       text,
	}
	b.nextDoc++
	b.documents[d.id] = d
	return d
}

func (b *Backend) listLocked(ownerID int64) []*document {
	var docs []*document
	for _, d := range b.documents {
		if d.ownerID == ownerID {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].id < docs[j].id })
	return docs
}

func (d *document) toDomain() domain.Document {
	return domain.Document{ID: d.id, Filename: d.filename, OwnerID: d.ownerID, CreatedAt: d.uploadedAt}
}

// wire shapes

type documentResponse struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	OwnerID    int64     `json:"owner_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type chunkResponse struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	DocumentID int64  `json:"document_id"`
}

type queryResponse struct {
	Answer  string          `json:"answer"`
	Context []chunkResponse `json:"context"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (b *Backend) authenticated(next func(http.ResponseWriter, *http.Request, *user)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims, err := b.auth.ParseToken(token)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		b.mu.Lock()
		u, found := b.users[claims.Subject]
		b.mu.Unlock()
		if !found {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r, u)
	}
}

func (b *Backend) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	b.mu.Lock()
	u, ok := b.users[username]
	b.mu.Unlock()
	if !ok || !b.auth.VerifyPassword(password, u.passwordHash) {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token, err := b.auth.GenerateToken(u.username)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (b *Backend) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	var missing []map[string]any
	for field, value := range map[string]string{"username": req.Username, "email": req.Email, "password": req.Password} {
		if value == "" {
			missing = append(missing, map[string]any{
				"loc":  []string{"body", field},
				"msg":  "field required",
				"type": "value_error.missing",
			})
		}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": missing})
		return
	}

	if err := b.AddUser(req.Username, req.Email, req.Password); err != nil {
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}

	b.mu.Lock()
	u := b.users[req.Username]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, domain.User{ID: u.id, Username: u.username, Email: u.email, IsActive: u.active})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request, u *user) {
	writeJSON(w, http.StatusOK, domain.User{ID: u.id, Username: u.username, Email: u.email, IsActive: u.active})
}

func (b *Backend) handleListDocuments(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	if b.FailList {
		b.mu.Unlock()
		writeDetail(w, http.StatusInternalServerError, "database unavailable")
		return
	}

	// Advance pending imports for this user
	remaining := b.imports[:0]
	for _, imp := range b.imports {
		if imp.ownerID == u.id {
			if imp.remaining <= 0 {
				b.addDocumentLocked(u.id, imp.ticker+"_10K.pdf", "")
				continue
			}
			imp.remaining--
		}
		remaining = append(remaining, imp)
	}
	b.imports = remaining

	docs := b.listLocked(u.id)
	b.mu.Unlock()

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{ID: d.id, Filename: d.filename, OwnerID: d.ownerID, UploadedAt: d.uploadedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	fail := b.FailUploads
	b.mu.Unlock()
	if fail {
		writeDetail(w, http.StatusInternalServerError, "processing failed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "file"}, "msg": "field required"}},
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "unreadable file")
		return
	}

	b.mu.Lock()
	d := b.addDocumentLocked(u.id, header.Filename, fmt.Sprintf("Uploaded file %s (%d bytes).", header.Filename, len(data)))
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, documentResponse{ID: d.id, Filename: d.filename, OwnerID: d.ownerID, UploadedAt: d.uploadedAt})
}

func (b *Backend) handleFetchSEC(w http.ResponseWriter, r *http.Request, u *user) {
	var req domain.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Ticker) == "" {
		writeDetail(w, http.StatusBadRequest, "ticker is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailImports {
		writeDetail(w, http.StatusInternalServerError, "EDGAR unavailable")
		return
	}
	b.imports = append(b.imports, &pendingImport{ownerID: u.id, ticker: req.Ticker, remaining: b.ImportDelay})
	writeJSON(w, http.StatusOK, domain.ImportAck{
		Message: fmt.Sprintf("Started fetching 10-K for %s. Check back in a minute.", req.Ticker),
	})
}

func (b *Backend) documentFor(w http.ResponseWriter, r *http.Request, u *user) (*document, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid document id")
		return nil, false
	}

	b.mu.Lock()
	d, ok := b.documents[id]
	b.mu.Unlock()
	if !ok || d.ownerID != u.id {
		writeDetail(w, http.StatusNotFound, "Document not found")
		return nil, false
	}
	return d, true
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request, u *user) {
	d, ok := b.documentFor(w, r, u)
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.documents, d.id)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleChunks(w http.ResponseWriter, r *http.Request, u *user) {
	d, ok := b.documentFor(w, r, u)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, chunksOf(d))
}

func (b *Backend) handleGraph(w http.ResponseWriter, r *http.Request, u *user) {
	d, ok := b.documentFor(w, r, u)
	if !ok {
		return
	}
	docNode := fmt.Sprintf("doc-%d", d.id)
	writeJSON(w, http.StatusOK, domain.DocumentGraph{
		Nodes: []domain.GraphNode{
			{ID: docNode, Label: d.filename, Type: "Document"},
			{ID: "metric-revenue", Label: "Revenue", Type: "Metric"},
		},
		Edges: []domain.GraphEdge{{Source: docNode, Target: "metric-revenue", Relation: "REPORTS"}},
	})
}

func chunksOf(d *document) []chunkResponse {
	return []chunkResponse{{ID: d.id * 100, Text: d.text, DocumentID: d.id}}
}

func (b *Backend) answer(w http.ResponseWriter, r *http.Request, docs []*document) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	fail := b.FailQueries
	b.mu.Unlock()
	if fail {
		writeDetail(w, http.StatusInternalServerError, "LLM unavailable")
		return
	}

	resp := queryResponse{Answer: "Based on the documents: " + req.Question, Context: []chunkResponse{}}
	for _, d := range docs {
		resp.Context = append(resp.Context, chunksOf(d)...)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleQueryDocument(w http.ResponseWriter, r *http.Request, u *user) {
	d, ok := b.documentFor(w, r, u)
	if !ok {
		return
	}
	b.answer(w, r, []*document{d})
}

func (b *Backend) handleQueryAll(w http.ResponseWriter, r *http.Request, u *user) {
	b.mu.Lock()
	docs := b.listLocked(u.id)
	b.mu.Unlock()
	b.answer(w, r, docs)
}
