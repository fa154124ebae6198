package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

// maxUploadMemory is the multipart memory budget; larger files spill to disk
const maxUploadMemory = 32 << 20

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// SessionResponse describes the logged-in session
// @Description Logged-in session
type SessionResponse struct {
	Username  string       `json:"username" example:"analyst"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	User      *domain.User `json:"user,omitempty"`
}

// ImportRequest is the body of the SEC import endpoint
// @Description SEC import request
type ImportRequest struct {
	Ticker string `json:"ticker" example:"AAPL"`
}

// MessageRequest is the body of the chat message endpoint
// @Description Chat question
type MessageRequest struct {
	Question string `json:"question" example:"What were total revenues?"`
}

func newSessionResponse(session *domain.Session, user *domain.User) SessionResponse {
	resp := SessionResponse{Username: session.Username, User: user}
	if !session.ExpiresAt.IsZero() {
		expiresAt := session.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the local server
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks that the InvestiGraph backend is reachable
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "Backend unreachable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.backend.Health(ctx); err != nil {
			s.logger.Warn("backend not ready", "error", err)
			writeError(w, http.StatusServiceUnavailable, "backend unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

// handleVersion godoc
// @Summary      Get version
// @Description  Returns the version of the local server
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "api description unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// Auth endpoints

// handleLogin godoc
// @Summary      Log in
// @Description  Exchanges credentials for a backend token and stores it as the session
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      domain.LoginRequest  true  "Login credentials"
// @Success      200      {object}  SessionResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Invalid credentials"
// @Router       /auth/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, domain.InvalidCredentialsMessage)
			return
		}
		s.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	// The dashboard keeps refreshing in the background for the new session
	if err := s.views.Dashboard().Mount(s.baseContext()); err != nil {
		s.logger.Warn("failed to mount dashboard", "error", err)
	}

	writeJSON(w, http.StatusOK, newSessionResponse(session, nil))
}

// handleSignUp godoc
// @Summary      Sign up
// @Description  Creates a backend account. Does not log in.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      domain.SignUpRequest  true  "Account details"
// @Success      201      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse  "Registration failed, with the backend reason when known"
// @Router       /auth/signup [post]
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req domain.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.authService.SignUp(r.Context(), req); err != nil {
		var regErr *domain.RegistrationError
		if errors.As(err, &regErr) {
			writeError(w, http.StatusBadRequest, regErr.Error())
			return
		}
		writeError(w, http.StatusBadRequest, domain.RegistrationFailedMessage)
		return
	}

	writeJSON(w, http.StatusCreated, StatusResponse{Status: "created"})
}

// handleLogout godoc
// @Summary      Log out
// @Description  Clears the stored session and drops every chat transcript. The backend is not contacted.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      401  {object}  ErrorResponse  "Not logged in"
// @Router       /auth/logout [post]
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.views.ResetChats()

	if err := s.views.Dashboard().Logout(r.Context()); err != nil {
		s.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleGetMe godoc
// @Summary      Current session
// @Description  Returns the stored session and the backend profile of its user
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  SessionResponse
// @Failure      401  {object}  ErrorResponse  "Not logged in"
// @Failure      502  {object}  ErrorResponse  "Backend error"
// @Router       /me [get]
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	session := GetSession(r.Context())
	if session == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	user, err := s.authService.Me(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(session, user))
}

// Dashboard endpoints

// handleGetDashboard godoc
// @Summary      Dashboard snapshot
// @Description  Returns the document list and the upload and import indicators
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  domain.DashboardState
// @Failure      401  {object}  ErrorResponse  "Not logged in"
// @Router       /dashboard [get]
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.views.Dashboard().State())
}

// handleRefreshDashboard godoc
// @Summary      Refresh documents
// @Description  Refetches the document list immediately
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  domain.DashboardState
// @Failure      502  {object}  ErrorResponse  "Backend error"
// @Router       /dashboard/refresh [post]
func (s *Server) handleRefreshDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard := s.views.Dashboard()
	if err := dashboard.Refresh(r.Context()); err != nil {
		s.writeDomainError(w, err, "failed to refresh documents")
		return
	}
	writeJSON(w, http.StatusOK, dashboard.State())
}

// Document endpoints

// handleUploadDocument godoc
// @Summary      Upload a PDF
// @Description  Uploads one PDF file. The document list is refetched afterwards.
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "PDF file"
// @Success      201   {object}  domain.DashboardState
// @Failure      400   {object}  ErrorResponse  "Missing or non-PDF file"
// @Failure      409   {object}  ErrorResponse  "Upload already in progress"
// @Failure      502   {object}  ErrorResponse  "Backend error"
// @Router       /documents [post]
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	dashboard := s.views.Dashboard()
	upload := domain.UploadFile{Name: header.Filename, Size: header.Size}
	if err := dashboard.Upload(r.Context(), upload, file); err != nil {
		s.writeDomainError(w, err, "upload failed")
		return
	}

	writeJSON(w, http.StatusCreated, dashboard.State())
}

// handleDeleteDocument godoc
// @Summary      Delete a document
// @Description  Deletes a document. Requires confirm=true; the list is refetched afterwards.
// @Tags         Documents
// @Produce      json
// @Param        id       path      int     true  "Document ID"
// @Param        confirm  query     bool    true  "Must be true"
// @Success      200      {object}  domain.DashboardState
// @Failure      400      {object}  ErrorResponse  "Invalid id or not confirmed"
// @Failure      404      {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id} [delete]
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	dashboard := s.views.Dashboard()
	if err := dashboard.Delete(r.Context(), id, func() bool { return confirmed }); err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			writeError(w, http.StatusBadRequest, "deletion must be confirmed with confirm=true")
			return
		}
		s.writeDomainError(w, err, "delete failed")
		return
	}

	writeJSON(w, http.StatusOK, dashboard.State())
}

// handleGetDocumentChunks godoc
// @Summary      Document chunks
// @Description  Returns the indexed chunks of a document
// @Tags         Documents
// @Produce      json
// @Param        id   path      int  true  "Document ID"
// @Success      200  {array}   domain.Chunk
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id}/chunks [get]
func (s *Server) handleGetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	chunks, err := s.docService.Chunks(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "failed to load chunks")
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

// handleGetDocumentGraph godoc
// @Summary      Document graph
// @Description  Returns the knowledge graph of a document
// @Tags         Documents
// @Produce      json
// @Param        id   path      int  true  "Document ID"
// @Success      200  {object}  domain.DocumentGraph
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id}/graph [get]
func (s *Server) handleGetDocumentGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	graph, err := s.docService.Graph(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "failed to load graph")
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// handleImport godoc
// @Summary      Import an SEC filing
// @Description  Asks the backend to fetch the latest 10-K for a ticker, then waits until a new document appears
// @Tags         Documents
// @Accept       json
// @Produce      json
// @Param        request  body      ImportRequest  true  "Ticker"
// @Success      200      {object}  domain.ImportResult
// @Failure      400      {object}  ErrorResponse  "Ticker missing"
// @Failure      409      {object}  ErrorResponse  "Import already in progress"
// @Failure      504      {object}  ErrorResponse  "No new document appeared in time"
// @Router       /imports [post]
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.views.Dashboard().ImportTicker(r.Context(), req.Ticker)
	if err != nil {
		s.writeDomainError(w, err, domain.ImportFailedMessage)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Chat endpoints

// handleGetChat godoc
// @Summary      Chat transcript
// @Description  Returns the transcript of a chat scope (document id or "global")
// @Tags         Chat
// @Produce      json
// @Param        scope  path      string  true  "Document ID or global"
// @Success      200    {object}  domain.ChatState
// @Failure      400    {object}  ErrorResponse  "Invalid scope"
// @Router       /chats/{scope} [get]
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.views.Chat(domain.Scope(r.PathValue("scope")))
	if err != nil {
		s.writeDomainError(w, err, "invalid scope")
		return
	}
	writeJSON(w, http.StatusOK, chat.State())
}

// handlePostMessage godoc
// @Summary      Ask a question
// @Description  Appends the question and the answer (or the fallback apology) to the transcript. Blank questions are ignored.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Param        scope    path      string          true  "Document ID or global"
// @Param        request  body      MessageRequest  true  "Question"
// @Success      200      {object}  domain.ChatState
// @Failure      409      {object}  ErrorResponse  "Previous question still awaiting an answer"
// @Router       /chats/{scope}/messages [post]
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chat, err := s.views.Chat(domain.Scope(r.PathValue("scope")))
	if err != nil {
		s.writeDomainError(w, err, "invalid scope")
		return
	}

	if err := chat.Submit(r.Context(), req.Question); err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			writeError(w, http.StatusConflict, "chat was closed")
			return
		}
		s.writeDomainError(w, err, "failed to submit question")
		return
	}
	writeJSON(w, http.StatusOK, chat.State())
}

// handleCloseChat godoc
// @Summary      Close a chat
// @Description  Drops the transcript of a scope
// @Tags         Chat
// @Param        scope  path  string  true  "Document ID or global"
// @Success      204
// @Failure      400  {object}  ErrorResponse  "Invalid scope"
// @Router       /chats/{scope} [delete]
func (s *Server) handleCloseChat(w http.ResponseWriter, r *http.Request) {
	scope, err := domain.ParseScope(r.PathValue("scope"))
	if err != nil {
		s.writeDomainError(w, err, "invalid scope")
		return
	}
	s.views.CloseChat(scope)
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

// statusFor maps a domain error onto an HTTP status
func statusFor(err error) int {
	var apiErr *domain.APIError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrImportTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrServiceUnavailable),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with its mapped status. Server-side
// failures get the fallback message; client errors keep their text.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	message := fallback
	switch {
	case status == http.StatusUnauthorized:
		message = "unauthorized"
	case status < http.StatusInternalServerError:
		message = err.Error()
	default:
		s.logger.Warn(fallback, "error", err, "status", status)
	}
	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
