// Package investigraph provides a client for the InvestiGraph backend API.
package investigraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

const (
	// DefaultBaseURL is the address of a locally running backend.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	// sniffLen is the number of leading bytes used to detect a content type.
	sniffLen = 3072
)

// Ensure Client implements InvestiGraphAPI
var _ driven.InvestiGraphAPI = (*Client)(nil)

// Client is an InvestiGraph API client.
type Client struct {
	baseURL    string
	tokens     driven.TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimit sets a custom rate limit. Zero or less disables limiting.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new InvestiGraph API client. tokens supplies the
// bearer token for authenticated endpoints and may be nil.
func NewClient(tokens driven.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one outbound call
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool
}

func jsonRequest(method, path string, v any) (request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return request{}, fmt.Errorf("encode request: %w", err)
	}
	return request{
		method:      method,
		path:        path,
		body:        bytes.NewReader(data),
		contentType: "application/json",
		auth:        true,
	}, nil
}

// do executes a request and decodes a JSON response into result when non-nil
func (c *Client) do(ctx context.Context, r request, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if r.auth && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		switch {
		case err == nil:
			req.Header.Set("Authorization", "Bearer "+token)
		case errors.Is(err, domain.ErrSessionNotFound):
			// Sent unauthenticated; the backend answers 401
		default:
			return fmt.Errorf("get access token: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("investigraph request failed",
			"request_id", requestID, "method", r.method, "path", r.path, "error", err)
		return fmt.Errorf("%w: %s %s: %v", domain.ErrServiceUnavailable, r.method, r.path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("investigraph request",
		"request_id", requestID,
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &domain.APIError{
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(body),
			Endpoint:   r.path,
		}
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s response: %w", r.path, err)
	}
	return nil
}

// parseDetail extracts a human readable reason from an error body.
// The backend reports {"detail": "..."} or, for validation failures,
// {"detail": [{"msg": "..."}, ...]}.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return string(envelope.Detail)
}

// Login exchanges credentials for an access token
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", req.Username)
	form.Set("password", req.Password)

	var resp domain.TokenResponse
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new account
func (c *Client) Register(ctx context.Context, req domain.SignUpRequest) error {
	r, err := jsonRequest(http.MethodPost, "/users/", req)
	if err != nil {
		return err
	}
	r.auth = false
	return c.do(ctx, r, nil)
}

// Me returns the authenticated user's profile
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/me", auth: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListDocuments returns every document owned by the user
func (c *Client) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	docs := []domain.Document{}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/documents/", auth: true}, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// UploadDocument sends a file as multipart form data under the "file" field
func (c *Client) UploadDocument(ctx context.Context, file domain.UploadFile, content io.Reader) (*domain.Document, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	contentType := file.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(head).String()
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, io.MultiReader(bytes.NewReader(head), content)); err != nil {
		return nil, fmt.Errorf("write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var doc domain.Document
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/documents/",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		auth:        true,
	}, &doc)
	if err != nil {
		return nil, err
	}
	if doc.Filename == "" {
		doc.Filename = file.Name
	}
	return &doc, nil
}

// ImportFiling asks the backend to fetch the latest 10-K for a ticker
func (c *Client) ImportFiling(ctx context.Context, ticker string) (*domain.ImportAck, error) {
	r, err := jsonRequest(http.MethodPost, "/documents/fetch-sec", domain.ImportRequest{Ticker: ticker})
	if err != nil {
		return nil, err
	}
	var ack domain.ImportAck
	if err := c.do(ctx, r, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// DeleteDocument removes a document by id
func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/documents/%d", id),
		auth:   true,
	}, nil)
}

// DocumentChunks returns the indexed chunks of a document
func (c *Client) DocumentChunks(ctx context.Context, id int64) ([]domain.Chunk, error) {
	chunks := []domain.Chunk{}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/documents/%d/chunks", id),
		auth:   true,
	}, &chunks)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DocumentGraph returns the knowledge graph of a document
func (c *Client) DocumentGraph(ctx context.Context, id int64) (*domain.DocumentGraph, error) {
	var graph domain.DocumentGraph
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/documents/%d/graph", id),
		auth:   true,
	}, &graph)
	if err != nil {
		return nil, err
	}
	return &graph, nil
}

// QueryDocument asks a question about one document
func (c *Client) QueryDocument(ctx context.Context, id int64, question string) (*domain.QueryResponse, error) {
	return c.query(ctx, fmt.Sprintf("/documents/%d/query", id), question)
}

// QueryAll asks a question across all documents
func (c *Client) QueryAll(ctx context.Context, question string) (*domain.QueryResponse, error) {
	return c.query(ctx, "/documents/query", question)
}

func (c *Client) query(ctx context.Context, path, question string) (*domain.QueryResponse, error) {
	r, err := jsonRequest(http.MethodPost, path, domain.QueryRequest{Question: question})
	if err != nil {
		return nil, err
	}
	var resp domain.QueryResponse
	if err := c.do(ctx, r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks backend liveness
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, path: "/health"}, nil)
}
