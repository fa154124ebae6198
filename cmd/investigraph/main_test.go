package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/investigraph/internal/adapters/driven/investigraph/investigraphtest"
)

type cli struct {
	t       *testing.T
	backend *investigraphtest.Backend
}

// newCLI points the command line at a fresh in-memory backend and a
// private session file
func newCLI(t *testing.T) *cli {
	t.Helper()

	srv, backend := investigraphtest.NewServer()
	t.Cleanup(srv.Close)
	require.NoError(t, backend.AddUser("alice", "alice@example.com", "secret"))

	t.Setenv("INVESTIGRAPH_CONFIG", "")
	t.Setenv("INVESTIGRAPH_API_URL", srv.URL)
	t.Setenv("INVESTIGRAPH_SESSION_BACKEND", "file")
	t.Setenv("INVESTIGRAPH_SESSION_PATH", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("INVESTIGRAPH_IMPORT_INTERVAL", "1ms")
	t.Setenv("INVESTIGRAPH_MIN_UPLOAD_DURATION", "1ms")
	t.Setenv("INVESTIGRAPH_RATE_LIMIT", "0")
	t.Setenv("LOG_LEVEL", "error")

	return &cli{t: t, backend: backend}
}

// run executes one command with the given stdin
func (c *cli) run(stdin string, args ...string) (code int, stdout, stderr string) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	code = run(c.t.Context(), args, stdio{in: strings.NewReader(stdin), out: &out, err: &errOut})
	return code, out.String(), errOut.String()
}

func (c *cli) login() {
	c.t.Helper()
	code, _, stderr := c.run("", "login", "-u", "alice", "-p", "secret")
	require.Equal(c.t, 0, code, stderr)
}

func writePDF(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n"), 0o600))
	return path
}

func TestRun_Usage(t *testing.T) {
	var out, errOut bytes.Buffer
	std := stdio{in: strings.NewReader(""), out: &out, err: &errOut}

	assert.Equal(t, 2, run(t.Context(), nil, std))
	assert.Contains(t, errOut.String(), "Usage: investigraph")

	errOut.Reset()
	assert.Equal(t, 2, run(t.Context(), []string{"frobnicate"}, std))
	assert.Contains(t, errOut.String(), `unknown command "frobnicate"`)

	assert.Equal(t, 0, run(t.Context(), []string{"help"}, std))
	assert.Contains(t, out.String(), "Documents:")
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	code := run(t.Context(), []string{"version"}, stdio{in: strings.NewReader(""), out: &out, err: &out})

	assert.Equal(t, 0, code)
	assert.Equal(t, "investigraph dev\n", out.String())
}

func TestRun_Commands(t *testing.T) {
	expected := []string{
		"signup", "login", "logout", "whoami", "health", "docs", "upload",
		"delete", "import", "chunks", "graph", "watch", "chat", "serve",
	}
	for _, name := range expected {
		assert.Contains(t, commands, name)
		assert.Contains(t, usage, name)
	}
}

func TestRun_Health(t *testing.T) {
	c := newCLI(t)

	code, stdout, _ := c.run("", "health")

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "ok")
}

func TestRun_LoginAndWhoAmI(t *testing.T) {
	c := newCLI(t)

	code, stdout, _ := c.run("", "login", "-u", "alice", "-p", "secret")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Logged in as alice")

	code, stdout, _ = c.run("", "whoami")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "alice <alice@example.com>")
}

func TestRun_LoginPrompts(t *testing.T) {
	c := newCLI(t)

	code, stdout, stderr := c.run("alice\nsecret\n", "login")

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Username: ")
	assert.Contains(t, stdout, "Password: ")
	assert.Contains(t, stdout, "Logged in as alice")
}

func TestRun_LoginInvalidCredentials(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("", "login", "-u", "alice", "-p", "wrong")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Invalid credentials")

	code, _, stderr = c.run("", "whoami")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not logged in")
}

func TestRun_SignUp(t *testing.T) {
	c := newCLI(t)

	code, stdout, stderr := c.run("", "signup", "-u", "bob", "-e", "bob@example.com", "-p", "hunter2")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Account created")

	code, _, stderr = c.run("", "login", "-u", "bob", "-p", "hunter2")
	assert.Equal(t, 0, code, stderr)
}

func TestRun_SignUpDuplicate(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("", "signup", "-u", "alice", "-e", "alice@example.com", "-p", "secret")

	assert.Equal(t, 1, code)
	assert.NotEmpty(t, strings.TrimPrefix(stderr, "error: "))
}

func TestRun_Logout(t *testing.T) {
	c := newCLI(t)
	c.login()

	code, stdout, _ := c.run("", "logout")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Logged out")

	code, _, _ = c.run("", "docs")
	assert.Equal(t, 1, code)
}

func TestRun_Docs(t *testing.T) {
	c := newCLI(t)
	c.login()

	code, stdout, _ := c.run("", "docs")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "No documents yet.")

	_, err := c.backend.AddDocument("alice", "report.pdf")
	require.NoError(t, err)

	code, stdout, _ = c.run("", "docs")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "FILENAME")
	assert.Contains(t, stdout, "report.pdf")
}

func TestRun_Upload(t *testing.T) {
	c := newCLI(t)
	c.login()

	code, stdout, stderr := c.run("", "upload", writePDF(t, "annual.pdf"))

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Uploaded annual.pdf")
	assert.Equal(t, 1, c.backend.DocumentCount("alice"))
}

func TestRun_UploadRejectsNonPDF(t *testing.T) {
	c := newCLI(t)
	c.login()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	code, _, stderr := c.run("", "upload", path)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "only PDF files")
	assert.Equal(t, 0, c.backend.DocumentCount("alice"))
}

func TestRun_UploadNeedsFile(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("", "upload")

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "upload needs at least one file")
}

func TestRun_Delete(t *testing.T) {
	c := newCLI(t)
	c.login()
	doc, err := c.backend.AddDocument("alice", "report.pdf")
	require.NoError(t, err)
	id := formatID(doc.ID)

	t.Run("declined", func(t *testing.T) {
		code, stdout, _ := c.run("n\n", "delete", id)
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "Cancelled")
		assert.Equal(t, 1, c.backend.DocumentCount("alice"))
		assert.Zero(t, c.backend.Requests("DELETE /documents/"+id))
	})

	t.Run("confirmed", func(t *testing.T) {
		code, stdout, _ := c.run("y\n", "delete", id)
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "Deleted document "+id)
		assert.Equal(t, 0, c.backend.DocumentCount("alice"))
	})

	t.Run("missing", func(t *testing.T) {
		code, _, _ := c.run("", "delete", "-y", id)
		assert.Equal(t, 1, code)
	})

	t.Run("bad id", func(t *testing.T) {
		code, _, _ := c.run("", "delete", "-y", "abc")
		assert.Equal(t, 2, code)
	})
}

func TestRun_Import(t *testing.T) {
	c := newCLI(t)
	c.login()
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		_, err := c.backend.AddDocument("alice", name)
		require.NoError(t, err)
	}

	code, stdout, stderr := c.run("", "import", "aapl")

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Fetching the latest 10-K for AAPL")
	assert.Contains(t, stdout, "Imported AAPL")
	assert.Equal(t, 4, c.backend.DocumentCount("alice"))
}

func TestRun_ImportTimeout(t *testing.T) {
	c := newCLI(t)
	t.Setenv("INVESTIGRAPH_IMPORT_MAX_ATTEMPTS", "2")
	c.backend.Configure(func(b *investigraphtest.Backend) { b.ImportDelay = 100 })
	c.login()

	code, _, stderr := c.run("", "import", "MSFT")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Failed to fetch SEC document or timed out")
}

func TestRun_ChunksAndGraph(t *testing.T) {
	c := newCLI(t)
	c.login()
	doc, err := c.backend.AddDocument("alice", "report.pdf")
	require.NoError(t, err)
	id := formatID(doc.ID)

	code, stdout, _ := c.run("", "chunks", id)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Contents of report.pdf")
	assert.Contains(t, stdout, "1 chunks")

	code, stdout, _ = c.run("", "graph", id)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "report.pdf -[REPORTS]-> Revenue")
}

func TestRun_Chat(t *testing.T) {
	c := newCLI(t)
	c.login()
	doc, err := c.backend.AddDocument("alice", "report.pdf")
	require.NoError(t, err)

	code, stdout, stderr := c.run("What was revenue?\n   \n/quit\n", "chat", formatID(doc.ID))

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Document Chat")
	assert.Contains(t, stdout, "Based on the documents: What was revenue?")
	assert.Contains(t, stdout, "Sources:")
	assert.Contains(t, stdout, "...")
	assert.Equal(t, 1, c.backend.Requests("POST /documents/"+formatID(doc.ID)+"/query"))
}

func TestRun_ChatFallback(t *testing.T) {
	c := newCLI(t)
	c.login()
	c.backend.Configure(func(b *investigraphtest.Backend) { b.FailQueries = true })

	code, stdout, _ := c.run("Anything?\n", "chat")

	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Global Chat (All Documents)")
	assert.Contains(t, stdout, "Sorry, I encountered an error.")
}

func TestRun_ChatInvalidScope(t *testing.T) {
	c := newCLI(t)

	code, _, _ := c.run("", "chat", "abc")

	assert.Equal(t, 2, code)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
