package main

// @title           InvestiGraph Console API
// @version         1.0
// @description     Local presentation server for the InvestiGraph document and question-answering backend.

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/investigraph/internal/config"
)

var version = "dev"

const usage = `Usage: investigraph <command> [flags] [args]

Account:
  signup   -u USER -e EMAIL -p PASSWORD   create an account
  login    [-u USER] [-p PASSWORD]        log in and store the session
  logout                                  forget the stored session
  whoami                                  show the logged-in user

Documents:
  docs                                    list documents
  upload   FILE.pdf...                    upload PDF files
  delete   [-y] ID                        delete a document
  import   TICKER                         fetch the latest 10-K from SEC EDGAR
  chunks   ID                             show the indexed chunks of a document
  graph    ID                             show the knowledge graph of a document
  watch                                   print the document list as it changes

Chat:
  chat     [ID|global]                    interactive chat (default: global)

Other:
  health                                  check that the backend is reachable
  serve    [-demo]                        run the local HTTP and WebSocket server
  version                                 print the version
`

// errUsage marks errors caused by bad arguments
var errUsage = errors.New("usage error")

// stdio bundles the streams commands read from and write to
type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code := run(ctx, os.Args[1:], stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	cancel()
	os.Exit(code)
}

// run executes one command and returns the process exit code
func run(ctx context.Context, args []string, std stdio) int {
	if len(args) == 0 {
		fmt.Fprint(std.err, usage)
		return 2
	}

	name, rest := args[0], args[1:]
	switch name {
	case "help", "-h", "--help":
		fmt.Fprint(std.out, usage)
		return 0
	case "version", "--version":
		fmt.Fprintf(std.out, "investigraph %s\n", version)
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(std.err, "unknown command %q\n\n%s", name, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(std.err, "error: %v\n", err)
		return 1
	}
	logger := cfg.NewLogger(std.err)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(std.err, "error: %v\n", err)
		return 1
	}
	defer a.close()

	if err := cmd(ctx, a, rest, std); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(std.err, "%v\n\n%s", err, usage)
			return 2
		}
		fmt.Fprintf(std.err, "error: %v\n", err)
		return 1
	}
	return 0
}
