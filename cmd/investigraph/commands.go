package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/custodia-labs/investigraph/internal/core/domain"
)

type command func(ctx context.Context, a *app, args []string, std stdio) error

var commands map[string]command

func init() {
	commands = map[string]command{
		"signup": cmdSignUp,
		"login":  cmdLogin,
		"logout": cmdLogout,
		"whoami": cmdWhoAmI,
		"health": cmdHealth,
		"docs":   cmdDocs,
		"upload": cmdUpload,
		"delete": cmdDelete,
		"import": cmdImport,
		"chunks": cmdChunks,
		"graph":  cmdGraph,
		"watch":  cmdWatch,
		"chat":   cmdChat,
		"serve":  cmdServe,
	}
}

func newFlagSet(name string, std stdio) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(std.err)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// prompt asks for a value on stdin when it was not passed as a flag
func prompt(r *bufio.Reader, w io.Writer, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(w, "%s: ", label)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid document id %q", errUsage, raw)
	}
	return id, nil
}

// Account commands

func cmdSignUp(ctx context.Context, a *app, args []string, std stdio) error {
	fs := newFlagSet("signup", std)
	username := fs.String("u", "", "username")
	email := fs.String("e", "", "email")
	password := fs.String("p", "", "password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	in := bufio.NewReader(std.in)
	var err error
	if *username, err = prompt(in, std.out, "Username", *username); err != nil {
		return err
	}
	if *email, err = prompt(in, std.out, "Email", *email); err != nil {
		return err
	}
	if *password, err = prompt(in, std.out, "Password", *password); err != nil {
		return err
	}

	req := domain.SignUpRequest{Username: *username, Email: *email, Password: *password}
	if err := a.auth.SignUp(ctx, req); err != nil {
		var regErr *domain.RegistrationError
		if errors.As(err, &regErr) {
			return errors.New(regErr.Error())
		}
		return errors.New(domain.RegistrationFailedMessage)
	}

	fmt.Fprintln(std.out, "Account created. Log in with: investigraph login")
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string, std stdio) error {
	fs := newFlagSet("login", std)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	in := bufio.NewReader(std.in)
	var err error
	if *username, err = prompt(in, std.out, "Username", *username); err != nil {
		return err
	}
	if *password, err = prompt(in, std.out, "Password", *password); err != nil {
		return err
	}

	session, err := a.auth.Login(ctx, domain.LoginRequest{Username: *username, Password: *password})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return errors.New(domain.InvalidCredentialsMessage)
		}
		return err
	}

	fmt.Fprintf(std.out, "Logged in as %s\n", session.Username)
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string, std stdio) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(std.out, "Logged out")
	return nil
}

func cmdWhoAmI(ctx context.Context, a *app, args []string, std stdio) error {
	session, err := a.auth.Current(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return errors.New("not logged in")
		}
		return err
	}

	user, err := a.auth.Me(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	fmt.Fprintf(std.out, "%s <%s>\n", user.Username, user.Email)
	if !session.ExpiresAt.IsZero() {
		fmt.Fprintf(std.out, "session expires %s\n", session.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func cmdHealth(ctx context.Context, a *app, args []string, std stdio) error {
	if err := a.client.Health(ctx); err != nil {
		return fmt.Errorf("backend %s: %w", a.client.BaseURL(), err)
	}
	fmt.Fprintf(std.out, "backend %s: ok\n", a.client.BaseURL())
	return nil
}

// Document commands

func printDocuments(w io.Writer, docs []domain.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tUPLOADED")
	for _, d := range docs {
		uploaded := "-"
		if !d.CreatedAt.IsZero() {
			uploaded = d.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", d.ID, d.Filename, uploaded)
	}
	_ = tw.Flush()
}

func cmdDocs(ctx context.Context, a *app, args []string, std stdio) error {
	docs, err := a.documents.List(ctx)
	if err != nil {
		return err
	}
	printDocuments(std.out, docs)
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string, std stdio) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: upload needs at least one file", errUsage)
	}

	var failed int
	for _, path := range args {
		if err := uploadFile(ctx, a, path); err != nil {
			fmt.Fprintf(std.err, "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(std.out, "Uploaded %s\n", filepath.Base(path))
	}

	printDocuments(std.out, a.dashboard.State().Documents)
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(args))
	}
	return nil
}

func uploadFile(ctx context.Context, a *app, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	upload := domain.UploadFile{Name: filepath.Base(path), Size: info.Size()}
	return a.dashboard.Upload(ctx, upload, f)
}

func cmdDelete(ctx context.Context, a *app, args []string, std stdio) error {
	fs := newFlagSet("delete", std)
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: delete needs one document id", errUsage)
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	in := bufio.NewReader(std.in)
	confirm := func() bool {
		if *yes {
			return true
		}
		answer, err := prompt(in, std.out, "Are you sure you want to delete this document? [y/N]", "")
		if err != nil {
			return false
		}
		answer = strings.ToLower(answer)
		return answer == "y" || answer == "yes"
	}

	if err := a.dashboard.Delete(ctx, id, confirm); err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			fmt.Fprintln(std.out, "Cancelled")
			return nil
		}
		return err
	}

	fmt.Fprintf(std.out, "Deleted document %d\n", id)
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string, std stdio) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: import needs one ticker", errUsage)
	}

	fmt.Fprintf(std.out, "Fetching the latest 10-K for %s...\n", strings.ToUpper(strings.TrimSpace(args[0])))
	result, err := a.dashboard.ImportTicker(ctx, args[0])
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		a.logger.Debug("import failed", "error", err)
		return errors.New(domain.ImportFailedMessage)
	}

	if result.Message != "" {
		fmt.Fprintln(std.out, result.Message)
	}
	fmt.Fprintf(std.out, "Imported %s after %d checks\n", result.Ticker, result.Attempts)
	printDocuments(std.out, result.Documents)
	return nil
}

func cmdChunks(ctx context.Context, a *app, args []string, std stdio) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: chunks needs one document id", errUsage)
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	chunks, err := a.documents.Chunks(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		fmt.Fprintf(std.out, "[%d] %s\n", c.ID, c.Text)
	}
	fmt.Fprintf(std.out, "%d chunks\n", len(chunks))
	return nil
}

func cmdGraph(ctx context.Context, a *app, args []string, std stdio) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: graph needs one document id", errUsage)
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	graph, err := a.documents.Graph(ctx, id)
	if err != nil {
		return err
	}

	labels := make(map[string]string, len(graph.Nodes))
	for _, n := range graph.Nodes {
		labels[n.ID] = n.Label
	}
	label := func(id string) string {
		if l, ok := labels[id]; ok && l != "" {
			return l
		}
		return id
	}

	fmt.Fprintf(std.out, "%d entities, %d relations\n", len(graph.Nodes), len(graph.Edges))
	for _, n := range graph.Nodes {
		fmt.Fprintf(std.out, "  %s (%s)\n", n.Label, n.Type)
	}
	for _, e := range graph.Edges {
		fmt.Fprintf(std.out, "  %s -[%s]-> %s\n", label(e.Source), e.Relation, label(e.Target))
	}
	return nil
}

func cmdWatch(ctx context.Context, a *app, args []string, std stdio) error {
	updates, cancel := a.dashboard.Subscribe()
	defer cancel()

	if err := a.dashboard.Mount(ctx); err != nil {
		return err
	}
	defer a.dashboard.Unmount()

	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-updates:
			if !ok {
				return nil
			}
			if state.Phase == domain.PhaseLoading {
				continue
			}
			var b strings.Builder
			if state.Phase == domain.PhaseError {
				fmt.Fprintf(&b, "Failed to load documents: %s\n", state.LastError)
			} else {
				printDocuments(&b, state.Documents)
			}
			// Only print when the rendered list changes
			if b.String() != last {
				last = b.String()
				fmt.Fprintf(std.out, "--- %s\n%s", time.Now().Format("15:04:05"), last)
			}
		}
	}
}

// Chat

func cmdChat(ctx context.Context, a *app, args []string, std stdio) error {
	raw := string(domain.GlobalScope)
	if len(args) > 0 {
		raw = args[0]
	}
	scope, err := domain.ParseScope(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	chat, err := a.views.Chat(scope)
	if err != nil {
		return err
	}
	defer a.views.CloseChat(scope)

	fmt.Fprintf(std.out, "%s. Type a question, or /quit to leave.\n", chat.State().Title)

	in := bufio.NewScanner(std.in)
	for {
		fmt.Fprint(std.out, "> ")
		if !in.Scan() {
			fmt.Fprintln(std.out)
			return in.Err()
		}
		line := in.Text()
		if strings.TrimSpace(line) == "/quit" {
			return nil
		}

		before := len(chat.State().Messages)
		if err := chat.Submit(ctx, line); err != nil {
			return err
		}

		messages := chat.State().Messages
		for _, m := range messages[before:] {
			if m.Role != domain.RoleBot {
				continue
			}
			fmt.Fprintln(std.out, m.Content)
			if len(m.Context) > 0 {
				fmt.Fprintln(std.out, "Sources:")
				for _, c := range m.Context {
					fmt.Fprintf(std.out, "  %s\n", c)
				}
			}
		}
	}
}
