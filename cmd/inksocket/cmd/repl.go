package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chrisboulton/inksocket-go"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session over one connection",
	Long: `Read lines from stdin and stream a completion for each.

Prefix a line with /rewrite, /expand or /simplify to pick another action.
Ctrl+C cancels the request in flight. Other commands:
  /status     show the connection and request state
  /reconnect  reconnect after the client gave up
  /quit       leave`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

type replLine struct {
	command string
	action  inksocket.Action
	text    string
}

// parseLine splits a REPL line into an action and its text, or a command.
func parseLine(line string) (replLine, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return replLine{action: inksocket.ActionComplete, text: line}, nil
	}

	name, text, _ := strings.Cut(line[1:], " ")
	text = strings.TrimSpace(text)

	switch name {
	case "status", "reconnect", "quit", "exit":
		return replLine{command: name}, nil
	}

	action := inksocket.Action(name)
	if !action.Valid() || action == inksocket.ActionComplete {
		return replLine{}, fmt.Errorf("unknown command /%s", name)
	}
	if text == "" {
		return replLine{}, fmt.Errorf("/%s needs some text", name)
	}
	return replLine{action: action, text: text}, nil
}

func runREPL(cmd *cobra.Command, _ []string) error {
	client, cfg, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	stderr := cmd.ErrOrStderr()
	client.On(inksocket.EventClose, func(ev inksocket.Event) {
		if ev.Code != inksocket.StatusNormalClosure {
			warnf(stderr, "connection lost (status %d), reconnecting", ev.Code)
		}
	})
	client.On(inksocket.EventError, func(ev inksocket.Event) {
		if errors.Is(ev.Err, inksocket.ErrReconnectExhausted) {
			errorf(stderr, "gave up reconnecting (try /reconnect)")
		}
	})
	client.On(inksocket.EventOpen, func(inksocket.Event) {
		infof(stderr, "connected to %s", cfg.URL)
	})

	scanner := bufio.NewScanner(cmd.InOrStdin())
	prompt(stderr, client.Snapshot().Label)
	for scanner.Scan() {
		if done := replStep(cmd, client, scanner.Text()); done {
			return nil
		}
		prompt(stderr, client.Snapshot().Label)
	}
	return scanner.Err()
}

// replStep handles one input line and reports whether the session is over.
func replStep(cmd *cobra.Command, client *inksocket.Client, input string) bool {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if strings.TrimSpace(input) == "" {
		return false
	}

	line, err := parseLine(input)
	if err != nil {
		errorf(stderr, "%v", err)
		return false
	}

	switch line.command {
	case "quit", "exit":
		return true
	case "status":
		printStatus(stderr, client)
		return false
	case "reconnect":
		client.Reconnect()
		if err := client.Conn().WaitOpen(cmd.Context()); err != nil {
			errorf(stderr, "reconnect failed: %v", err)
		}
		return false
	}

	cfg, err := getConfigFromContext(cmd)
	if err != nil {
		errorf(stderr, "%v", err)
		return true
	}
	ctx, stop := requestContext(cmd.Context(), cfg.Timeout)
	defer stop()

	_, err = stream(ctx, client, stdout, func(ctx context.Context, c *inksocket.Client) error {
		return c.Submit(ctx, line.action, line.text)
	})
	reportError(stderr, err)
	return false
}

func reportError(w io.Writer, err error) {
	switch {
	case err == nil:
	case errors.Is(err, inksocket.ErrCancelled), errors.Is(err, context.Canceled):
		warnf(w, "cancelled")
	case errors.Is(err, inksocket.ErrNotConnected), errors.Is(err, inksocket.ErrReconnectExhausted):
		errorf(w, "%v (try /reconnect)", err)
	default:
		errorf(w, "%v", err)
	}
}

func printStatus(w io.Writer, client *inksocket.Client) {
	snap := client.Snapshot()
	st := client.Conn().Status()

	fmt.Fprintf(w, "  %s %s\n", gray.Sprint("connection:"), st.State)
	if st.RetryPending {
		fmt.Fprintf(w, "  %s attempt %d in %s\n", gray.Sprint("retry:"), st.Attempts, st.RetryDelay)
	}
	fmt.Fprintf(w, "  %s %v\n", gray.Sprint("can retry:"), snap.CanRetry)
	fmt.Fprintf(w, "  %s %s\n", gray.Sprint("status:"), snap.Label)
	if snap.RequestID != "" {
		fmt.Fprintf(w, "  %s %s %s (%s)\n", gray.Sprint("request:"), snap.Action, snap.Status, snap.RequestID)
	}
	if snap.Err != nil {
		fmt.Fprintf(w, "  %s %v\n", gray.Sprint("last error:"), snap.Err)
	}
}
