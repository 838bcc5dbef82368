package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrisboulton/inksocket-go"
)

var (
	completeFile   string
	completeCursor int
)

var completeCmd = &cobra.Command{
	Use:   "complete [text]",
	Short: "Continue a piece of text",
	Long: `Continue a piece of text read from the arguments or stdin.
With --file, the document is cut at --cursor (a character offset, default the
end) and the text around the cursor is sent as context.`,
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().StringVar(&completeFile, "file", "", "Document to complete inside")
	completeCmd.Flags().IntVar(&completeCursor, "cursor", -1, "Cursor position in the document, in characters")

	rootCmd.AddCommand(
		completeCmd,
		newOptimizeCmd(inksocket.ActionRewrite, "Rewrite text in a clearer style"),
		newOptimizeCmd(inksocket.ActionExpand, "Expand text with more detail"),
		newOptimizeCmd(inksocket.ActionSimplify, "Simplify text"),
	)
}

func newOptimizeCmd(action inksocket.Action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " [text]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return generate(cmd, func(ctx context.Context, c *inksocket.Client) error {
				return c.Submit(ctx, action, text)
			})
		},
	}
}

func runComplete(cmd *cobra.Command, args []string) error {
	if completeFile == "" {
		text, err := readText(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return generate(cmd, func(ctx context.Context, c *inksocket.Client) error {
			return c.Complete(ctx, text)
		})
	}

	data, err := os.ReadFile(completeFile)
	if err != nil {
		return fmt.Errorf("error reading document: %w", err)
	}
	document := string(data)
	cursor := completeCursor
	if cursor < 0 {
		cursor = len([]rune(document))
	}
	return generate(cmd, func(ctx context.Context, c *inksocket.Client) error {
		return c.CompleteAt(ctx, document, cursor)
	})
}

// readText joins args, or reads stdin when there are none.
func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("error reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no text given: pass it as arguments or on stdin")
	}
	return text, nil
}

// generate connects, runs one request and streams it to stdout. Ctrl+C
// cancels the request.
func generate(cmd *cobra.Command, submit func(context.Context, *inksocket.Client) error) error {
	client, cfg, err := connect(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := requestContext(cmd.Context(), cfg.Timeout)
	defer stop()

	snap, err := stream(ctx, client, cmd.OutOrStdout(), submit)
	if err != nil {
		return err
	}
	successf(cmd.ErrOrStderr(), "%s", snap.Label)
	return nil
}

// requestContext bounds one request by timeout and by Ctrl+C.
func requestContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// stream submits a request and writes its text to w as it grows. When the
// final text is not a continuation of what was streamed, it is printed on
// its own line. If ctx ends first the request is cancelled.
func stream(ctx context.Context, c *inksocket.Client, w io.Writer, submit func(context.Context, *inksocket.Client) error) (inksocket.Snapshot, error) {
	if err := submit(ctx, c); err != nil {
		return c.Snapshot(), err
	}

	var (
		printed string
		last    inksocket.Snapshot
	)
	for snap, err := range c.Updates(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				c.Cancel()
			}
			if printed != "" {
				fmt.Fprintln(w)
			}
			return snap, err
		}
		if snap.Status == inksocket.StatusStreaming && strings.HasPrefix(snap.Text, printed) {
			fmt.Fprint(w, snap.Text[len(printed):])
			printed = snap.Text
		}
		last = snap
	}

	switch last.Status {
	case inksocket.StatusCompleted:
		if strings.HasPrefix(last.Text, printed) {
			fmt.Fprintln(w, last.Text[len(printed):])
		} else {
			fmt.Fprintf(w, "\n%s\n", last.Text)
		}
		return last, nil
	case inksocket.StatusCancelled:
		if printed != "" {
			fmt.Fprintln(w)
		}
		return last, inksocket.ErrCancelled
	}
	return last, last.Err
}
