package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neuroexpert/site/internal/chatclient"
	"github.com/neuroexpert/site/internal/session"
)

type chatOptions struct {
	endpoint   string
	model      string
	sessionDir string
}

func defaultEndpoint() string {
	if v := os.Getenv("NEUROEXPERT_API_URL"); v != "" {
		return strings.TrimRight(v, "/") + "/api/chat"
	}
	return "http://localhost:8080/api/chat"
}

func defaultSessionDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "neuroexpert")
	}
	return ".neuroexpert"
}

func newChatCmd() *cobra.Command {
	opts := chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the NeuroExpert assistant",
		Long: `Chat sends messages to the site's assistant.

With a message argument it sends that one message and prints the reply.
Without arguments it reads messages line by line from standard input until
EOF. The session identifier is kept under --session-dir and reused across runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := opts.conversation()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				return sendOne(cmd.Context(), conv, strings.Join(args, " "), cmd.OutOrStdout())
			}
			return repl(cmd.Context(), conv, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.endpoint, "url", defaultEndpoint(), "chat endpoint")
	cmd.Flags().StringVar(&opts.model, "model", "", "model to request (server default when empty)")
	cmd.Flags().StringVar(&opts.sessionDir, "session-dir", defaultSessionDir(), "directory holding the session identifier")
	return cmd
}

func (o chatOptions) conversation() (*chatclient.Conversation, error) {
	store, err := session.NewFileStore(o.sessionDir)
	if err != nil {
		return nil, err
	}
	client := chatclient.New(o.endpoint, chatclient.WithModel(o.model))
	return chatclient.NewConversation(client, session.NewSupplier(store), nil), nil
}

func sendOne(ctx context.Context, conv *chatclient.Conversation, text string, out io.Writer) error {
	err := conv.Submit(ctx, text)
	printLast(conv, out)
	return err
}

func repl(ctx context.Context, conv *chatclient.Conversation, in io.Reader, out, errOut io.Writer) error {
	fmt.Fprintln(out, chatclient.Greeting)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		err := conv.Submit(ctx, scanner.Text())
		if errors.Is(err, chatclient.ErrEmptyMessage) {
			continue
		}
		printLast(conv, out)
		if err != nil {
			fmt.Fprintln(errOut, "error:", describe(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printLast(conv *chatclient.Conversation, out io.Writer) {
	msgs := conv.Transcript().Messages()
	if len(msgs) == 0 {
		return
	}
	if last := msgs[len(msgs)-1]; last.Role == chatclient.RoleAssistant {
		fmt.Fprintln(out, last.Content)
	}
}

func describe(err error) string {
	var exhausted *chatclient.RetriesExhaustedError
	switch {
	case errors.Is(err, chatclient.ErrTimeout):
		return "the assistant did not answer in time"
	case errors.As(err, &exhausted):
		return fmt.Sprintf("the assistant is unavailable (%v)", exhausted.Last)
	default:
		return err.Error()
	}
}

func newSessionCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Print the stored session identifier, creating it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.NewFileStore(dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.NewSupplier(store).ID(cmd.Context()))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "session-dir", defaultSessionDir(), "directory holding the session identifier")
	return cmd
}
