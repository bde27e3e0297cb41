package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentroom/core"
)

func newChatCmd() *cobra.Command {
	var (
		serverURL string
		userID    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server from the terminal",
		Long: `Open the duplex channel of a user and relay lines between the terminal
and the server. Type "start" to pick a configuration.

Examples:
  agentroom chat
  agentroom chat --server ws://localhost:9000 --user alice`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				userID = uuid.NewString()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return chat(ctx, serverURL, userID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "ws://localhost:8081", "server websocket base URL")
	cmd.Flags().StringVar(&userID, "user", os.Getenv("AGENTROOM_USER"), "user id (random if empty)")
	return cmd
}

func chat(parent context.Context, serverURL, userID string, in io.Reader, out io.Writer) error {
	url := strings.TrimSuffix(serverURL, "/") + "/ws/" + userID
	conn, _, err := websocket.Dial(parent, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer conn.CloseNow()

	fmt.Fprintf(out, "Connected as %s. Type 'start' to begin.\n", userID)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			text := string(data)
			if text == core.KeepAliveToken {
				continue
			}
			fmt.Fprintln(out, text)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			select {
			case err := <-readErr:
				if parent.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return nil
				}
				return fmt.Errorf("connection lost: %w", err)
			default:
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return conn.Close(websocket.StatusNormalClosure, "bye")
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
				return fmt.Errorf("failed to send: %w", err)
			}
		}
	}
}
