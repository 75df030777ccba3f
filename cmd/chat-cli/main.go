package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/upb/llm-chat-relay/client"
	"github.com/upb/llm-chat-relay/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "chat-cli: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server  string
	model   string
	history string
	window  int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("chat-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.server, "server", envOr("CHAT_SERVER_URL", client.DefaultBaseURL), "chat relay base URL")
	fs.StringVar(&opts.model, "model", "gemini", "provider to send messages to")
	fs.StringVar(&opts.history, "history", "", "JSON file the conversation is loaded from and saved to")
	fs.IntVar(&opts.window, "window", client.DefaultHistoryWindow, "prior messages sent with each request")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	conv, err := loadConversation(opts.history)
	if err != nil {
		return err
	}

	c := client.New(opts.server, client.WithHistoryWindow(opts.window))
	model := opts.model

	fmt.Fprintf(stdout, "chatting with %s (/models, /model <id>, /quit)\n", model)

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/models":
			printModels(ctx, c, stdout, stderr)
			continue
		case strings.HasPrefix(line, "/model "):
			model = strings.TrimSpace(strings.TrimPrefix(line, "/model "))
			fmt.Fprintf(stdout, "now chatting with %s\n", model)
			continue
		}

		resp, err := c.Chat(ctx, conv, line, model)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(stderr, "error: %v\n", err)
		} else {
			if resp.Fallback {
				fmt.Fprintf(stdout, "[%s unavailable, answered by %s: %s]\n", model, resp.Model, resp.OriginalError)
			}
			fmt.Fprintf(stdout, "%s\n", resp.Response)
		}

		if err := saveConversation(opts.history, conv); err != nil {
			fmt.Fprintf(stderr, "failed to save history: %v\n", err)
		}
	}

	return scanner.Err()
}

func printModels(ctx context.Context, c *client.Client, stdout, stderr io.Writer) {
	list, err := c.Models(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return
	}
	for _, m := range list {
		status := "unavailable"
		if m.Available {
			status = "available"
		}
		fmt.Fprintf(stdout, "  %-12s %-16s %s\n", m.ID, m.Name, status)
	}
}

// loadConversation reads the history file; a missing file starts a new
// conversation
func loadConversation(path string) (*models.Conversation, error) {
	if path == "" {
		return models.NewConversation(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewConversation(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	conv := &models.Conversation{}
	if err := json.Unmarshal(data, conv); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", path, err)
	}
	return conv, nil
}

// saveConversation replaces the history file atomically
func saveConversation(path string, conv *models.Conversation) error {
	if path == "" {
		return nil
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".chat-history-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
