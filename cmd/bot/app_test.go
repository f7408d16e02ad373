package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"ex-tgbot/internal/driver"
	"ex-tgbot/internal/kernel"
	"ex-tgbot/pkg/tgbot"
)

// chatClient serves one scripted batch, then long-polls until canceled.
type chatClient struct {
	updates []tgbot.Update

	mu     sync.Mutex
	served bool
	sent   []tgbot.SendMessageRequest
	done   chan struct{}
}

func newChatClient(texts ...string) *chatClient {
	client := &chatClient{done: make(chan struct{})}
	for idx, text := range texts {
		client.updates = append(client.updates, tgbot.Update{
			ID:   int64(idx + 1),
			Type: tgbot.UpdateTypeMessage,
			Message: &tgbot.Message{
				ID:   int64(100 + idx),
				Chat: tgbot.Chat{ID: 42, Type: "private"},
				Text: text,
			},
		})
	}

	return client
}

func (c *chatClient) FetchUpdates(ctx context.Context, _ tgbot.FetchRequest) ([]tgbot.Update, error) {
	c.mu.Lock()
	if !c.served {
		c.served = true
		c.mu.Unlock()
		return c.updates, nil
	}
	c.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *chatClient) Self(context.Context) (tgbot.Identity, error) {
	return tgbot.Identity{ID: 1, IsBot: true, Username: "testbot"}, nil
}

func (c *chatClient) SendMessage(_ context.Context, request tgbot.SendMessageRequest) (*tgbot.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, request)
	if len(c.sent) == len(c.updates) {
		close(c.done)
	}

	return &tgbot.Message{ID: int64(len(c.sent))}, nil
}

func (c *chatClient) AnswerCallbackQuery(context.Context, tgbot.AnswerCallbackQueryRequest) error {
	return nil
}

func (c *chatClient) replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	texts := make([]string, 0, len(c.sent))
	for _, request := range c.sent {
		texts = append(texts, request.Text)
	}

	return texts
}

func testAppConfig() appConfig {
	return appConfig{
		logLevel:        slog.LevelDebug,
		logFormat:       "json",
		pollLimit:       10,
		pollTimeout:     time.Second,
		retryInitial:    10 * time.Millisecond,
		retryMax:        20 * time.Millisecond,
		shutdownTimeout: time.Second,
		handlerTimeout:  time.Second,
	}
}

func TestBuildServiceDispatchesDemoHandlers(t *testing.T) {
	t.Parallel()

	client := newChatClient("/ping", "hello")
	var logs bytes.Buffer
	logger := newLogger(&logs, "json", slog.LevelDebug)

	service, err := buildService(driver.Runtime{Name: "main", Type: driver.TypeBotAPI, Client: client}, testAppConfig(), logger, nil)
	if err != nil {
		t.Fatalf("buildService error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServices(ctx, []*kernel.Service{service})
	}()

	select {
	case <-client.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for replies")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("runServices error = %v", err)
	}

	replies := client.replies()
	if len(replies) != 2 {
		t.Fatalf("replies = %v, want 2", replies)
	}
	if replies[0] != "pong!" {
		t.Fatalf("first reply = %q, want pong!", replies[0])
	}
	if !strings.HasPrefix(replies[1], "Available commands:") || !strings.Contains(replies[1], "/ping") {
		t.Fatalf("second reply = %q, want help text", replies[1])
	}
	if service.Offset() != 3 {
		t.Fatalf("offset = %d, want 3", service.Offset())
	}
	if !strings.Contains(logs.String(), `"bot":"main"`) {
		t.Fatalf("logs missing bot attribute: %s", logs.String())
	}
}

func TestNewLoggerFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{format: "json", want: `"msg":"hello"`},
		{format: "text", want: "hello"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.format, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			logger := newLogger(&out, testCase.format, slog.LevelInfo)
			logger.Debug("hidden")
			logger.Info("hello", "update_id", 7)

			got := out.String()
			if !strings.Contains(got, testCase.want) {
				t.Fatalf("output = %q, want containing %q", got, testCase.want)
			}
			if strings.Contains(got, "hidden") {
				t.Fatalf("output = %q, debug line should be filtered", got)
			}
		})
	}
}

func TestRunCommandRejectsArgs(t *testing.T) {
	t.Parallel()

	command := newRootCommand()
	command.SetArgs([]string{"run", "extra"})
	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	if err := command.Execute(); err == nil {
		t.Fatal("Execute error = nil, want argument error")
	}
}
