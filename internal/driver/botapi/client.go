package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ex-tgbot/pkg/tgbot"

	"github.com/cenkalti/backoff/v4"
)

// Option mutates client construction.
type Option func(*Client)

// WithLogger configures logging for retries and transport diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// Client talks to the HTTP Bot API. It implements tgbot.Client.
type Client struct {
	cfg    Config
	logger *slog.Logger
	// retryUnit scales retry_after seconds into a wait.
	retryUnit time.Duration
}

var _ tgbot.Client = (*Client)(nil)

// New creates a Bot API client.
func New(cfg Config, options ...Option) (*Client, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, fmt.Errorf("new bot api client: %w", err)
	}

	client := &Client{
		cfg:       normalized,
		logger:    slog.Default(),
		retryUnit: time.Second,
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}

	return client, nil
}

// FetchUpdates long-polls getUpdates.
func (c *Client) FetchUpdates(ctx context.Context, request tgbot.FetchRequest) ([]tgbot.Update, error) {
	seconds := int(request.Timeout / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	callCtx, cancel := context.WithTimeout(ctx, request.Timeout+pollGrace)
	defer cancel()

	var result json.RawMessage
	err := c.call(callCtx, "getUpdates", getUpdatesParams{
		Offset:         request.Offset,
		Limit:          request.Limit,
		Timeout:        seconds,
		AllowedUpdates: request.AllowedUpdates,
	}, &result)
	if err != nil {
		return nil, err
	}

	updates, err := decodeUpdates(result)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}

	return updates, nil
}

// Self calls getMe.
func (c *Client) Self(ctx context.Context) (tgbot.Identity, error) {
	var user wireUser
	if err := c.call(ctx, "getMe", nil, &user); err != nil {
		return tgbot.Identity{}, err
	}

	return tgbot.Identity{
		ID:        user.ID,
		IsBot:     user.IsBot,
		Username:  user.Username,
		FirstName: user.FirstName,
	}, nil
}

// SendMessage calls sendMessage.
func (c *Client) SendMessage(ctx context.Context, request tgbot.SendMessageRequest) (*tgbot.Message, error) {
	if request.ChatID == 0 {
		return nil, fmt.Errorf("telegram sendMessage: missing chat id")
	}
	if strings.TrimSpace(request.Text) == "" {
		return nil, fmt.Errorf("telegram sendMessage: empty text")
	}

	var sent wireMessage
	err := c.call(ctx, "sendMessage", sendMessageParams{
		ChatID:           request.ChatID,
		Text:             request.Text,
		ParseMode:        request.ParseMode,
		ReplyToMessageID: request.ReplyToMessageID,
	}, &sent)
	if err != nil {
		return nil, err
	}

	return projectMessage(&sent), nil
}

// AnswerCallbackQuery calls answerCallbackQuery.
func (c *Client) AnswerCallbackQuery(ctx context.Context, request tgbot.AnswerCallbackQueryRequest) error {
	if request.CallbackQueryID == "" {
		return fmt.Errorf("telegram answerCallbackQuery: missing callback query id")
	}

	var ok bool
	return c.call(ctx, "answerCallbackQuery", answerCallbackQueryParams{
		CallbackQueryID: request.CallbackQueryID,
		Text:            request.Text,
		ShowAlert:       request.ShowAlert,
	}, &ok)
}

// call performs method, retrying rate-limited responses whose delay is within
// the configured threshold.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	var body []byte
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram %s: encode params: %w", method, err)
		}
		body = encoded
	}
	if c.cfg.DisableRetry {
		return c.do(ctx, method, body, out)
	}

	delay := &retryAfterBackOff{}
	policy := backoff.WithContext(backoff.WithMaxRetries(delay, uint64(c.cfg.RetryCount)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := c.do(ctx, method, body, out)
		if err == nil {
			return nil
		}

		wait, rateLimited := retryAfter(err)
		if !rateLimited || wait > c.cfg.RetryThreshold {
			return backoff.Permanent(err)
		}
		delay.next = time.Duration(wait/time.Second) * c.retryUnit
		c.logger.WarnContext(ctx, "telegram rate limited",
			"method", method,
			"retry_after", wait.String(),
			"attempt", attempt,
		)
		return err
	}

	return backoff.Retry(operation, policy)
}

// do executes one HTTP round trip and decodes the response envelope.
func (c *Client) do(ctx context.Context, method string, body []byte, out any) error {
	httpMethod := http.MethodGet
	var reader io.Reader
	if body != nil {
		httpMethod = http.MethodPost
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.cfg.methodURL(method), reader)
	if err != nil {
		return fmt.Errorf("telegram %s: new request: %w", method, c.redact(err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, c.redact(err))
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("telegram %s: read body: %w", method, c.redact(readErr))
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{
				Method:      method,
				Code:        resp.StatusCode,
				Description: strings.TrimSpace(string(raw)),
			}
		}
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !envelope.OK {
		apiErr := &APIError{
			Method:      method,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}

	return nil
}

// redact strips the bot token from transport errors, which embed the URL.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, c.cfg.Token, "<token>")
	}

	return err
}

// retryAfterBackOff waits exactly what the server asked for.
type retryAfterBackOff struct {
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	return b.next
}

func (b *retryAfterBackOff) Reset() {
	b.next = 0
}
