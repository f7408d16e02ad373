package tgbot

import (
	"context"
	"time"
)

// FetchRequest describes one long-poll request for updates.
type FetchRequest struct {
	// Offset is the first update id to return.
	Offset int64
	// Limit bounds the batch size.
	Limit int
	// Timeout bounds how long the source may wait for at least one update.
	Timeout time.Duration
	// AllowedUpdates optionally restricts update types; empty means all.
	AllowedUpdates []string
}

// UpdateSource is the remote side of the poll loop.
type UpdateSource interface {
	// FetchUpdates returns updates with ID >= request.Offset, oldest first.
	// An empty batch is a normal long-poll outcome.
	FetchUpdates(ctx context.Context, request FetchRequest) ([]Update, error)
	// Self returns the identity the source is connected as.
	Self(ctx context.Context) (Identity, error)
}

// Session is implemented by sources that need a connected lifecycle around
// polling. The poll loop runs inside fn.
type Session interface {
	// Run establishes the session and executes fn while it is connected.
	Run(ctx context.Context, fn func(runCtx context.Context) error) error
}

// SendMessageRequest is a plain text message send.
type SendMessageRequest struct {
	ChatID           int64
	Text             string
	ParseMode        string
	ReplyToMessageID int64
}

// AnswerCallbackQueryRequest acknowledges an inline keyboard press.
type AnswerCallbackQueryRequest struct {
	CallbackQueryID string
	Text            string
	ShowAlert       bool
}

// Bot is the platform action surface passed to handlers.
type Bot interface {
	// SendMessage sends a text message.
	SendMessage(ctx context.Context, request SendMessageRequest) (*Message, error)
	// AnswerCallbackQuery answers a callback query.
	AnswerCallbackQuery(ctx context.Context, request AnswerCallbackQueryRequest) error
}

// Client is a transport that both feeds the poll loop and serves handlers.
type Client interface {
	UpdateSource
	Bot
}
