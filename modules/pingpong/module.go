package pingpong

import (
	"context"
	"fmt"

	"ex-tgbot/pkg/tgbot"
)

const (
	pingCommandName = "ping"
	// Priority places the handler ahead of catch-all handlers.
	Priority = 1000
)

// Module replies with "pong!" when it receives a "/ping" command.
type Module struct{}

// New creates a ping-pong module.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "pingpong"
}

// Priority returns the handler priority.
func (m *Module) Priority() int {
	return Priority
}

// Commands declares the /ping command.
func (m *Module) Commands() []tgbot.CommandSpec {
	return []tgbot.CommandSpec{
		{Name: pingCommandName, Description: "reply with pong!"},
	}
}

// HandleUpdate claims /ping messages.
func (m *Module) HandleUpdate(ctx context.Context, bot tgbot.Bot, update *tgbot.Update) (bool, error) {
	if update == nil || update.Type != tgbot.UpdateTypeMessage || update.Message == nil {
		return false, nil
	}
	if update.Command() != pingCommandName {
		return false, nil
	}

	_, err := bot.SendMessage(ctx, tgbot.SendMessageRequest{
		ChatID:           update.ChatID(),
		Text:             "pong!",
		ReplyToMessageID: update.Message.ID,
	})
	if err != nil {
		return false, fmt.Errorf("pingpong send pong message: %w", err)
	}

	return true, nil
}
