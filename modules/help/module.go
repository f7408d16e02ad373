package help

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ex-tgbot/pkg/tgbot"
)

const (
	helpCommandName = "help"
	// Priority places the handler at the end of the chain.
	Priority = 9999
)

// Module answers every message nothing else claimed with usage text.
type Module struct {
	body string
}

// New creates a help module listing commands plus its own /help entry.
func New(commands ...tgbot.CommandSpec) *Module {
	m := &Module{}
	all := append(append([]tgbot.CommandSpec(nil), commands...), m.Commands()...)
	m.body = renderHelp(all)

	return m
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Priority returns the handler priority.
func (m *Module) Priority() int {
	return Priority
}

// Commands declares the /help command.
func (m *Module) Commands() []tgbot.CommandSpec {
	return []tgbot.CommandSpec{
		{Name: helpCommandName, Description: "show all available commands"},
	}
}

// HandleUpdate claims any message and replies with the usage text.
func (m *Module) HandleUpdate(ctx context.Context, bot tgbot.Bot, update *tgbot.Update) (bool, error) {
	if update == nil || update.Type != tgbot.UpdateTypeMessage || update.Message == nil {
		return false, nil
	}

	_, err := bot.SendMessage(ctx, tgbot.SendMessageRequest{
		ChatID:           update.ChatID(),
		Text:             m.body,
		ReplyToMessageID: update.Message.ID,
	})
	if err != nil {
		return false, fmt.Errorf("help send help message: %w", err)
	}

	return true, nil
}

func renderHelp(commands []tgbot.CommandSpec) string {
	seen := make(map[string]struct{}, len(commands))
	sorted := make([]tgbot.CommandSpec, 0, len(commands))
	for _, command := range commands {
		name := strings.ToLower(strings.TrimSpace(command.Name))
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		command.Name = name
		sorted = append(sorted, command)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	lines := make([]string, 0, len(sorted)+1)
	lines = append(lines, "Available commands:")
	for _, command := range sorted {
		line := "/" + command.Name
		if description := strings.TrimSpace(command.Description); description != "" {
			line += " - " + description
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}
