package tgbot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UpdateType identifies which payload an update carries.
type UpdateType string

const (
	// UpdateTypeMessage identifies new message updates.
	UpdateTypeMessage UpdateType = "message"
	// UpdateTypeEditedMessage identifies edited message updates.
	UpdateTypeEditedMessage UpdateType = "edited_message"
	// UpdateTypeChannelPost identifies new channel post updates.
	UpdateTypeChannelPost UpdateType = "channel_post"
	// UpdateTypeEditedChannelPost identifies edited channel post updates.
	UpdateTypeEditedChannelPost UpdateType = "edited_channel_post"
	// UpdateTypeCallbackQuery identifies inline keyboard callback updates.
	UpdateTypeCallbackQuery UpdateType = "callback_query"
	// UpdateTypeUnknown identifies updates this package does not project.
	UpdateTypeUnknown UpdateType = "unknown"
)

// Update is one unit of incoming work from the remote source.
//
// Updates are produced by an UpdateSource and must be treated as read-only by
// handlers: the same value is offered to every handler in the chain.
type Update struct {
	// ID is the monotonically increasing update identifier used as fetch cursor.
	ID int64
	// Type selects which typed payload is populated.
	Type UpdateType
	// Message is set for message, edited message and channel post updates.
	Message *Message
	// CallbackQuery is set for callback query updates.
	CallbackQuery *CallbackQuery
	// Raw holds the original platform payload when the source has one.
	Raw json.RawMessage
}

// Message is the projection of a chat message.
type Message struct {
	ID       int64
	Date     int64
	Chat     Chat
	From     *User
	Text     string
	Caption  string
	ReplyTo  *Message
	ThreadID int64
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID       int64
	Type     string
	Title    string
	Username string
}

// User identifies a platform account.
type User struct {
	ID        int64
	IsBot     bool
	Username  string
	FirstName string
	LastName  string
}

// CallbackQuery is the projection of an inline keyboard button press.
type CallbackQuery struct {
	ID      string
	From    User
	Message *Message
	Data    string
}

// Identity describes the account the bot is connected as.
type Identity struct {
	ID        int64
	IsBot     bool
	Username  string
	FirstName string
}

// String renders the identity for diagnostics.
func (i Identity) String() string {
	if i.Username != "" {
		return fmt.Sprintf("@%s (%d)", i.Username, i.ID)
	}

	return fmt.Sprintf("%s (%d)", i.FirstName, i.ID)
}

// Text returns the message text or caption carried by the update, if any.
func (u *Update) Text() string {
	if u == nil || u.Message == nil {
		return ""
	}
	if u.Message.Text != "" {
		return u.Message.Text
	}

	return u.Message.Caption
}

// Command returns the leading bot command of a message update without the
// slash and without any "@botname" suffix. It returns "" when the message
// does not start with a command.
func (u *Update) Command() string {
	text := strings.TrimSpace(u.Text())
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	fields := strings.Fields(text)
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}

	return strings.ToLower(command)
}

// ChatID returns the chat the update originated from, or 0 when unknown.
func (u *Update) ChatID() int64 {
	if u == nil {
		return 0
	}
	if u.Message != nil {
		return u.Message.Chat.ID
	}
	if u.CallbackQuery != nil && u.CallbackQuery.Message != nil {
		return u.CallbackQuery.Message.Chat.ID
	}

	return 0
}
