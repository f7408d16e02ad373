package botapi

import (
	"encoding/json"
	"fmt"

	"ex-tgbot/pkg/tgbot"
)

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}

type wireUpdate struct {
	UpdateID          int64              `json:"update_id"`
	Message           *wireMessage       `json:"message,omitempty"`
	EditedMessage     *wireMessage       `json:"edited_message,omitempty"`
	ChannelPost       *wireMessage       `json:"channel_post,omitempty"`
	EditedChannelPost *wireMessage       `json:"edited_channel_post,omitempty"`
	CallbackQuery     *wireCallbackQuery `json:"callback_query,omitempty"`
}

type wireMessage struct {
	MessageID       int64        `json:"message_id"`
	MessageThreadID int64        `json:"message_thread_id,omitempty"`
	Date            int64        `json:"date,omitempty"`
	Chat            *wireChat    `json:"chat,omitempty"`
	From            *wireUser    `json:"from,omitempty"`
	ReplyTo         *wireMessage `json:"reply_to_message,omitempty"`
	Text            string       `json:"text,omitempty"`
	Caption         string       `json:"caption,omitempty"`
}

type wireChat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

type wireUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type wireCallbackQuery struct {
	ID      string       `json:"id"`
	From    wireUser     `json:"from"`
	Message *wireMessage `json:"message,omitempty"`
	Data    string       `json:"data,omitempty"`
}

type getUpdatesParams struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type sendMessageParams struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ParseMode        string `json:"parse_mode,omitempty"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

type answerCallbackQueryParams struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// decodeUpdates projects a getUpdates result, keeping each raw payload.
func decodeUpdates(result json.RawMessage) ([]tgbot.Update, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(result, &raws); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}

	updates := make([]tgbot.Update, 0, len(raws))
	for _, raw := range raws {
		var wire wireUpdate
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("decode update: %w", err)
		}
		update := projectUpdate(wire)
		update.Raw = raw
		updates = append(updates, update)
	}

	return updates, nil
}

func projectUpdate(wire wireUpdate) tgbot.Update {
	update := tgbot.Update{ID: wire.UpdateID, Type: tgbot.UpdateTypeUnknown}

	switch {
	case wire.Message != nil:
		update.Type = tgbot.UpdateTypeMessage
		update.Message = projectMessage(wire.Message)
	case wire.EditedMessage != nil:
		update.Type = tgbot.UpdateTypeEditedMessage
		update.Message = projectMessage(wire.EditedMessage)
	case wire.ChannelPost != nil:
		update.Type = tgbot.UpdateTypeChannelPost
		update.Message = projectMessage(wire.ChannelPost)
	case wire.EditedChannelPost != nil:
		update.Type = tgbot.UpdateTypeEditedChannelPost
		update.Message = projectMessage(wire.EditedChannelPost)
	case wire.CallbackQuery != nil:
		update.Type = tgbot.UpdateTypeCallbackQuery
		update.CallbackQuery = &tgbot.CallbackQuery{
			ID:      wire.CallbackQuery.ID,
			From:    projectUser(wire.CallbackQuery.From),
			Message: projectMessage(wire.CallbackQuery.Message),
			Data:    wire.CallbackQuery.Data,
		}
	}

	return update
}

func projectMessage(wire *wireMessage) *tgbot.Message {
	if wire == nil {
		return nil
	}

	message := &tgbot.Message{
		ID:       wire.MessageID,
		Date:     wire.Date,
		Text:     wire.Text,
		Caption:  wire.Caption,
		ThreadID: wire.MessageThreadID,
		ReplyTo:  projectMessage(wire.ReplyTo),
	}
	if wire.Chat != nil {
		message.Chat = tgbot.Chat{
			ID:       wire.Chat.ID,
			Type:     wire.Chat.Type,
			Title:    wire.Chat.Title,
			Username: wire.Chat.Username,
		}
	}
	if wire.From != nil {
		from := projectUser(*wire.From)
		message.From = &from
	}

	return message
}

func projectUser(wire wireUser) tgbot.User {
	return tgbot.User{
		ID:        wire.ID,
		IsBot:     wire.IsBot,
		Username:  wire.Username,
		FirstName: wire.FirstName,
		LastName:  wire.LastName,
	}
}
