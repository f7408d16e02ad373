package mtproto

import (
	"strconv"

	"ex-tgbot/pkg/tgbot"

	"github.com/gotd/td/tg"
)

// mapUpdate projects one flattened update. Updates the dispatcher has no view
// for, and the bot's own outgoing messages, are not accepted.
func mapUpdate(envelope updateEnvelope) (tgbot.Update, bool) {
	switch typed := envelope.update.(type) {
	case *tg.UpdateNewMessage:
		return mapMessageUpdate(typed.Message, envelope, false)
	case *tg.UpdateNewChannelMessage:
		return mapMessageUpdate(typed.Message, envelope, false)
	case *tg.UpdateEditMessage:
		return mapMessageUpdate(typed.Message, envelope, true)
	case *tg.UpdateEditChannelMessage:
		return mapMessageUpdate(typed.Message, envelope, true)
	case *tg.UpdateBotCallbackQuery:
		return mapCallbackQuery(typed, envelope), true
	default:
		return tgbot.Update{}, false
	}
}

func mapMessageUpdate(messageClass tg.MessageClass, envelope updateEnvelope, edited bool) (tgbot.Update, bool) {
	message, ok := messageClass.(*tg.Message)
	if !ok || message.Out {
		return tgbot.Update{}, false
	}

	projected := projectMessage(message, envelope)
	updateType := tgbot.UpdateTypeMessage
	switch {
	case projected.Chat.Type == "channel" && edited:
		updateType = tgbot.UpdateTypeEditedChannelPost
	case projected.Chat.Type == "channel":
		updateType = tgbot.UpdateTypeChannelPost
	case edited:
		updateType = tgbot.UpdateTypeEditedMessage
	}

	return tgbot.Update{Type: updateType, Message: projected}, true
}

func mapCallbackQuery(update *tg.UpdateBotCallbackQuery, envelope updateEnvelope) tgbot.Update {
	chat := projectChat(update.Peer, envelope)

	return tgbot.Update{
		Type: tgbot.UpdateTypeCallbackQuery,
		CallbackQuery: &tgbot.CallbackQuery{
			ID:   strconv.FormatInt(update.QueryID, 10),
			From: projectUser(update.UserID, envelope),
			Message: &tgbot.Message{
				ID:   int64(update.MsgID),
				Chat: chat,
			},
			Data: string(update.Data),
		},
	}
}

func projectMessage(message *tg.Message, envelope updateEnvelope) *tgbot.Message {
	chat := projectChat(message.PeerID, envelope)
	projected := &tgbot.Message{
		ID:   int64(message.ID),
		Date: int64(message.Date),
		Chat: chat,
		Text: message.Message,
	}

	if fromID, ok := message.GetFromID(); ok {
		if peerUser, isUser := fromID.(*tg.PeerUser); isUser {
			from := projectUser(peerUser.UserID, envelope)
			projected.From = &from
		}
	} else if peerUser, isUser := message.PeerID.(*tg.PeerUser); isUser {
		from := projectUser(peerUser.UserID, envelope)
		projected.From = &from
	}

	if replyTo, ok := message.GetReplyTo(); ok {
		if header, isHeader := replyTo.(*tg.MessageReplyHeader); isHeader {
			if replyID, hasID := header.GetReplyToMsgID(); hasID {
				projected.ReplyTo = &tgbot.Message{ID: int64(replyID), Chat: chat}
			}
			if topID, hasTop := header.GetReplyToTopID(); hasTop {
				projected.ThreadID = int64(topID)
			}
		}
	}

	return projected
}

func projectChat(peer tg.PeerClass, envelope updateEnvelope) tgbot.Chat {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		user := projectUser(typed.UserID, envelope)
		return tgbot.Chat{
			ID:       userChatID(typed.UserID),
			Type:     "private",
			Title:    user.FirstName,
			Username: user.Username,
		}
	case *tg.PeerChat:
		id := groupChatID(typed.ChatID)
		info := envelope.chatsByID[id]
		return tgbot.Chat{ID: id, Type: "group", Title: info.title}
	case *tg.PeerChannel:
		id := channelChatID(typed.ChannelID)
		info, known := envelope.chatsByID[id]
		kind := info.kind
		if !known {
			kind = "channel"
		}
		return tgbot.Chat{ID: id, Type: kind, Title: info.title, Username: info.username}
	default:
		return tgbot.Chat{}
	}
}

func projectUser(userID int64, envelope updateEnvelope) tgbot.User {
	user, ok := envelope.usersByID[userID]
	if !ok || user == nil {
		return tgbot.User{ID: userID}
	}

	return tgbot.User{
		ID:        user.ID,
		IsBot:     user.Bot,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}
