package mtproto

import (
	"fmt"

	"github.com/gotd/td/tg"
)

// updateEnvelope is one flattened update plus the entities its container carried.
type updateEnvelope struct {
	update    tg.UpdateClass
	usersByID map[int64]*tg.User
	chatsByID map[int64]chatInfo
}

// chatInfo is keyed in envelopes by the handler-facing chat id.
type chatInfo struct {
	title     string
	username  string
	kind      string
	inputPeer tg.InputPeerClass
}

// flattenUpdates unpacks an update container into single updates.
func flattenUpdates(updates tg.UpdatesClass) ([]updateEnvelope, error) {
	if updates == nil {
		return nil, fmt.Errorf("flatten updates: nil updates")
	}

	switch typed := updates.(type) {
	case *tg.Updates:
		return flattenBatch(typed.Updates, typed.Users, typed.Chats), nil
	case *tg.UpdatesCombined:
		return flattenBatch(typed.Updates, typed.Users, typed.Chats), nil
	case *tg.UpdateShort:
		return []updateEnvelope{{update: typed.Update}}, nil
	case *tg.UpdateShortMessage:
		return []updateEnvelope{{update: shortMessageUpdate(typed)}}, nil
	case *tg.UpdateShortChatMessage:
		return []updateEnvelope{{update: shortChatMessageUpdate(typed)}}, nil
	case *tg.UpdatesTooLong, *tg.UpdateShortSentMessage:
		return nil, nil
	default:
		return nil, fmt.Errorf("flatten updates %s: unsupported container", updates.TypeName())
	}
}

func flattenBatch(updates []tg.UpdateClass, users []tg.UserClass, chats []tg.ChatClass) []updateEnvelope {
	usersByID := indexUsers(users)
	chatsByID := indexChats(chats)

	batch := make([]updateEnvelope, 0, len(updates))
	for _, update := range updates {
		if update == nil {
			continue
		}
		batch = append(batch, updateEnvelope{
			update:    update,
			usersByID: usersByID,
			chatsByID: chatsByID,
		})
	}

	return batch
}

func shortMessageUpdate(update *tg.UpdateShortMessage) tg.UpdateClass {
	message := &tg.Message{
		ID:      update.ID,
		Out:     update.Out,
		PeerID:  &tg.PeerUser{UserID: update.UserID},
		Date:    update.Date,
		Message: update.Message,
	}
	message.SetFromID(&tg.PeerUser{UserID: update.UserID})
	if replyTo, ok := update.GetReplyTo(); ok {
		message.SetReplyTo(replyTo)
	}

	return &tg.UpdateNewMessage{Message: message, Pts: update.Pts, PtsCount: update.PtsCount}
}

func shortChatMessageUpdate(update *tg.UpdateShortChatMessage) tg.UpdateClass {
	message := &tg.Message{
		ID:      update.ID,
		Out:     update.Out,
		PeerID:  &tg.PeerChat{ChatID: update.ChatID},
		Date:    update.Date,
		Message: update.Message,
	}
	message.SetFromID(&tg.PeerUser{UserID: update.FromID})
	if replyTo, ok := update.GetReplyTo(); ok {
		message.SetReplyTo(replyTo)
	}

	return &tg.UpdateNewMessage{Message: message, Pts: update.Pts, PtsCount: update.PtsCount}
}

func indexUsers(users []tg.UserClass) map[int64]*tg.User {
	if len(users) == 0 {
		return nil
	}

	out := make(map[int64]*tg.User, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		notEmpty, ok := user.AsNotEmpty()
		if !ok || notEmpty == nil {
			continue
		}
		out[notEmpty.ID] = notEmpty
	}

	return out
}

func indexChats(chats []tg.ChatClass) map[int64]chatInfo {
	if len(chats) == 0 {
		return nil
	}

	out := make(map[int64]chatInfo, len(chats))
	for _, chat := range chats {
		switch typed := chat.(type) {
		case *tg.Chat:
			out[groupChatID(typed.ID)] = chatInfo{
				title:     typed.Title,
				kind:      "group",
				inputPeer: typed.AsInputPeer(),
			}
		case *tg.ChatForbidden:
			out[groupChatID(typed.ID)] = chatInfo{
				title:     typed.Title,
				kind:      "group",
				inputPeer: &tg.InputPeerChat{ChatID: typed.ID},
			}
		case *tg.Channel:
			out[channelChatID(typed.ID)] = chatInfo{
				title:     typed.Title,
				username:  typed.Username,
				kind:      channelKind(typed.Megagroup),
				inputPeer: typed.AsInputPeer(),
			}
		case *tg.ChannelForbidden:
			out[channelChatID(typed.ID)] = chatInfo{
				title: typed.Title,
				kind:  channelKind(typed.Megagroup),
				inputPeer: &tg.InputPeerChannel{
					ChannelID:  typed.ID,
					AccessHash: typed.AccessHash,
				},
			}
		}
	}

	return out
}

func channelKind(megagroup bool) string {
	if megagroup {
		return "supergroup"
	}

	return "channel"
}
