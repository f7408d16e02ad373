package mtproto

import (
	"testing"

	"ex-tgbot/pkg/tgbot"

	"github.com/gotd/td/tg"
)

func TestMapUpdate(t *testing.T) {
	t.Parallel()

	channel := newTestChannel(500, 3)
	channel.Title = "News"
	channel.Username = "news"
	supergroup := newTestChannel(600, 4)
	supergroup.Title = "Talk"
	supergroup.Megagroup = true

	tests := []struct {
		name      string
		updates   tg.UpdatesClass
		wantOK    bool
		wantType  tgbot.UpdateType
		wantChat  int64
		wantChatT string
		wantText  string
	}{
		{
			name: "private message",
			updates: &tg.Updates{
				Updates: []tg.UpdateClass{&tg.UpdateNewMessage{
					Message: &tg.Message{ID: 1, PeerID: &tg.PeerUser{UserID: 42}, Message: "hi"},
				}},
			},
			wantOK:    true,
			wantType:  tgbot.UpdateTypeMessage,
			wantChat:  42,
			wantChatT: "private",
			wantText:  "hi",
		},
		{
			name: "edited group message",
			updates: &tg.Updates{
				Updates: []tg.UpdateClass{&tg.UpdateEditMessage{
					Message: &tg.Message{ID: 2, PeerID: &tg.PeerChat{ChatID: 77}, Message: "fixed"},
				}},
				Chats: []tg.ChatClass{&tg.Chat{ID: 77, Title: "Team"}},
			},
			wantOK:    true,
			wantType:  tgbot.UpdateTypeEditedMessage,
			wantChat:  -77,
			wantChatT: "group",
			wantText:  "fixed",
		},
		{
			name: "channel post",
			updates: &tg.Updates{
				Updates: []tg.UpdateClass{&tg.UpdateNewChannelMessage{
					Message: &tg.Message{ID: 3, PeerID: &tg.PeerChannel{ChannelID: 500}, Message: "post"},
				}},
				Chats: []tg.ChatClass{channel},
			},
			wantOK:    true,
			wantType:  tgbot.UpdateTypeChannelPost,
			wantChat:  -1_000_000_000_500,
			wantChatT: "channel",
			wantText:  "post",
		},
		{
			name: "supergroup message",
			updates: &tg.Updates{
				Updates: []tg.UpdateClass{&tg.UpdateEditChannelMessage{
					Message: &tg.Message{ID: 4, PeerID: &tg.PeerChannel{ChannelID: 600}, Message: "edit"},
				}},
				Chats: []tg.ChatClass{supergroup},
			},
			wantOK:    true,
			wantType:  tgbot.UpdateTypeEditedMessage,
			wantChat:  -1_000_000_000_600,
			wantChatT: "supergroup",
			wantText:  "edit",
		},
		{
			name: "short chat message",
			updates: &tg.UpdateShortChatMessage{
				ID: 5, FromID: 42, ChatID: 9, Message: "/help",
			},
			wantOK:    true,
			wantType:  tgbot.UpdateTypeMessage,
			wantChat:  -9,
			wantChatT: "group",
			wantText:  "/help",
		},
		{
			name: "outgoing message skipped",
			updates: &tg.UpdateShortMessage{
				ID: 6, Out: true, UserID: 42, Message: "mine",
			},
		},
		{
			name: "unsupported update skipped",
			updates: &tg.UpdateShort{
				Update: &tg.UpdateUserTyping{UserID: 42},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			batch, err := flattenUpdates(testCase.updates)
			if err != nil {
				t.Fatalf("flattenUpdates error = %v", err)
			}
			if len(batch) != 1 {
				t.Fatalf("flattened %d updates, want 1", len(batch))
			}

			got, ok := mapUpdate(batch[0])
			if ok != testCase.wantOK {
				t.Fatalf("accepted = %v, want %v", ok, testCase.wantOK)
			}
			if !ok {
				return
			}
			if got.Type != testCase.wantType {
				t.Fatalf("type = %q, want %q", got.Type, testCase.wantType)
			}
			if got.ChatID() != testCase.wantChat {
				t.Fatalf("chat id = %d, want %d", got.ChatID(), testCase.wantChat)
			}
			if got.Message.Chat.Type != testCase.wantChatT {
				t.Fatalf("chat type = %q, want %q", got.Message.Chat.Type, testCase.wantChatT)
			}
			if got.Text() != testCase.wantText {
				t.Fatalf("text = %q, want %q", got.Text(), testCase.wantText)
			}
		})
	}
}

func TestMapUpdateCallbackQuery(t *testing.T) {
	t.Parallel()

	envelope := updateEnvelope{
		update: &tg.UpdateBotCallbackQuery{
			QueryID: 123456789,
			UserID:  42,
			Peer:    &tg.PeerUser{UserID: 42},
			MsgID:   17,
			Data:    []byte("vote:1"),
		},
		usersByID: map[int64]*tg.User{42: {ID: 42, Username: "ann", FirstName: "Ann"}},
	}

	got, ok := mapUpdate(envelope)
	if !ok {
		t.Fatal("callback query was not accepted")
	}
	query := got.CallbackQuery
	if got.Type != tgbot.UpdateTypeCallbackQuery || query == nil {
		t.Fatalf("update = %+v, want callback query", got)
	}
	if query.ID != "123456789" || query.Data != "vote:1" {
		t.Fatalf("query = %+v, want id 123456789 data vote:1", query)
	}
	if query.From.Username != "ann" {
		t.Fatalf("from = %+v, want ann", query.From)
	}
	if got.ChatID() != 42 || query.Message.ID != 17 {
		t.Fatalf("message = %+v, want chat 42 message 17", query.Message)
	}
}

func TestProjectMessageReplyAndSender(t *testing.T) {
	t.Parallel()

	message := &tg.Message{ID: 8, PeerID: &tg.PeerChat{ChatID: 5}, Message: "yes"}
	message.SetFromID(&tg.PeerUser{UserID: 42})
	header := &tg.MessageReplyHeader{}
	header.SetReplyToMsgID(3)
	header.SetReplyToTopID(2)
	message.SetReplyTo(header)

	got := projectMessage(message, updateEnvelope{})
	if got.From == nil || got.From.ID != 42 {
		t.Fatalf("from = %+v, want user 42", got.From)
	}
	if got.ReplyTo == nil || got.ReplyTo.ID != 3 {
		t.Fatalf("reply to = %+v, want message 3", got.ReplyTo)
	}
	if got.ThreadID != 2 {
		t.Fatalf("thread id = %d, want 2", got.ThreadID)
	}
}

func TestFlattenUpdatesRejectsNil(t *testing.T) {
	t.Parallel()

	if _, err := flattenUpdates(nil); err == nil {
		t.Fatal("flattenUpdates(nil) error = nil, want error")
	}
	batch, err := flattenUpdates(&tg.UpdatesTooLong{})
	if err != nil || len(batch) != 0 {
		t.Fatalf("flattenUpdates(too long) = (%v, %v), want empty", batch, err)
	}
}
