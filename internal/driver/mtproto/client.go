package mtproto

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"ex-tgbot/pkg/tgbot"

	"github.com/gotd/td/crypto"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
)

// rpcAPI is the subset of the raw API used for bot actions.
type rpcAPI interface {
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	MessagesSetBotCallbackAnswer(ctx context.Context, request *tg.MessagesSetBotCallbackAnswerRequest) (bool, error)
}

// Client is a gotd-backed bot connection. It implements tgbot.Client and
// tgbot.Session: the poll loop must run inside Run.
type Client struct {
	cfg    Config
	logger *slog.Logger
	client *gotdtelegram.Client
	rpc    rpcAPI
	queue  *updateQueue
	peers  *PeerCache
	rand   io.Reader
}

var (
	_ tgbot.Client  = (*Client)(nil)
	_ tgbot.Session = (*Client)(nil)
)

// New creates an MTProto bot client. The connection is opened by Run.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, fmt.Errorf("new mtproto client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	storage, err := newSessionStorage(normalized.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("new mtproto client: %w", err)
	}

	peers := NewPeerCache()
	queue := newUpdateQueue(normalized.UpdateBuffer, peers, logger)
	options := gotdtelegram.Options{
		Logger:         newZapLogger(normalized.LogLevel),
		UpdateHandler:  queue,
		SessionStorage: storage,
	}
	if normalized.TestEnvironment {
		options.DCList = dcs.Test()
	}
	client := gotdtelegram.NewClient(normalized.AppID, normalized.AppHash, options)

	return newClient(normalized, logger, client, client.API(), queue, peers), nil
}

func newClient(
	cfg Config,
	logger *slog.Logger,
	client *gotdtelegram.Client,
	rpc rpcAPI,
	queue *updateQueue,
	peers *PeerCache,
) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		client: client,
		rpc:    rpc,
		queue:  queue,
		peers:  peers,
		rand:   crypto.DefaultRand(),
	}
}

// Run connects, authorizes as a bot when the stored session is not yet
// authorized, and runs fn while connected.
func (c *Client) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("run mtproto client: nil callback")
	}
	if c.client == nil {
		return fmt.Errorf("run mtproto client: not connected")
	}

	if err := c.client.Run(ctx, func(runCtx context.Context) error {
		if err := c.authorize(runCtx); err != nil {
			return fmt.Errorf("authorize bot: %w", err)
		}
		return fn(runCtx)
	}); err != nil {
		return fmt.Errorf("run mtproto client: %w", err)
	}

	return nil
}

func (c *Client) authorize(ctx context.Context) error {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status.Authorized {
		c.logger.InfoContext(ctx, "telegram session restored from local storage", "session_file", c.cfg.SessionFile)
		return nil
	}

	if _, err := c.client.Auth().Bot(ctx, c.cfg.Token); err != nil {
		return mapRPCError("auth.importBotAuthorization", err)
	}
	c.logger.InfoContext(ctx, "telegram authorized with bot token", "session_file", c.cfg.SessionFile)

	return nil
}

// FetchUpdates serves updates pushed since the last fetch.
func (c *Client) FetchUpdates(ctx context.Context, request tgbot.FetchRequest) ([]tgbot.Update, error) {
	return c.queue.fetch(ctx, request)
}

// Self returns the authorized bot account. It needs a running session.
func (c *Client) Self(ctx context.Context) (tgbot.Identity, error) {
	if c.client == nil {
		return tgbot.Identity{}, fmt.Errorf("telegram users.getUsers: not connected")
	}

	self, err := c.client.Self(ctx)
	if err != nil {
		return tgbot.Identity{}, mapRPCError("users.getUsers", err)
	}

	return tgbot.Identity{
		ID:        self.ID,
		IsBot:     self.Bot,
		Username:  self.Username,
		FirstName: self.FirstName,
	}, nil
}

// SendMessage sends plain text. Parse modes are not applied on this transport.
func (c *Client) SendMessage(ctx context.Context, request tgbot.SendMessageRequest) (*tgbot.Message, error) {
	peer, err := c.peers.Resolve(request.ChatID)
	if err != nil {
		return nil, fmt.Errorf("telegram messages.sendMessage: %w", err)
	}
	if request.Text == "" {
		return nil, fmt.Errorf("telegram messages.sendMessage: empty text")
	}

	randomID, err := crypto.RandInt64(c.rand)
	if err != nil {
		return nil, fmt.Errorf("telegram messages.sendMessage: random id: %w", err)
	}
	sendRequest := &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  request.Text,
		RandomID: randomID,
	}
	if request.ReplyToMessageID > 0 {
		sendRequest.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: int(request.ReplyToMessageID)})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()

	updates, err := c.rpc.MessagesSendMessage(callCtx, sendRequest)
	if err != nil {
		return nil, mapRPCError("messages.sendMessage", err)
	}

	sent := &tgbot.Message{
		Chat: tgbot.Chat{ID: request.ChatID},
		Text: request.Text,
	}
	messageID, err := unpack.MessageID(updates, nil)
	if err != nil {
		c.logger.DebugContext(ctx, "sent message id unavailable", "chat_id", request.ChatID, "error", err)
		return sent, nil
	}
	sent.ID = int64(messageID)

	return sent, nil
}

// AnswerCallbackQuery answers an inline keyboard press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, request tgbot.AnswerCallbackQueryRequest) error {
	queryID, err := strconv.ParseInt(request.CallbackQueryID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram messages.setBotCallbackAnswer: parse query id %q: %w", request.CallbackQueryID, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()

	if _, err := c.rpc.MessagesSetBotCallbackAnswer(callCtx, &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
		Message: request.Text,
		Alert:   request.ShowAlert,
	}); err != nil {
		return mapRPCError("messages.setBotCallbackAnswer", err)
	}

	return nil
}
