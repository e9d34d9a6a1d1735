// Package telegram adapts the Telegram Bot API to platform.Messenger.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"replybot/internal/platform"
)

const pollTimeout = 60

type Messenger struct {
	api  botAPI
	self tgbotapi.User
	log  *zap.Logger

	// the library closes its shutdown channel unguarded
	stopOnce sync.Once
}

func New(token string, log *zap.Logger) (*Messenger, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return newMessenger(api, api.Self, log), nil
}

func newMessenger(api botAPI, self tgbotapi.User, log *zap.Logger) *Messenger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Messenger{api: api, self: self, log: log.With(zap.String("platform", "telegram"))}
}

func (m *Messenger) SelfID() string { return strconv.FormatInt(m.self.ID, 10) }

// Listen long-polls for updates until ctx is done.
func (m *Messenger) Listen(ctx context.Context) (<-chan platform.Event, error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := m.api.GetUpdatesChan(u)

	out := make(chan platform.Event)
	go func() {
		defer close(out)
		defer m.stopPolling()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				ev, ok := eventFromUpdate(upd)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	m.log.Info("polling started", zap.String("username", m.self.UserName))
	return out, nil
}

func (m *Messenger) SendText(_ context.Context, msg platform.OutgoingMessage) error {
	chatID, err := parseID(msg.ThreadID)
	if err != nil {
		return err
	}
	cfg := tgbotapi.NewMessage(chatID, msg.Text)
	if msg.ReplyTo != "" {
		if id, err := strconv.Atoi(msg.ReplyTo); err == nil {
			cfg.ReplyToMessageID = id
			cfg.AllowSendingWithoutReply = true
		}
	}
	if msg.Mention != nil {
		cfg.Text, cfg.Entities = withMention(msg.Text, *msg.Mention)
	}
	if _, err := m.api.Send(cfg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// React calls setMessageReaction, which the library has no helper for.
func (m *Messenger) React(_ context.Context, threadID, messageID, emoji string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("chat_id", threadID)
	params.AddNonEmpty("message_id", messageID)
	if err := params.AddInterface("reaction", []reactionType{{Type: "emoji", Emoji: emoji}}); err != nil {
		return err
	}
	if _, err := m.api.MakeRequest("setMessageReaction", params); err != nil {
		return fmt.Errorf("telegram react: %w", err)
	}
	return nil
}

func (m *Messenger) SendTyping(_ context.Context, threadID string) error {
	chatID, err := parseID(threadID)
	if err != nil {
		return err
	}
	if _, err := m.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("telegram typing: %w", err)
	}
	return nil
}

func (m *Messenger) Close() error {
	m.stopPolling()
	return nil
}

func (m *Messenger) stopPolling() {
	m.stopOnce.Do(m.api.StopReceivingUpdates)
}

// withMention prefixes the text with the sender. Users with a username get a
// plain @username; others get a text_mention entity over their name.
func withMention(text string, mention platform.Mention) (string, []tgbotapi.MessageEntity) {
	if len(mention.Name) > 1 && mention.Name[0] == '@' {
		return mention.Name + " " + text, nil
	}
	name := mention.Name
	if name == "" {
		name = "you"
	}
	uid, err := strconv.ParseInt(mention.UserID, 10, 64)
	if err != nil {
		return name + ", " + text, nil
	}
	entity := tgbotapi.MessageEntity{
		Type:   "text_mention",
		Offset: 0,
		Length: len(utf16.Encode([]rune(name))),
		User:   &tgbotapi.User{ID: uid},
	}
	return name + ", " + text, []tgbotapi.MessageEntity{entity}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: bad chat id %q: %w", s, err)
	}
	return id, nil
}
