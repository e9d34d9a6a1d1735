// Package discord adapts the Discord gateway to platform.Messenger.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"replybot/internal/platform"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

type Messenger struct {
	sess session
	log  *zap.Logger

	selfMu sync.RWMutex
	selfID string

	mu      sync.Mutex
	inbound chan platform.Event
	remove  []func()
	closed  bool
}

// New opens a gateway session with the intents needed to read messages.
func New(token string, log *zap.Logger) (*Messenger, error) {
	if token == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	m := newMessenger(dg, log)
	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("discord: open gateway: %w", err)
	}
	if dg.State != nil && dg.State.User != nil {
		m.setSelf(dg.State.User.ID)
	}
	return m, nil
}

func newMessenger(sess session, log *zap.Logger) *Messenger {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Messenger{
		sess:    sess,
		log:     log.With(zap.String("platform", "discord")),
		inbound: make(chan platform.Event, 100),
	}
	m.remove = append(m.remove,
		sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			m.setSelf(r.User.ID)
			m.log.Info("connected", zap.String("username", r.User.Username), zap.String("id", r.User.ID))
		}),
		sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			m.log.Warn("gateway disconnected, discordgo will reconnect")
		}),
	)
	return m
}

func (m *Messenger) setSelf(id string) {
	m.selfMu.Lock()
	m.selfID = id
	m.selfMu.Unlock()
}

func (m *Messenger) SelfID() string {
	m.selfMu.RLock()
	defer m.selfMu.RUnlock()
	return m.selfID
}

// Listen registers the message handlers. The returned channel is closed by
// Close.
func (m *Messenger) Listen(ctx context.Context) (<-chan platform.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("discord: messenger closed")
	}
	m.remove = append(m.remove,
		m.sess.AddHandler(func(_ *discordgo.Session, mc *discordgo.MessageCreate) {
			m.deliver(ctx, mc.Message, false)
		}),
		m.sess.AddHandler(func(_ *discordgo.Session, upd *discordgo.MessageUpdate) {
			m.deliver(ctx, upd.Message, true)
		}),
	)
	return m.inbound, nil
}

func (m *Messenger) deliver(ctx context.Context, msg *discordgo.Message, edited bool) {
	if msg == nil || msg.Author == nil {
		return
	}
	ev := eventFromMessage(msg)
	if edited {
		ev.Type = platform.EventMessageEdit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.inbound <- ev:
	case <-ctx.Done():
	}
}

func (m *Messenger) SendText(_ context.Context, msg platform.OutgoingMessage) error {
	if _, err := m.sess.ChannelMessageSendComplex(msg.ThreadID, buildMessageSend(msg)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

func (m *Messenger) React(_ context.Context, threadID, messageID, emoji string) error {
	if err := m.sess.MessageReactionAdd(threadID, messageID, emoji); err != nil {
		return fmt.Errorf("discord: add reaction: %w", err)
	}
	return nil
}

func (m *Messenger) SendTyping(_ context.Context, threadID string) error {
	if err := m.sess.ChannelTyping(threadID); err != nil {
		return fmt.Errorf("discord: typing: %w", err)
	}
	return nil
}

func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, rm := range m.remove {
		rm()
	}
	close(m.inbound)
	return m.sess.Close()
}

func buildMessageSend(msg platform.OutgoingMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{Content: msg.Text}
	if msg.Mention != nil && msg.Mention.UserID != "" {
		data.Content = "<@" + msg.Mention.UserID + "> " + msg.Text
		data.AllowedMentions = &discordgo.MessageAllowedMentions{Users: []string{msg.Mention.UserID}}
	}
	if msg.ReplyTo != "" {
		data.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ThreadID}
	}
	return data
}

func eventFromMessage(msg *discordgo.Message) platform.Event {
	ev := platform.Event{
		Type:        platform.EventMessage,
		SenderID:    msg.Author.ID,
		SenderName:  displayName(msg.Author),
		ThreadID:    msg.ChannelID,
		MessageID:   msg.ID,
		Body:        msg.Content,
		Attachments: attachments(msg),
		IsGroup:     msg.GuildID != "",
	}
	if msg.MessageReference != nil && msg.MessageReference.MessageID != "" {
		ev.Type = platform.EventMessageReply
	}
	return ev
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func attachments(msg *discordgo.Message) []platform.Attachment {
	var out []platform.Attachment
	for _, a := range msg.Attachments {
		if a == nil {
			continue
		}
		out = append(out, platform.Attachment{
			Kind: kindFromContentType(a.ContentType),
			Name: a.Filename,
			URL:  a.URL,
			Meta: map[string]string{"content_type": a.ContentType},
		})
	}
	for _, s := range msg.StickerItems {
		if s == nil {
			continue
		}
		out = append(out, platform.Attachment{Kind: platform.KindSticker, Name: s.Name, Meta: map[string]string{"id": s.ID}})
	}
	for _, e := range msg.Embeds {
		if e == nil || e.URL == "" {
			continue
		}
		out = append(out, platform.Attachment{Kind: platform.KindShare, Name: e.Title, URL: e.URL})
	}
	return out
}

func kindFromContentType(ct string) platform.AttachmentKind {
	switch {
	case strings.HasPrefix(ct, "image/"):
		return platform.KindPhoto
	case strings.HasPrefix(ct, "video/"):
		return platform.KindVideo
	case strings.HasPrefix(ct, "audio/"):
		return platform.KindAudio
	default:
		return platform.KindFile
	}
}
