// Package platform defines what the bot needs from a chat network: a stream
// of inbound events and three outbound calls.
package platform

import "context"

// Event types delivered by adapters. Only message and message_reply are
// processed; other types are dropped by the dispatcher.
const (
	EventMessage      = "message"
	EventMessageReply = "message_reply"
	EventMessageEdit  = "message_edit"
)

type AttachmentKind string

const (
	KindPhoto   AttachmentKind = "photo"
	KindVideo   AttachmentKind = "video"
	KindFile    AttachmentKind = "file"
	KindAudio   AttachmentKind = "audio"
	KindSticker AttachmentKind = "sticker"
	KindShare   AttachmentKind = "share"
)

type Attachment struct {
	Kind AttachmentKind
	Name string
	URL  string
	// Meta carries kind-specific details (sticker emoji, duration, title...).
	Meta map[string]string
}

// Event is one inbound message as seen by the bot.
type Event struct {
	Type        string
	SenderID    string
	SenderName  string
	ThreadID    string
	MessageID   string
	Body        string
	Attachments []Attachment
	IsGroup     bool
}

// OutgoingMessage is a text reply. When Mention is set the adapter tags the
// sender in the platform's native way.
type OutgoingMessage struct {
	ThreadID string
	Text     string
	ReplyTo  string
	Mention  *Mention
}

type Mention struct {
	UserID string
	Name   string
}

type Messenger interface {
	// Listen starts delivering events. The channel is closed when ctx is
	// done or the connection is lost for good.
	Listen(ctx context.Context) (<-chan Event, error)
	SendText(ctx context.Context, msg OutgoingMessage) error
	React(ctx context.Context, threadID, messageID, emoji string) error
	SendTyping(ctx context.Context, threadID string) error
	// SelfID is the account id the bot runs as.
	SelfID() string
	Close() error
}
