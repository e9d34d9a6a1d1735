package telegram

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"replybot/internal/platform"
)

// eventFromUpdate maps a Telegram update to a platform event. Updates that
// carry no message are skipped.
func eventFromUpdate(u tgbotapi.Update) (platform.Event, bool) {
	switch {
	case u.Message != nil:
		ev := eventFromMessage(u.Message)
		if u.Message.ReplyToMessage != nil {
			ev.Type = platform.EventMessageReply
		}
		return ev, true
	case u.EditedMessage != nil:
		ev := eventFromMessage(u.EditedMessage)
		ev.Type = platform.EventMessageEdit
		return ev, true
	default:
		return platform.Event{}, false
	}
}

func eventFromMessage(msg *tgbotapi.Message) platform.Event {
	ev := platform.Event{
		Type:        platform.EventMessage,
		MessageID:   strconv.Itoa(msg.MessageID),
		Body:        msg.Text,
		Attachments: attachments(msg),
	}
	if ev.Body == "" {
		ev.Body = msg.Caption
	}
	if msg.Chat != nil {
		ev.ThreadID = strconv.FormatInt(msg.Chat.ID, 10)
		ev.IsGroup = msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()
	}
	if msg.From != nil {
		ev.SenderID = strconv.FormatInt(msg.From.ID, 10)
		ev.SenderName = senderName(msg.From)
	}
	return ev
}

// senderName prefers @username so replies can tag it verbatim.
func senderName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

func attachments(msg *tgbotapi.Message) []platform.Attachment {
	var out []platform.Attachment
	add := func(kind platform.AttachmentKind, name string, meta map[string]string) {
		out = append(out, platform.Attachment{Kind: kind, Name: name, Meta: meta})
	}
	if len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		add(platform.KindPhoto, "", map[string]string{"file_id": largest.FileID})
	}
	if msg.Video != nil {
		add(platform.KindVideo, msg.Video.FileName, map[string]string{"file_id": msg.Video.FileID})
	}
	if msg.Animation != nil {
		add(platform.KindVideo, msg.Animation.FileName, map[string]string{"file_id": msg.Animation.FileID, "animated": "true"})
	}
	if msg.VideoNote != nil {
		add(platform.KindVideo, "", map[string]string{"file_id": msg.VideoNote.FileID})
	}
	if msg.Document != nil && msg.Animation == nil {
		add(platform.KindFile, msg.Document.FileName, map[string]string{"file_id": msg.Document.FileID})
	}
	if msg.Audio != nil {
		add(platform.KindAudio, msg.Audio.Title, map[string]string{"file_id": msg.Audio.FileID})
	}
	if msg.Voice != nil {
		add(platform.KindAudio, "", map[string]string{"file_id": msg.Voice.FileID, "duration": strconv.Itoa(msg.Voice.Duration)})
	}
	if msg.Sticker != nil {
		add(platform.KindSticker, msg.Sticker.SetName, map[string]string{"emoji": msg.Sticker.Emoji})
	}
	if msg.Venue != nil {
		add(platform.KindShare, msg.Venue.Title, map[string]string{"address": msg.Venue.Address})
	} else if msg.Location != nil {
		add(platform.KindShare, "location", nil)
	}
	if msg.Poll != nil {
		add("poll", msg.Poll.Question, nil)
	}
	if msg.Contact != nil {
		add("contact", msg.Contact.FirstName, nil)
	}
	return out
}
