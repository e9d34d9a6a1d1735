package platform

import (
	"fmt"
	"strings"
)

var kindNouns = map[AttachmentKind][2]string{
	KindPhoto:   {"a photo", "photos"},
	KindVideo:   {"a video", "videos"},
	KindFile:    {"a file", "files"},
	KindAudio:   {"a voice message", "voice messages"},
	KindSticker: {"a sticker", "stickers"},
	KindShare:   {"a link", "links"},
}

// Describe produces a short synthetic text for attachments, e.g.
// "sent a sticker" or "sent 2 photos and a file". Unknown kinds are
// described as attachments.
func Describe(atts []Attachment) string {
	if len(atts) == 0 {
		return ""
	}
	var order []AttachmentKind
	counts := map[AttachmentKind]int{}
	for _, a := range atts {
		k := a.Kind
		if _, known := kindNouns[k]; !known {
			k = ""
		}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}

	parts := make([]string, 0, len(order))
	for _, k := range order {
		nouns, known := kindNouns[k]
		if !known {
			nouns = [2]string{"an attachment", "attachments"}
		}
		if n := counts[k]; n == 1 {
			parts = append(parts, nouns[0])
		} else {
			parts = append(parts, fmt.Sprintf("%d %s", n, nouns[1]))
		}
	}
	return "sent " + joinList(parts)
}

// Text returns the body, or the attachment description when the body is
// blank, so downstream prompts never see an empty message.
func (e Event) Text() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	if d := Describe(e.Attachments); d != "" {
		return d
	}
	return e.Body
}

func joinList(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}
