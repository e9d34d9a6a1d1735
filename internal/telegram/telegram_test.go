package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replybot/internal/platform"
)

type fakeAPI struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	endpoint string
	params   tgbotapi.Params
	updates  chan tgbotapi.Update
	stopped  bool
	err      error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, f.err
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.endpoint, f.params = endpoint, params
	return &tgbotapi.APIResponse{Ok: true}, f.err
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

// StopReceivingUpdates panics on a second call, like the library's unguarded
// close of its shutdown channel.
func (f *fakeAPI) StopReceivingUpdates() {
	if f.stopped {
		panic("close of closed channel")
	}
	f.stopped = true
}

func newTest(api *fakeAPI) *Messenger {
	return newMessenger(api, tgbotapi.User{ID: 777, UserName: "mira_bot", IsBot: true}, nil)
}

func TestSelfID(t *testing.T) {
	assert.Equal(t, "777", newTest(&fakeAPI{}).SelfID())
}

func TestSendText_PlainAndTagged(t *testing.T) {
	api := &fakeAPI{}
	m := newTest(api)

	require.NoError(t, m.SendText(context.Background(), platform.OutgoingMessage{ThreadID: "-100", Text: "hello"}))
	require.NoError(t, m.SendText(context.Background(), platform.OutgoingMessage{
		ThreadID: "-100", Text: "hello", ReplyTo: "55",
		Mention: &platform.Mention{UserID: "1", Name: "@ann"},
	}))

	require.Len(t, api.sent, 2)
	plain := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-100), plain.ChatID)
	assert.Equal(t, "hello", plain.Text)
	assert.Zero(t, plain.ReplyToMessageID)

	tagged := api.sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, "@ann hello", tagged.Text)
	assert.Equal(t, 55, tagged.ReplyToMessageID)
	assert.Empty(t, tagged.Entities)
}

func TestSendText_TextMention(t *testing.T) {
	api := &fakeAPI{}
	m := newTest(api)
	require.NoError(t, m.SendText(context.Background(), platform.OutgoingMessage{
		ThreadID: "5", Text: "hi", Mention: &platform.Mention{UserID: "42", Name: "Zoë"},
	}))

	cfg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "Zoë, hi", cfg.Text)
	require.Len(t, cfg.Entities, 1)
	assert.Equal(t, "text_mention", cfg.Entities[0].Type)
	assert.Equal(t, 3, cfg.Entities[0].Length)
	assert.Equal(t, int64(42), cfg.Entities[0].User.ID)
}

func TestSendText_Errors(t *testing.T) {
	m := newTest(&fakeAPI{err: errors.New("bad request")})
	assert.Error(t, m.SendText(context.Background(), platform.OutgoingMessage{ThreadID: "1", Text: "x"}))
	assert.Error(t, m.SendText(context.Background(), platform.OutgoingMessage{ThreadID: "not-a-number", Text: "x"}))
}

func TestReact(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, newTest(api).React(context.Background(), "-100", "12", "🔥"))

	assert.Equal(t, "setMessageReaction", api.endpoint)
	assert.Equal(t, "-100", api.params["chat_id"])
	assert.Equal(t, "12", api.params["message_id"])

	var reactions []reactionType
	require.NoError(t, json.Unmarshal([]byte(api.params["reaction"]), &reactions))
	assert.Equal(t, []reactionType{{Type: "emoji", Emoji: "🔥"}}, reactions)
}

func TestSendTyping(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, newTest(api).SendTyping(context.Background(), "9"))
	require.Len(t, api.requests, 1)
	action := api.requests[0].(tgbotapi.ChatActionConfig)
	assert.Equal(t, tgbotapi.ChatTyping, action.Action)
	assert.Equal(t, int64(9), action.ChatID)
}

func TestListen(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 3)}
	m := newTest(api)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evs, err := m.Listen(ctx)
	require.NoError(t, err)

	api.updates <- tgbotapi.Update{UpdateID: 1}
	api.updates <- tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
		MessageID: 3, Text: "hi", Chat: &tgbotapi.Chat{ID: -5, Type: "supergroup"}, From: &tgbotapi.User{ID: 8, FirstName: "Bo"},
	}}

	select {
	case ev := <-evs:
		assert.Equal(t, platform.Event{
			Type: platform.EventMessage, SenderID: "8", SenderName: "Bo", ThreadID: "-5", MessageID: "3", Body: "hi", IsGroup: true,
		}, ev)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	cancel()
	for range evs {
	}
	assert.True(t, api.stopped)
	assert.NotPanics(t, func() { require.NoError(t, m.Close()) })
}

func TestCloseTwice(t *testing.T) {
	api := &fakeAPI{}
	m := newTest(api)
	assert.NotPanics(t, func() {
		require.NoError(t, m.Close())
		require.NoError(t, m.Close())
	})
	assert.True(t, api.stopped)
}

func TestEventFromUpdate(t *testing.T) {
	chat := &tgbotapi.Chat{ID: 10, Type: "private"}
	from := &tgbotapi.User{ID: 1, UserName: "ann"}

	t.Run("reply", func(t *testing.T) {
		ev, ok := eventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
			MessageID: 2, Chat: chat, From: from, Text: "yes", ReplyToMessage: &tgbotapi.Message{MessageID: 1},
		}})
		require.True(t, ok)
		assert.Equal(t, platform.EventMessageReply, ev.Type)
		assert.Equal(t, "@ann", ev.SenderName)
		assert.False(t, ev.IsGroup)
	})
	t.Run("edit", func(t *testing.T) {
		ev, ok := eventFromUpdate(tgbotapi.Update{EditedMessage: &tgbotapi.Message{MessageID: 2, Chat: chat, From: from}})
		require.True(t, ok)
		assert.Equal(t, platform.EventMessageEdit, ev.Type)
	})
	t.Run("sticker", func(t *testing.T) {
		ev, ok := eventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
			MessageID: 3, Chat: chat, From: from, Sticker: &tgbotapi.Sticker{FileID: "s", Emoji: "😀"},
		}})
		require.True(t, ok)
		require.Len(t, ev.Attachments, 1)
		assert.Equal(t, platform.KindSticker, ev.Attachments[0].Kind)
		assert.Equal(t, "😀", ev.Attachments[0].Meta["emoji"])
		assert.Equal(t, "sent a sticker", ev.Text())
	})
	t.Run("captioned photos", func(t *testing.T) {
		ev, _ := eventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
			MessageID: 4, Chat: chat, From: from, Caption: "look",
			Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}},
		}})
		assert.Equal(t, "look", ev.Body)
		require.Len(t, ev.Attachments, 1)
		assert.Equal(t, "big", ev.Attachments[0].Meta["file_id"])
	})
	t.Run("poll is unknown kind", func(t *testing.T) {
		ev, _ := eventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
			MessageID: 5, Chat: chat, From: from, Poll: &tgbotapi.Poll{Question: "?"},
		}})
		assert.Equal(t, "sent an attachment", ev.Text())
	})
	t.Run("callback only", func(t *testing.T) {
		_, ok := eventFromUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "x"}})
		assert.False(t, ok)
	})
}
