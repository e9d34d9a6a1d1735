// Package classifier turns a plain LLM client into the respond/ignore filter
// consulted before the bot does anything with a message.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"replybot/internal/history"
	"replybot/internal/llm"
	"replybot/internal/metrics"
	"replybot/internal/policy"
)

// ErrBlocked is returned when the provider refused the prompt on content
// grounds. Callers reset the conversation.
var ErrBlocked = errors.New("classifier prompt was blocked")

const respondPrompt = `You are a filter for a group chat assistant named %s.
Decide whether %s should answer the last message of the conversation below.
Answer YES if the message asks %s something, continues a conversation with %s, or clearly invites a reply.
Answer NO otherwise.
Reply with exactly one word: YES or NO.`

const actionPrompt = `You decide how %s reacts to the last message of the conversation below.
Answer MESSAGE to write a reply, REACTION to only put an emoji reaction, or IGNORE to do nothing.
Reply with exactly one word: MESSAGE, REACTION or IGNORE.`

type Gateway struct {
	client  llm.Client
	botName string
}

func New(client llm.Client, botName string) *Gateway {
	return &Gateway{client: client, botName: botName}
}

// ShouldRespond asks the model whether the bot should answer text given the
// recent turns. Any answer that is not clearly YES comes back as VerdictNo or
// VerdictUnknown; callers treat both as "stay silent".
func (g *Gateway) ShouldRespond(ctx context.Context, text string, recent []history.Exchange) (policy.Verdict, error) {
	n := g.botName
	out, err := g.ask(ctx, "filter", fmt.Sprintf(respondPrompt, n, n, n, n), text, recent)
	if err != nil {
		metrics.ClassifierVerdicts.WithLabelValues("error").Inc()
		return policy.VerdictUnknown, err
	}
	v := policy.ParseVerdict(out)
	metrics.ClassifierVerdicts.WithLabelValues(v.String()).Inc()
	return v, nil
}

// ChooseAction asks the model to pick between replying, reacting and
// ignoring. An unrecognised answer maps to ActionIgnore.
func (g *Gateway) ChooseAction(ctx context.Context, text string, recent []history.Exchange) (policy.Action, error) {
	out, err := g.ask(ctx, "action", fmt.Sprintf(actionPrompt, g.botName), text, recent)
	if err != nil {
		return policy.ActionIgnore, err
	}
	a, ok := policy.ParseActionVerdict(out)
	if !ok {
		return policy.ActionIgnore, nil
	}
	return a, nil
}

func (g *Gateway) ask(ctx context.Context, purpose, system, text string, recent []history.Exchange) (string, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: transcript(recent, text)},
	}
	start := time.Now()
	resp, err := g.client.Generate(ctx, msgs)
	metrics.RecordLLM(purpose, err == nil, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("classifier %s: %w", purpose, err)
	}
	if resp.Blocked {
		return "", ErrBlocked
	}
	return resp.Content, nil
}

// transcript flattens the recent turns into a single prompt so the filter
// call does not depend on the turns alternating.
func transcript(recent []history.Exchange, text string) string {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, ex := range recent {
			speaker := "User"
			if ex.Role == history.RoleAssistant {
				speaker = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, ex.Text())
		}
		b.WriteString("\n")
	}
	b.WriteString("Last message:\n")
	b.WriteString(text)
	return b.String()
}
