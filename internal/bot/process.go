package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"replybot/internal/classifier"
	"replybot/internal/events"
	"replybot/internal/history"
	"replybot/internal/llm"
	"replybot/internal/logger"
	"replybot/internal/metrics"
	"replybot/internal/platform"
	"replybot/internal/policy"
	"replybot/internal/queue"
	"replybot/internal/storage"
)

// Recorded actions besides the policy actions.
const (
	actionSkip  = "skip"
	actionReset = "reset"
)

// outcome is what one task did; it feeds the log, metrics, JSONL and NATS.
type outcome struct {
	action   string
	response string
	emoji    string
	tagged   bool
	err      error
}

// process runs one queued message through the decision steps. It is only
// called by the conversation's worker, so history for task.ConversationID
// is never mutated concurrently.
func (b *Bot) process(ctx context.Context, task queue.Task) error {
	ev := task.Event
	id := task.ConversationID
	log := logger.ForConversation(b.log, id).With(zap.String("task_id", task.ID))
	text := ev.Text()

	var out outcome
	if b.isResetCommand(ev) {
		out = b.adminReset(ctx, log, ev)
	} else {
		out = b.respond(ctx, log, id, ev, text)
	}

	b.finish(log, task, text, out)
	return out.err
}

func (b *Bot) isResetCommand(ev platform.Event) bool {
	if strings.TrimSpace(ev.Body) != resetCommand {
		return false
	}
	self := b.messenger.SelfID()
	return b.admins.IsAllowed(ev.SenderID) || (self != "" && (ev.SenderID == self || ev.ThreadID == self))
}

func (b *Bot) adminReset(ctx context.Context, log *zap.Logger, ev platform.Event) outcome {
	if err := b.history.Reset(ev.ThreadID); err != nil {
		log.Error("history reset failed", zap.Error(err))
		return outcome{action: actionReset, err: err}
	}
	metrics.HistoryResets.WithLabelValues("admin").Inc()
	log.Info("history reset by admin", zap.String("sender_id", ev.SenderID))
	b.send(ctx, log, platform.OutgoingMessage{ThreadID: ev.ThreadID, Text: resetConfirm})
	return outcome{action: actionReset, response: resetConfirm}
}

func (b *Bot) respond(ctx context.Context, log *zap.Logger, id string, ev platform.Event, text string) outcome {
	if !policy.Addressed(ev.Body, len(ev.Attachments) > 0, b.names...) {
		verdict, err := b.classifier.ShouldRespond(ctx, text, b.history.Recent(id, b.classifierHistory))
		if errors.Is(err, classifier.ErrBlocked) {
			b.resetBlocked(log, id)
			return outcome{action: actionSkip}
		}
		if err != nil {
			log.Warn("classifier failed, staying silent", zap.Error(err))
			return outcome{action: actionSkip}
		}
		if verdict != policy.VerdictYes {
			log.Debug("not responding", zap.Stringer("verdict", verdict))
			return outcome{action: actionSkip}
		}
	}

	action, err := b.decide(ctx, id, text)
	if errors.Is(err, classifier.ErrBlocked) {
		b.resetBlocked(log, id)
		return outcome{action: actionSkip}
	}
	if err != nil {
		log.Warn("action choice failed, ignoring", zap.Error(err))
		action = policy.ActionIgnore
	}

	if action == policy.ActionReact && !b.policy.CanReact() {
		log.Debug("no reaction emojis configured, ignoring")
		action = policy.ActionIgnore
	}

	var out outcome
	switch action {
	case policy.ActionReact:
		out = b.react(ctx, log, id, ev, text)
	case policy.ActionReply:
		out = b.reply(ctx, log, id, ev, text)
		if out.action == actionReset {
			return out
		}
	default:
		b.history.AppendUser(id, text)
		out = outcome{action: policy.ActionIgnore.String()}
	}

	b.persist(log, id)
	return out
}

func (b *Bot) decide(ctx context.Context, id, text string) (policy.Action, error) {
	if b.modelDecisions {
		return b.classifier.ChooseAction(ctx, text, b.history.Recent(id, b.classifierHistory))
	}
	return b.policy.NextAction(), nil
}

func (b *Bot) react(ctx context.Context, log *zap.Logger, id string, ev platform.Event, text string) outcome {
	emoji := b.policy.Emoji()
	if err := b.sleep(ctx, b.policy.ReactDelay()); err != nil {
		return outcome{action: policy.ActionReact.String(), err: err}
	}
	if err := b.messenger.React(ctx, ev.ThreadID, ev.MessageID, emoji); err != nil {
		metrics.OutboundErrors.WithLabelValues("react").Inc()
		log.Warn("reaction failed", zap.String("emoji", emoji), zap.Error(err))
	}
	b.history.AppendUser(id, text)
	return outcome{action: policy.ActionReact.String(), emoji: emoji}
}

func (b *Bot) reply(ctx context.Context, log *zap.Logger, id string, ev platform.Event, text string) outcome {
	b.history.AppendUser(id, text)
	if n := b.history.RepairAlternation(id); n > 0 {
		log.Debug("history repaired", zap.Int("placeholders", n))
	}

	msgs := make([]llm.Message, 0, b.history.Len(id)+1)
	if b.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: b.systemPrompt})
	}
	msgs = append(msgs, history.ToMessages(b.history.Get(id))...)

	start := time.Now()
	resp, err := b.llm.Generate(ctx, msgs)
	metrics.RecordLLM("reply", err == nil, time.Since(start).Seconds())
	if err == nil && resp.Blocked {
		b.resetBlocked(log, id)
		return outcome{action: actionReset}
	}
	content := strings.TrimSpace(resp.Content)
	if err == nil && content == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		log.Error("reply generation failed", zap.Error(err))
		b.send(ctx, log, platform.OutgoingMessage{ThreadID: ev.ThreadID, Text: apologyMessage})
		return outcome{action: policy.ActionReply.String(), response: apologyMessage}
	}
	log.Debug("reply generated",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens))

	if err := b.typeFor(ctx, log, ev.ThreadID, b.policy.TypingDelay(len([]rune(content)))); err != nil {
		return outcome{action: policy.ActionReply.String(), err: err}
	}

	msg := platform.OutgoingMessage{ThreadID: ev.ThreadID, Text: content}
	tagged := b.policy.ShouldTag(ev.IsGroup)
	if tagged {
		msg.ReplyTo = ev.MessageID
		msg.Mention = &platform.Mention{UserID: ev.SenderID, Name: ev.SenderName}
	}
	if b.send(ctx, log, msg) {
		b.history.AppendAssistant(id, content)
	}
	return outcome{action: policy.ActionReply.String(), response: content, tagged: tagged}
}

// typeFor keeps the typing indicator alive for d.
func (b *Bot) typeFor(ctx context.Context, log *zap.Logger, threadID string, d time.Duration) error {
	for remaining := d; ; {
		if err := b.messenger.SendTyping(ctx, threadID); err != nil {
			metrics.OutboundErrors.WithLabelValues("typing").Inc()
			log.Debug("typing indicator failed", zap.Error(err))
		}
		step := min(remaining, typingRefresh)
		if err := b.sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
		if remaining <= 0 {
			return nil
		}
	}
}

// send reports whether the platform accepted the message.
func (b *Bot) send(ctx context.Context, log *zap.Logger, msg platform.OutgoingMessage) bool {
	if err := b.messenger.SendText(ctx, msg); err != nil {
		metrics.OutboundErrors.WithLabelValues("send").Inc()
		log.Warn("send failed", zap.Error(err))
		return false
	}
	return true
}

func (b *Bot) resetBlocked(log *zap.Logger, id string) {
	metrics.HistoryResets.WithLabelValues("blocked").Inc()
	log.Warn("content blocked by provider, resetting history")
	if err := b.history.Reset(id); err != nil {
		log.Error("history reset failed", zap.Error(err))
	}
}

func (b *Bot) persist(log *zap.Logger, id string) {
	if n := b.history.Trim(id); n > 0 {
		log.Debug("history trimmed", zap.Int("dropped", n))
	}
	if err := b.history.Save(); err != nil {
		log.Error("history snapshot failed", zap.Error(err))
	}
}

func (b *Bot) finish(log *zap.Logger, task queue.Task, text string, out outcome) {
	ev := task.Event
	metrics.ActionsTotal.WithLabelValues(out.action).Inc()
	log.Info("task processed",
		zap.String("action", out.action),
		zap.Bool("tagged", out.tagged),
		zap.Duration("waited", b.now().Sub(task.EnqueuedAt)))

	if b.recorder != nil {
		rec := storage.Event{
			Timestamp:         b.now().UTC(),
			ConversationID:    task.ConversationID,
			SenderID:          ev.SenderID,
			Action:            out.action,
			UserMessage:       text,
			AssistantResponse: out.response,
			Emoji:             out.emoji,
			Tagged:            out.tagged,
		}
		if err := b.recorder.AppendInteraction(rec); err != nil {
			log.Warn("interaction log append failed", zap.Error(err))
		}
	}

	o := events.Outcome{
		TaskID:         task.ID,
		ConversationID: task.ConversationID,
		SenderID:       ev.SenderID,
		MessageID:      ev.MessageID,
		Action:         out.action,
		Tagged:         out.tagged,
		Emoji:          out.emoji,
		Timestamp:      b.now().UTC(),
	}
	if out.err != nil {
		o.Error = out.err.Error()
	}
	if err := b.publisher.Publish(o); err != nil {
		log.Warn("outcome publish failed", zap.Error(err))
	}
}
