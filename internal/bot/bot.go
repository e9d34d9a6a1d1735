// Package bot routes platform events into per-conversation queues and runs
// the reply decision for every queued message.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"replybot/internal/analytics"
	"replybot/internal/events"
	"replybot/internal/history"
	"replybot/internal/llm"
	"replybot/internal/platform"
	"replybot/internal/policy"
	"replybot/internal/queue"
	"replybot/internal/storage"
)

const (
	resetCommand   = "!history reset"
	resetConfirm   = "History cleared."
	apologyMessage = "Sorry, I can't answer right now. Try again a bit later."
)

// typingRefresh is how often the typing indicator is re-sent while the bot
// "types". Platforms expire the indicator after about five seconds.
const typingRefresh = 4 * time.Second

// Classifier decides whether and how the bot answers a message.
type Classifier interface {
	ShouldRespond(ctx context.Context, text string, recent []history.Exchange) (policy.Verdict, error)
	ChooseAction(ctx context.Context, text string, recent []history.Exchange) (policy.Action, error)
}

// Admins tells whether a sender may run admin commands.
type Admins interface {
	IsAllowed(id string) bool
}

type Options struct {
	Messenger  platform.Messenger
	History    *history.Store
	Classifier Classifier
	LLM        llm.Client
	Policy     *policy.Policy
	Admins     Admins

	// Recorder and Publisher are optional.
	Recorder  storage.Recorder
	Publisher events.Publisher

	BotName      string
	Handles      []string
	SystemPrompt string
	// ModelDecisions asks the classifier to pick the action instead of
	// drawing it from the policy weights.
	ModelDecisions    bool
	ClassifierHistory int
	SelfListen        bool
	ReportThread      string

	// QueueGap returns the pause between two tasks of one conversation.
	QueueGap func() time.Duration
	// Sleep replaces time-based waits in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time

	Logger *zap.Logger
}

type Bot struct {
	messenger  platform.Messenger
	history    *history.Store
	classifier Classifier
	llm        llm.Client
	policy     *policy.Policy
	admins     Admins
	recorder   storage.Recorder
	publisher  events.Publisher

	names             []string
	systemPrompt      string
	modelDecisions    bool
	classifierHistory int
	selfListen        bool
	reportThread      string

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	log   *zap.Logger

	dispatcher *queue.Dispatcher
	cancel     context.CancelFunc
}

func New(opts Options) (*Bot, error) {
	switch {
	case opts.Messenger == nil:
		return nil, errors.New("bot: messenger is required")
	case opts.History == nil:
		return nil, errors.New("bot: history store is required")
	case opts.Classifier == nil:
		return nil, errors.New("bot: classifier is required")
	case opts.LLM == nil:
		return nil, errors.New("bot: llm client is required")
	case opts.Policy == nil:
		return nil, errors.New("bot: policy is required")
	}
	if opts.Admins == nil {
		opts.Admins = noAdmins{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Sleep == nil {
		opts.Sleep = queue.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	b := &Bot{
		messenger:         opts.Messenger,
		history:           opts.History,
		classifier:        opts.Classifier,
		llm:               opts.LLM,
		policy:            opts.Policy,
		admins:            opts.Admins,
		recorder:          opts.Recorder,
		publisher:         opts.Publisher,
		names:             append([]string{opts.BotName}, opts.Handles...),
		systemPrompt:      opts.SystemPrompt,
		modelDecisions:    opts.ModelDecisions,
		classifierHistory: opts.ClassifierHistory,
		selfListen:        opts.SelfListen,
		reportThread:      opts.ReportThread,
		sleep:             opts.Sleep,
		now:               opts.Now,
		log:               opts.Logger,
	}

	// Tasks keep running on their own context so that stopping the listener
	// does not abort a reply halfway.
	taskCtx, cancel := context.WithCancel(context.Background())
	d, err := queue.New(taskCtx, queue.Options{
		Handler: b.process,
		Gap:     opts.QueueGap,
		Sleep:   opts.Sleep,
		Logger:  opts.Logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	b.dispatcher = d
	b.cancel = cancel
	return b, nil
}

// Run consumes platform events until ctx is done or the event stream ends.
func (b *Bot) Run(ctx context.Context) error {
	evs, err := b.messenger.Listen(ctx)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	b.log.Info("listening for events", zap.String("self_id", b.messenger.SelfID()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-evs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("event stream closed")
			}
			if err := b.HandleEvent(ev); err != nil {
				b.log.Warn("event not queued", zap.String("thread_id", ev.ThreadID), zap.Error(err))
			}
		}
	}
}

// HandleEvent filters an inbound event and queues it on its conversation.
// Dropped events return nil.
func (b *Bot) HandleEvent(ev platform.Event) error {
	if ev.Type != platform.EventMessage && ev.Type != platform.EventMessageReply {
		return nil
	}
	if ev.ThreadID == "" {
		return nil
	}
	if !b.selfListen && ev.SenderID != "" && ev.SenderID == b.messenger.SelfID() {
		return nil
	}
	task := queue.Task{ID: uuid.NewString(), Event: ev, EnqueuedAt: b.now()}
	b.log.Debug("event queued",
		zap.String("conversation_id", ev.ThreadID),
		zap.String("task_id", task.ID),
		zap.String("sender_id", ev.SenderID))
	return b.dispatcher.Enqueue(ev.ThreadID, task)
}

// Stats exposes the queue state per conversation.
func (b *Bot) Stats() []queue.Stats { return b.dispatcher.Stats() }

// Shutdown stops accepting events and waits for running tasks. Queued tasks
// that have not started are dropped.
func (b *Bot) Shutdown(ctx context.Context) error {
	err := b.dispatcher.Shutdown(ctx)
	b.cancel()
	return err
}

// Report summarises today's interactions and sends the summary to the
// report thread when one is configured.
func (b *Bot) Report(ctx context.Context) error {
	if b.recorder == nil {
		return errors.New("interaction log is not configured")
	}
	evs, err := b.recorder.LoadInteractions()
	if err != nil {
		return fmt.Errorf("load interactions: %w", err)
	}
	stats := analytics.AnalyzeDailyLogs(evs, b.now().UTC())
	summary := stats.GenerateReportSummary()
	b.log.Info("daily report",
		zap.String("date", stats.Date),
		zap.Int("messages", stats.TotalMessages),
		zap.Int("conversations", stats.UniqueConversations),
		zap.Any("actions", stats.Actions))

	if b.reportThread == "" {
		return nil
	}
	if err := b.messenger.SendText(ctx, platform.OutgoingMessage{ThreadID: b.reportThread, Text: summary}); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

type noAdmins struct{}

func (noAdmins) IsAllowed(string) bool { return false }
