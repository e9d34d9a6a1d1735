package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"replybot/internal/auth"
	"replybot/internal/bot"
	"replybot/internal/classifier"
	"replybot/internal/config"
	"replybot/internal/discord"
	"replybot/internal/events"
	"replybot/internal/history"
	"replybot/internal/llm"
	"replybot/internal/logger"
	"replybot/internal/platform"
	"replybot/internal/policy"
	"replybot/internal/scheduler"
	"replybot/internal/server"
	"replybot/internal/storage"
	"replybot/internal/telegram"
)

const shutdownTimeout = 30 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}
}

func runBot(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := history.NewStore(cfg.SnapshotPath, cfg.ContextWindow)
	if err := store.Load(); err != nil {
		return err
	}
	log.Info("history loaded", zap.Int("conversations", len(store.Conversations())))

	factory := llm.NewFactory(cfg)
	replyLLM, err := factory.CreateClient(cfg.Model)
	if err != nil {
		return fmt.Errorf("reply model: %w", err)
	}
	filterModel := cfg.FilterModel
	if filterModel == "" {
		filterModel = cfg.Model
	}
	filterLLM, err := factory.CreateClient(filterModel)
	if err != nil {
		return fmt.Errorf("filter model: %w", err)
	}

	admins, err := newAdmins(cfg)
	if err != nil {
		return err
	}

	rnd := policy.NewRand(uint64(time.Now().UnixNano()))
	reactBase, reactJitter := cfg.ReactDelay()
	typingBase, typingJitter, typingPerChar, typingMax := cfg.TypingDelay()
	pol, err := policy.New(policy.Config{
		Weights:          policy.Weights{React: cfg.WeightReact, Reply: cfg.WeightReply},
		Emojis:           cfg.Emojis,
		TagProbability:   cfg.TagProbability,
		ForceTagInGroups: cfg.ForceTagInGroups,
		ReactBase:        reactBase,
		ReactJitter:      reactJitter,
		TypingBase:       typingBase,
		TypingJitter:     typingJitter,
		TypingPerChar:    typingPerChar,
		TypingMax:        typingMax,
	}, rnd)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	var recorder storage.Recorder
	if cfg.InteractionLogPath != "" {
		fr, err := storage.NewFileRecorder(cfg.InteractionLogPath)
		if err != nil {
			log.Warn("interaction log disabled", zap.Error(err))
		} else {
			recorder = fr
		}
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		np, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, log)
		if err != nil {
			log.Warn("event bus disabled", zap.Error(err))
		} else {
			publisher = np
			defer np.Close()
		}
	}

	messenger, err := newMessenger(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = messenger.Close() }()

	gapMin, gapMax := cfg.QueueDelay()
	b, err := bot.New(bot.Options{
		Messenger:         messenger,
		History:           store,
		Classifier:        classifier.New(filterLLM, cfg.BotName),
		LLM:               replyLLM,
		Policy:            pol,
		Admins:            admins,
		Recorder:          recorder,
		Publisher:         publisher,
		BotName:           cfg.BotName,
		Handles:           cfg.Handles,
		SystemPrompt:      cfg.SystemPrompt,
		ModelDecisions:    cfg.DecisionMode == config.DecisionModel,
		ClassifierHistory: cfg.ClassifierHistory,
		SelfListen:        cfg.SelfListen,
		ReportThread:      cfg.AdminReportThread,
		QueueGap:          func() time.Duration { return policy.Uniform(rnd, gapMin, gapMax) },
		Logger:            log,
	})
	if err != nil {
		return err
	}

	if srv := server.New(server.Options{
		Port:           cfg.HTTPPort,
		BotName:        cfg.BotName,
		MetricsEnabled: cfg.MetricsEnabled,
		Logger:         log,
	}); srv != nil {
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error("http server failed", zap.Error(err))
			}
		}()
	}

	sched := scheduler.New(cfg.ReportCron, log)
	if recorder != nil {
		sched.SetReportFunction(b.Report)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	defer sched.Stop()

	log.Info("bot started",
		zap.String("platform", string(cfg.Platform)),
		zap.String("provider", string(cfg.LLMProvider)),
		zap.String("model", cfg.Model),
		zap.String("decision_mode", cfg.DecisionMode),
		zap.Bool("reports", sched.IsRunning()))

	runErr := b.Run(ctx)

	dropped := 0
	for _, st := range b.Stats() {
		dropped += st.Pending
	}
	if dropped > 0 {
		log.Warn("dropping queued messages on shutdown", zap.Int("pending", dropped))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown did not finish in time", zap.Error(err))
	}
	log.Info("bot stopped")
	return runErr
}

func newMessenger(cfg *config.Config, log *zap.Logger) (platform.Messenger, error) {
	switch cfg.Platform {
	case config.PlatformDiscord:
		m, err := discord.New(cfg.DiscordBotToken, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		m, err := telegram.New(cfg.TelegramBotToken, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func newAdmins(cfg *config.Config) (*auth.Service, error) {
	var repo auth.Repository
	if cfg.AdminFilePath != "" {
		fr, err := auth.NewFileRepository(cfg.AdminFilePath)
		if err != nil {
			return nil, fmt.Errorf("admin file: %w", err)
		}
		repo = fr
	}
	return auth.NewWithRepo(repo, cfg.AdminIDs)
}
