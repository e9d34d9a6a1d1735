package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"replybot/internal/scheduler"
)

// ErrInvalid marks configuration problems that must stop the process.
var ErrInvalid = errors.New("invalid configuration")

type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
)

type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderYandex    LLMProvider = "yandex"
)

// DefaultModel is used when MODEL is not set.
func DefaultModel(p LLMProvider) string {
	switch p {
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderYandex:
		return YandexModel
	default:
		return "gpt-4o-mini"
	}
}

// YandexModel is the only model the YandexGPT client can address.
const YandexModel = "yandexgpt-lite"

const (
	DecisionRandom = "random"
	DecisionModel  = "model"
)

// Config is filled in three layers: Defaults, then the optional persona YAML
// file, then the environment. Fields without envDefault keep the value of the
// previous layer when the variable is unset.
type Config struct {
	Platform         Platform `env:"PLATFORM" yaml:"platform"`
	TelegramBotToken string   `env:"TELEGRAM_BOT_TOKEN" yaml:"-"`
	DiscordBotToken  string   `env:"DISCORD_BOT_TOKEN" yaml:"-"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" yaml:"llm_provider"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY" yaml:"-"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL" yaml:"openai_base_url"`
	Model            string      `env:"MODEL" yaml:"model"`
	FilterModel      string      `env:"FILTER_MODEL" yaml:"filter_model"`
	AnthropicAPIKey  string      `env:"ANTHROPIC_API_KEY" yaml:"-"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN" yaml:"-"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID" yaml:"yandex_folder_id"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER" yaml:"openrouter_referrer"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE" yaml:"openrouter_title"`

	// Persona
	BotName          string   `env:"BOT_NAME" yaml:"bot_name"`
	Handles          []string `env:"BOT_HANDLES" envSeparator:"," yaml:"handles"`
	SystemPrompt     string   `env:"SYSTEM_PROMPT" yaml:"system_prompt"`
	SystemPromptPath string   `env:"SYSTEM_PROMPT_PATH" yaml:"system_prompt_path"`
	Emojis           []string `env:"REACTION_EMOJIS" envSeparator:"," yaml:"emojis"`

	// Reply policy
	DecisionMode      string  `env:"DECISION_MODE" yaml:"decision_mode"`
	WeightReply       float64 `env:"WEIGHT_REPLY" yaml:"weight_reply"`
	WeightReact       float64 `env:"WEIGHT_REACT" yaml:"weight_react"`
	TagProbability    float64 `env:"TAG_PROBABILITY" yaml:"tag_probability"`
	ForceTagInGroups  bool    `env:"FORCE_TAG_IN_GROUPS" yaml:"force_tag_in_groups"`
	ContextWindow     int     `env:"CONTEXT_WINDOW" yaml:"context_window"`
	ClassifierHistory int     `env:"CLASSIFIER_HISTORY" yaml:"classifier_history"`

	// Pacing, milliseconds
	QueueDelayMinMS int `env:"QUEUE_DELAY_MIN_MS" yaml:"queue_delay_min_ms"`
	QueueDelayMaxMS int `env:"QUEUE_DELAY_MAX_MS" yaml:"queue_delay_max_ms"`
	ReactBaseMS     int `env:"REACT_BASE_MS" yaml:"react_base_ms"`
	ReactJitterMS   int `env:"REACT_JITTER_MS" yaml:"react_jitter_ms"`
	TypingBaseMS    int `env:"TYPING_BASE_MS" yaml:"typing_base_ms"`
	TypingJitterMS  int `env:"TYPING_JITTER_MS" yaml:"typing_jitter_ms"`
	TypingPerCharMS int `env:"TYPING_PER_CHAR_MS" yaml:"typing_per_char_ms"`
	TypingMaxMS     int `env:"TYPING_MAX_MS" yaml:"typing_max_ms"`

	// Admins
	AdminIDs      []string `env:"ADMIN_IDS" envSeparator:"," yaml:"admin_ids"`
	AdminFilePath string   `env:"ADMIN_FILE_PATH" yaml:"admin_file_path"`

	// Listener
	SelfListen bool `env:"SELF_LISTEN" yaml:"self_listen"`

	// HTTP
	HTTPPort       int  `env:"HTTP_PORT" yaml:"http_port"`
	MetricsEnabled bool `env:"METRICS_ENABLED" yaml:"metrics_enabled"`

	// Storage
	SnapshotPath       string `env:"SNAPSHOT_PATH" yaml:"snapshot_path"`
	InteractionLogPath string `env:"INTERACTION_LOG_PATH" yaml:"interaction_log_path"`

	// Reports
	ReportCron        string `env:"REPORT_CRON" yaml:"report_cron"`
	AdminReportThread string `env:"ADMIN_REPORT_THREAD" yaml:"admin_report_thread"`

	// Event bus
	NATSURL     string `env:"NATS_URL" yaml:"nats_url"`
	NATSSubject string `env:"NATS_SUBJECT" yaml:"nats_subject"`

	LogLevel string `env:"LOG_LEVEL" yaml:"log_level"`
	Env      string `env:"ENV" yaml:"-"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Platform:           PlatformTelegram,
		LLMProvider:        ProviderOpenAI,
		BotName:            "Mira",
		Emojis:             []string{"👍", "❤", "😂", "😮", "🔥"},
		DecisionMode:       DecisionRandom,
		WeightReply:        0.6,
		WeightReact:        0.25,
		TagProbability:     0.3,
		ForceTagInGroups:   true,
		ContextWindow:      10,
		ClassifierHistory:  6,
		QueueDelayMinMS:    1500,
		QueueDelayMaxMS:    4000,
		ReactBaseMS:        800,
		ReactJitterMS:      1500,
		TypingBaseMS:       1000,
		TypingJitterMS:     1500,
		TypingPerCharMS:    45,
		TypingMaxMS:        15000,
		HTTPPort:           8080,
		SnapshotPath:       "data/history.json",
		InteractionLogPath: "logs/interactions.jsonl",
		ReportCron:         "0 21 * * *",
		NATSSubject:        "replybot.outcomes",
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults, the persona file named by
// PERSONA_FILE and the environment, then validates it.
func Load() (*Config, error) {
	cfg, err := LoadUnvalidated()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated layers the sources like Load but skips Validate. Offline
// commands use it since they need no platform token.
func LoadUnvalidated() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("PERSONA_FILE"); path != "" {
		if err := cfg.MergeYAMLFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.LLMProvider)
	}
	if err := cfg.resolveSystemPrompt(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeYAMLFile overlays the fields present in a YAML persona file.
func (c *Config) MergeYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read persona file %s: %v", ErrInvalid, path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse persona file %s: %v", ErrInvalid, path, err)
	}
	return nil
}

func (c *Config) resolveSystemPrompt() error {
	if strings.TrimSpace(c.SystemPrompt) != "" || c.SystemPromptPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.SystemPromptPath)
	if err != nil {
		return fmt.Errorf("%w: read system prompt %s: %v", ErrInvalid, c.SystemPromptPath, err)
	}
	c.SystemPrompt = strings.TrimSpace(string(data))
	return nil
}

// Validate checks the settings a running bot depends on.
func (c *Config) Validate() error {
	var problems []string
	switch c.Platform {
	case PlatformTelegram:
		if c.TelegramBotToken == "" {
			problems = append(problems, "TELEGRAM_BOT_TOKEN is required for the telegram platform")
		}
	case PlatformDiscord:
		if c.DiscordBotToken == "" {
			problems = append(problems, "DISCORD_BOT_TOKEN is required for the discord platform")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown platform %q", c.Platform))
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic, ProviderYandex:
		problems = append(problems, c.modelProblems()...)
	default:
		problems = append(problems, fmt.Sprintf("unknown llm provider %q", c.LLMProvider))
	}
	if c.DecisionMode != DecisionRandom && c.DecisionMode != DecisionModel {
		problems = append(problems, fmt.Sprintf("unknown decision mode %q", c.DecisionMode))
	}
	if c.WeightReply < 0 || c.WeightReact < 0 || c.WeightReply+c.WeightReact > 1 {
		problems = append(problems, "reply/react weights must be non-negative and sum to at most 1")
	}
	if c.TagProbability < 0 || c.TagProbability > 1 {
		problems = append(problems, "TAG_PROBABILITY must be within [0,1]")
	}
	if c.ContextWindow < 1 {
		problems = append(problems, "CONTEXT_WINDOW must be at least 1")
	}
	if c.QueueDelayMinMS < 0 || c.QueueDelayMaxMS < c.QueueDelayMinMS {
		problems = append(problems, "queue delay range is not ordered")
	}
	if c.ReactBaseMS < 0 || c.ReactJitterMS < 0 || c.TypingBaseMS < 0 || c.TypingJitterMS < 0 || c.TypingPerCharMS < 0 {
		problems = append(problems, "pacing values must not be negative")
	}
	if len(c.Emojis) == 0 && c.WeightReact > 0 {
		problems = append(problems, "REACTION_EMOJIS must not be empty when reactions are enabled")
	}
	if strings.TrimSpace(c.BotName) == "" {
		problems = append(problems, "BOT_NAME is required")
	}
	if c.SnapshotPath == "" {
		problems = append(problems, "SNAPSHOT_PATH is required")
	}
	if err := scheduler.Validate(c.ReportCron); err != nil {
		problems = append(problems, fmt.Sprintf("REPORT_CRON %q: %v", c.ReportCron, err))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) modelProblems() []string {
	if c.Model == "" {
		return []string{"MODEL is required"}
	}
	var problems []string
	for name, model := range map[string]string{"MODEL": c.Model, "FILTER_MODEL": c.FilterModel} {
		if model == "" {
			continue
		}
		switch c.LLMProvider {
		case ProviderAnthropic:
			if !strings.HasPrefix(model, "claude") {
				problems = append(problems, fmt.Sprintf("%s %q is not an anthropic model", name, model))
			}
		case ProviderYandex:
			if model != YandexModel {
				problems = append(problems, fmt.Sprintf("%s %q is not supported, the yandex client only serves %s", name, model, YandexModel))
			}
		}
	}
	sort.Strings(problems)
	return problems
}

// Development reports whether ENV asks for developer-friendly logging.
func (c *Config) Development() bool { return c.Env == "development" }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// QueueDelay returns the bounds of the pause inserted between two tasks of
// one conversation.
func (c *Config) QueueDelay() (time.Duration, time.Duration) {
	return ms(c.QueueDelayMinMS), ms(c.QueueDelayMaxMS)
}

func (c *Config) ReactDelay() (base, jitter time.Duration) {
	return ms(c.ReactBaseMS), ms(c.ReactJitterMS)
}

func (c *Config) TypingDelay() (base, jitter, perChar, ceiling time.Duration) {
	return ms(c.TypingBaseMS), ms(c.TypingJitterMS), ms(c.TypingPerCharMS), ms(c.TypingMaxMS)
}
