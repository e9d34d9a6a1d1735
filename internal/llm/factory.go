package llm

import (
	"fmt"
	"strings"

	"replybot/internal/config"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	Provider           config.LLMProvider
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenRouterReferrer string
	OpenRouterTitle    string
	AnthropicAPIKey    string
	YandexOAuthToken   string
	YandexFolderID     string
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		Provider:           cfg.LLMProvider,
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		AnthropicAPIKey:    cfg.AnthropicAPIKey,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
	}
}

// CreateClient returns a client for the configured provider and the given model.
func (f *Factory) CreateClient(model string) (Client, error) {
	switch config.LLMProvider(strings.ToLower(string(f.Provider))) {
	case config.ProviderOpenAI:
		return NewOpenAI(f.OpenaiAPIKey, f.OpenaiBaseURL, model, f.OpenRouterReferrer, f.OpenRouterTitle), nil
	case config.ProviderAnthropic:
		if f.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic api key is required")
		}
		return NewAnthropic(f.AnthropicAPIKey, model), nil
	case config.ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID, model)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", f.Provider)
	}
}
