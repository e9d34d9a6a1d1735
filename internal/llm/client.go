package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	// Blocked is set when the provider stopped the turn on a content policy.
	Blocked bool
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

// splitSystem separates leading system messages, which some providers take
// as a dedicated parameter, from the conversation turns.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
