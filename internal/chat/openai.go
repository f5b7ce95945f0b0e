package chat

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// OpenAIProvider serves gpt-* models.
type OpenAIProvider struct {
	client     openai.Client
	configured bool
}

// NewOpenAIProvider creates an OpenAI provider. baseURL may be empty.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	apiKey = strings.TrimSpace(apiKey)
	opts := []ooption.RequestOption{ooption.WithAPIKey(apiKey), ooption.WithMaxRetries(0)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), configured: apiKey != ""}
}

func (p *OpenAIProvider) Name() string       { return "openai" }
func (p *OpenAIProvider) Prefixes() []string { return []string{"gpt", "o1", "o3"} }
func (p *OpenAIProvider) Configured() bool   { return p.configured }

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, model, system string, messages []Message) (string, error) {
	if !p.configured {
		return "", ErrProviderNotConfigured
	}

	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		params = append(params, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(model),
		Messages:  params,
		MaxTokens: openai.Int(maxReplyTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
