package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/reliability"
)

const anthropicMaxTokens = 1024

// AnthropicGenerator generates replies through the Anthropic Messages
// API. Generation only; moderation and embeddings come from elsewhere.
type AnthropicGenerator struct {
	client anthropic.Client
	model  string
}

func NewAnthropicGenerator(apiKey, model string) *AnthropicGenerator {
	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, systemPersona string, turns []TurnMessage, newMessage string) (string, error) {
	msgs := make([]anthropic.MessageParam, 0, len(turns)+1)
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if t.Role == "companion" || t.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(newMessage)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  msgs,
		System: []anthropic.TextBlockParam{
			{Text: systemPersona},
		},
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &Error{
				Provider:   "anthropic",
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Error(),
				Retryable:  reliability.IsRetryableHTTPStatus(apiErr.StatusCode),
			}
		}
		return "", mapCallError("anthropic", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", &Error{Provider: "anthropic", Message: "empty completion", Retryable: true}
	}
	return text, nil
}
