package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/reliability"
)

// OpenAIClient talks to an OpenAI-compatible API and covers all three
// capabilities: chat completion, the moderations endpoint, and
// embeddings.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	chatModel  string
	embedModel string
	dim        int
	client     *http.Client
}

func NewOpenAIClient(apiKey, baseURL, chatModel, embedModel string, embeddingDim int) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		dim:        embeddingDim,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *OpenAIClient) Generate(ctx context.Context, systemPersona string, turns []TurnMessage, newMessage string) (string, error) {
	msgs := make([]chatMessage, 0, len(turns)+2)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPersona})
	for _, t := range turns {
		role := "user"
		if t.Role == "companion" || t.Role == "assistant" {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: newMessage})

	payload := map[string]any{
		"model":       c.chatModel,
		"max_tokens":  1024,
		"temperature": 0.9,
		"messages":    msgs,
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &Error{Provider: "openai", Message: "no completion choices", Retryable: true}
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Provider: "openai", Message: "empty completion", Retryable: true}
	}
	return text, nil
}

func (c *OpenAIClient) Classify(ctx context.Context, text string) (Verdict, error) {
	payload := map[string]any{"input": text}

	var out struct {
		Results []struct {
			Flagged    bool            `json:"flagged"`
			Categories map[string]bool `json:"categories"`
		} `json:"results"`
	}
	if err := c.postJSON(ctx, "/moderations", payload, &out); err != nil {
		return Verdict{}, err
	}
	if len(out.Results) == 0 {
		return Verdict{}, &Error{Provider: "openai", Message: "empty moderation result", Retryable: true}
	}

	r := out.Results[0]
	if !r.Flagged {
		return Verdict{Allowed: true}, nil
	}
	reason := "policy"
	for category, hit := range r.Categories {
		if hit {
			reason = category
			break
		}
	}
	return Verdict{Allowed: false, Reason: reason}, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model": c.embedModel,
		"input": text,
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/embeddings", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, &Error{Provider: "openai", Message: "empty embedding result", Retryable: true}
	}
	emb := out.Data[0].Embedding
	if len(emb) != c.dim {
		return nil, &Error{
			Provider: "openai",
			Message:  fmt.Sprintf("embedding dim %d does not match deployment dim %d", len(emb), c.dim),
		}
	}
	return emb, nil
}

func (c *OpenAIClient) Dimensions() int { return c.dim }

func (c *OpenAIClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return mapCallError("openai", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &Error{
			Provider:   "openai",
			StatusCode: res.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return mapCallError("openai", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
