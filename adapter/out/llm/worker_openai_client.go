package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"campaign_sync/core/domain"
	"campaign_sync/pkg/httputil"
)

const DefaultModel = "gpt-4o-mini"

// Client implements out.ReplyClassifier with an OpenAI chat model.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

type ClientConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

func NewClientWithConfig(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 64
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = cfg.HTTPClient
	if oc.HTTPClient == nil {
		oc.HTTPClient = httputil.OpenAIClient()
	}

	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
	}
}

func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// =============================================================================
// Reply classification
// =============================================================================

type replyClassification struct {
	Category string `json:"category"`
}

var replySystemPrompt = `You classify replies to outbound sales emails. Respond with JSON only.

Allowed categories: ` + strings.Join(domain.ReplyLabels, ", ") + `

Respond with this exact JSON format:
{"category": "<one allowed category>"}`

// ClassifyReply returns the raw label chosen by the model. The caller maps it
// onto the closed label set.
func (c *Client) ClassifyReply(ctx context.Context, subject, body string) (string, error) {
	userPrompt := fmt.Sprintf("Subject: %s\n\nReply:\n%s", subject, truncateBody(body, 2000))

	resp, err := c.CompleteWithSystem(ctx, replySystemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("classify reply: %w", err)
	}

	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return "", fmt.Errorf("classify reply: empty response")
	}

	var result replyClassification
	if err := json.Unmarshal([]byte(resp), &result); err != nil {
		// some models answer with the bare label
		return resp, nil
	}
	return result.Category, nil
}

func truncateBody(body string, maxLen int) string {
	runes := []rune(body)
	if len(runes) <= maxLen {
		return body
	}
	return string(runes[:maxLen]) + "..."
}
