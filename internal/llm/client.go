package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pos_data_layer/internal/config"

	openrouter "github.com/revrost/go-openrouter"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("assistant is not configured: set LLM_MODEL and LLM_API_KEY")
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Client wraps the OpenRouter chat API. A Client built from incomplete
// settings is valid but disabled; every call returns ErrNotConfigured.
type Client struct {
	client  *openrouter.Client
	model   string
	logger  *zap.Logger
	enabled bool
}

func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	model := strings.TrimSpace(cfg.LLMModel)
	apiKey := strings.TrimSpace(cfg.LLMAPIKey)

	if model == "" || apiKey == "" {
		logger.Debug("assistant disabled",
			zap.Bool("has_model", model != ""),
			zap.Bool("has_api_key", apiKey != ""),
		)
		return &Client{model: model, logger: logger}
	}

	clientCfg := openrouter.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.LLMBaseURL); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client:  openrouter.NewClientWithConfig(*clientCfg),
		model:   model,
		logger:  logger,
		enabled: true,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Chat sends the conversation with the given tools and returns the first
// choice's message.
func (c *Client) Chat(ctx context.Context, messages []openrouter.ChatCompletionMessage, tools []openrouter.Tool) (openrouter.ChatCompletionMessage, *openrouter.Usage, error) {
	if !c.Enabled() || c.client == nil {
		return openrouter.ChatCompletionMessage{}, nil, ErrNotConfigured
	}

	resp, err := c.client.CreateChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return openrouter.ChatCompletionMessage{}, nil, err
	}
	if resp.Usage != nil {
		c.logger.Info("llm usage",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
			zap.Float64("cost", resp.Usage.Cost),
		)
	}
	if len(resp.Choices) == 0 {
		return openrouter.ChatCompletionMessage{}, resp.Usage, ErrEmptyResponse
	}
	return resp.Choices[0].Message, resp.Usage, nil
}
