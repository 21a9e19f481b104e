package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recipe-analyzer/internal/core/ai/provider"

	goopenai "github.com/sashabaranov/go-openai"
)

// Client 以 go-openai 實作的提供者
type Client struct {
	api    *goopenai.Client
	config provider.Config
}

// NewClient 創建客戶端，BaseURL 為空時使用 OpenAI 官方端點
func NewClient(cfg provider.Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Client{
		api:    goopenai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// Generate 送出一次 chat completion 請求
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if c.config.APIKey == "" {
		return nil, provider.ErrMissingAPIKey
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Stop:        req.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, provider.ErrEmptyResponse
	}

	model := resp.Model
	if model == "" {
		model = c.config.Model
	}
	return &provider.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage: provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// GetModel 獲取模型名稱
func (c *Client) GetModel() string {
	return c.config.Model
}

// GetTimeout 獲取請求超時時間
func (c *Client) GetTimeout() time.Duration {
	return c.config.Timeout
}

// Close go-openai 沒有需要釋放的資源
func (c *Client) Close() error {
	return nil
}
