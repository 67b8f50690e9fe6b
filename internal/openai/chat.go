package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tessera-ai/tessera/internal/resilience"
)

// DefaultChatModel is the model used for query analysis, rewriting, and
// answer generation.
const DefaultChatModel = "gpt-4o-mini"

// ChatAPI defines the interface for chat completions
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatClient wraps the OpenAI chat completions API. Requests run with
// temperature 0 so identical prompts produce stable output.
type ChatClient struct {
	api   ChatAPI
	model string
	exec  *resilience.Executor
}

type ChatConfig struct {
	APIKey     string
	Model      string
	Resilience resilience.Config
}

// NewChatClient creates a chat client with explicit configuration.
func NewChatClient(cfg ChatConfig) *ChatClient {
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatClient{
		api:   openai.NewClient(cfg.APIKey),
		model: model,
		exec:  resilience.NewExecutor(cfg.Resilience),
	}
}

// Complete sends a system+user prompt pair and returns the assistant text.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	if user == "" {
		return "", ErrEmptyText
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	var resp openai.ChatCompletionResponse
	err := c.exec.Execute(ctx, "openai.chat", func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: 0,
		})
		return callErr
	}, IsTransient)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
