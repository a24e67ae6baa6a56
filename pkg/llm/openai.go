package llm

import (
	"context"
	"fmt"

	"github.com/kiosk404/mcp-llm-bridge/pkg/config"
	"github.com/sashabaranov/go-openai"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      chatCompleter
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAI(cfg config.LLMConfig) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

func (o *OpenAI) Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
	for _, tool := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	completion, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return NewResponse(completion)
}

// NewResponse wraps the first choice of completion. A completion without choices is
// rejected before any choice is read.
func NewResponse(completion openai.ChatCompletionResponse) (*Response, error) {
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion has no choices", ErrInvalidResponse)
	}
	choice := completion.Choices[0]

	message := Message{
		Role:    choice.Message.Role,
		Content: choice.Message.Content,
	}
	if message.Role == "" {
		message.Role = RoleAssistant
	}
	for _, call := range choice.Message.ToolCalls {
		message.ToolCalls = append(message.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	return &Response{
		Message:      message,
		FinishReason: string(choice.FinishReason),
		IsToolCall:   choice.FinishReason == openai.FinishReasonToolCalls,
	}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}
