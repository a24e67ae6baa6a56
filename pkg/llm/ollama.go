package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kiosk404/mcp-llm-bridge/pkg/config"
	"github.com/ollama/ollama/api"
)

const toolTypeFunction = "function"

type ollamaChatter interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// Ollama talks to an Ollama server. BaseURL overrides OLLAMA_HOST.
type Ollama struct {
	client      ollamaChatter
	model       string
	temperature float64
	maxTokens   int
}

func NewOllama(cfg config.LLMConfig) (*Ollama, error) {
	var (
		client *api.Client
		err    error
	)
	if cfg.BaseURL != "" {
		base, parseErr := url.Parse(cfg.BaseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid ollama base url: %w", parseErr)
		}
		client = api.NewClient(base, http.DefaultClient)
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama client: %w", err)
		}
	}
	return &Ollama{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (o *Ollama) Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error) {
	conversation, err := toOllamaMessages(messages)
	if err != nil {
		return nil, err
	}

	// Disable streaming, the bridge only prints the final reply
	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: conversation,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": o.temperature,
			"num_predict": o.maxTokens,
		},
	}
	for _, tool := range tools {
		req.Tools = append(req.Tools, api.Tool{
			Type: toolTypeFunction,
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  convertToOllamaParameters(tool.Parameters),
			},
		})
	}

	var (
		reply  api.Message
		reason string
		got    bool
	)
	respFunc := func(resp api.ChatResponse) error {
		reply = resp.Message
		reason = resp.DoneReason
		got = true
		return nil
	}
	if err := o.client.Chat(ctx, req, respFunc); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if !got {
		return nil, fmt.Errorf("%w: empty chat response", ErrInvalidResponse)
	}

	message := Message{Role: reply.Role, Content: reply.Content}
	if message.Role == "" {
		message.Role = RoleAssistant
	}
	for _, call := range reply.ToolCalls {
		args, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("ollama: encode tool arguments: %w", err)
		}
		message.ToolCalls = append(message.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: string(args),
		})
	}

	return &Response{
		Message:      message,
		FinishReason: reason,
		IsToolCall:   len(message.ToolCalls) > 0,
	}, nil
}

func toOllamaMessages(messages []Message) ([]api.Message, error) {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolName:   m.ToolName,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			toolCall := api.ToolCall{ID: call.ID}
			toolCall.Function.Name = call.Name
			if call.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Arguments), &toolCall.Function.Arguments); err != nil {
					return nil, fmt.Errorf("ollama: decode tool arguments for %s: %w", call.Name, err)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, toolCall)
		}
		out = append(out, msg)
	}
	return out, nil
}

func convertToOllamaParameters(inputSchema interface{}) api.ToolFunctionParameters {
	var params api.ToolFunctionParameters

	data, err := json.Marshal(inputSchema)
	if err != nil {
		return api.ToolFunctionParameters{
			Type:       "object",
			Properties: make(map[string]api.ToolProperty),
		}
	}

	if err := json.Unmarshal(data, &params); err != nil {
		return api.ToolFunctionParameters{
			Type:       "object",
			Properties: make(map[string]api.ToolProperty),
		}
	}

	return params
}
