// Package llm holds the chat history for one conversation and sends it to an
// OpenAI-compatible or Ollama endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiosk404/mcp-llm-bridge/pkg/config"
	"github.com/kiosk404/mcp-llm-bridge/pkg/logging"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"

	FinishReasonToolCalls = "tool_calls"
)

// ErrInvalidResponse is returned for completions that carry no choices.
var ErrInvalidResponse = errors.New("invalid LLM response")

var logger = logging.New("mcp_llm_bridge.llm_client")

type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// ToolCall is a function call requested by the model. Arguments is the raw JSON object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool describes a function the model may call. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolResult is the output of one tool call, sent back to the model.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Output     string
}

type Response struct {
	Message      Message
	FinishReason string
	IsToolCall   bool
}

func (r *Response) Content() string { return r.Message.Content }

func (r *Response) ToolCalls() []ToolCall { return r.Message.ToolCalls }

// Completer sends one chat request.
type Completer interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error)
}

// NewCompleter returns the completer for cfg.Provider.
func NewCompleter(cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case "", config.ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case config.ProviderOllama:
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// Client keeps the conversation and the tool list between invocations.
type Client struct {
	completer    Completer
	systemPrompt string
	tools        []Tool
	messages     []Message
}

func NewClient(completer Completer, systemPrompt string) *Client {
	return &Client{
		completer:    completer,
		systemPrompt: systemPrompt,
	}
}

func (c *Client) SetTools(tools []Tool) { c.tools = tools }

// Messages returns the conversation so far, without the system prompt.
func (c *Client) Messages() []Message { return c.messages }

// Truncate drops every message after the first n, undoing a turn that did not
// complete. The history must never end on an unanswered tool call.
func (c *Client) Truncate(n int) {
	if n >= 0 && n < len(c.messages) {
		c.messages = c.messages[:n]
	}
}

// InvokeWithPrompt appends a user message and asks the model for a reply.
func (c *Client) InvokeWithPrompt(ctx context.Context, prompt string) (*Response, error) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: prompt})
	return c.Invoke(ctx, nil)
}

// Invoke appends the tool results, if any, and asks the model for a reply. The
// reply is recorded in the conversation.
func (c *Client) Invoke(ctx context.Context, results []ToolResult) (*Response, error) {
	for _, result := range results {
		c.messages = append(c.messages, Message{
			Role:       RoleTool,
			Content:    result.Output,
			ToolCallID: result.ToolCallID,
			ToolName:   result.ToolName,
		})
	}

	messages := c.messages
	if c.systemPrompt != "" {
		messages = make([]Message, 0, len(c.messages)+1)
		messages = append(messages, Message{Role: RoleSystem, Content: c.systemPrompt})
		messages = append(messages, c.messages...)
	}

	logger.Debug("Sending messages to LLM", "messages", len(messages), "tools", len(c.tools))
	resp, err := c.completer.Complete(ctx, messages, c.tools)
	if err != nil {
		return nil, err
	}
	c.messages = append(c.messages, resp.Message)
	logger.Debug("Received response from LLM", "finish_reason", resp.FinishReason, "tool_calls", len(resp.Message.ToolCalls))
	return resp, nil
}
