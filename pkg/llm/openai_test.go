package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/kiosk404/mcp-llm-bridge/pkg/config"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatCompleter struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeChatCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestNewResponse_NoChoices(t *testing.T) {
	tests := []struct {
		name    string
		choices []openai.ChatCompletionChoice
	}{
		{name: "nil choices", choices: nil},
		{name: "empty choices", choices: []openai.ChatCompletionChoice{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewResponse(openai.ChatCompletionResponse{Choices: tt.choices})
			assert.ErrorIs(t, err, ErrInvalidResponse)
			assert.Nil(t, resp)
		})
	}
}

func TestNewResponse_ToolCalls(t *testing.T) {
	resp, err := NewResponse(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   "call_1",
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      "read_query",
						Arguments: `{"query":"SELECT 1"}`,
					},
				}},
			},
			FinishReason: openai.FinishReasonToolCalls,
		}},
	})
	require.NoError(t, err)

	assert.True(t, resp.IsToolCall)
	assert.Equal(t, FinishReasonToolCalls, resp.FinishReason)
	assert.Equal(t, []ToolCall{{ID: "call_1", Name: "read_query", Arguments: `{"query":"SELECT 1"}`}}, resp.ToolCalls())
}

func TestNewResponse_Text(t *testing.T) {
	resp, err := NewResponse(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "first"}, FinishReason: openai.FinishReasonStop},
			{Message: openai.ChatCompletionMessage{Content: "second"}},
		},
	})
	require.NoError(t, err)

	assert.False(t, resp.IsToolCall)
	assert.Equal(t, "first", resp.Content())
	assert.Equal(t, RoleAssistant, resp.Message.Role)
}

func TestOpenAI_Complete(t *testing.T) {
	fake := &fakeChatCompleter{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "done"},
			FinishReason: openai.FinishReasonStop,
		}},
	}}
	o := NewOpenAI(config.LLMConfig{APIKey: "k", Model: "gpt-4o", Temperature: 0.5, MaxTokens: 100})
	o.client = fake

	schema := map[string]interface{}{"type": "object"}
	resp, err := o.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "echo", Arguments: `{}`}}},
		{Role: RoleTool, Content: "out", ToolCallID: "c1"},
	}, []Tool{{Name: "echo", Description: "Echo", Parameters: schema}})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content())

	assert.Equal(t, "gpt-4o", fake.req.Model)
	assert.Equal(t, float32(0.5), fake.req.Temperature)
	assert.Equal(t, 100, fake.req.MaxTokens)

	require.Len(t, fake.req.Messages, 3)
	assert.Equal(t, "sys", fake.req.Messages[0].Content)
	require.Len(t, fake.req.Messages[1].ToolCalls, 1)
	assert.Equal(t, "echo", fake.req.Messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "c1", fake.req.Messages[2].ToolCallID)

	require.Len(t, fake.req.Tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, fake.req.Tools[0].Type)
	assert.Equal(t, "echo", fake.req.Tools[0].Function.Name)
	assert.Equal(t, schema, fake.req.Tools[0].Function.Parameters)
}

func TestOpenAI_CompleteError(t *testing.T) {
	o := NewOpenAI(config.LLMConfig{APIKey: "k", Model: "gpt-4o"})
	o.client = &fakeChatCompleter{err: errors.New("401 unauthorized")}

	_, err := o.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	assert.ErrorContains(t, err, "401 unauthorized")

	o.client = &fakeChatCompleter{}
	_, err = o.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
