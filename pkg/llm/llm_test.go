package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/kiosk404/mcp-llm-bridge/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	requests  [][]Message
	tools     [][]Tool
	responses []*Response
	err       error
}

func (f *fakeCompleter) Complete(_ context.Context, messages []Message, tools []Tool) (*Response, error) {
	f.requests = append(f.requests, append([]Message(nil), messages...))
	f.tools = append(f.tools, tools)
	if f.err != nil {
		return nil, f.err
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func TestClient_InvokeWithPrompt(t *testing.T) {
	completer := &fakeCompleter{responses: []*Response{
		{Message: Message{Role: RoleAssistant, Content: "hi there"}, FinishReason: "stop"},
	}}
	client := NewClient(completer, "You are terse.")
	client.SetTools([]Tool{{Name: "search"}})

	resp, err := client.InvokeWithPrompt(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content())
	assert.False(t, resp.IsToolCall)

	require.Len(t, completer.requests, 1)
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "You are terse."},
		{Role: RoleUser, Content: "hello"},
	}, completer.requests[0])
	assert.Equal(t, []Tool{{Name: "search"}}, completer.tools[0])

	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}, client.Messages())
}

func TestClient_InvokeWithToolResults(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "search", Arguments: `{"q":"go"}`}
	completer := &fakeCompleter{responses: []*Response{
		{Message: Message{Role: RoleAssistant, ToolCalls: []ToolCall{call}}, IsToolCall: true},
		{Message: Message{Role: RoleAssistant, Content: "found it"}},
	}}
	client := NewClient(completer, "")

	resp, err := client.InvokeWithPrompt(context.Background(), "find go")
	require.NoError(t, err)
	require.True(t, resp.IsToolCall)

	resp, err = client.Invoke(context.Background(), []ToolResult{
		{ToolCallID: "call_1", ToolName: "search", Output: "golang.org"},
	})
	require.NoError(t, err)
	assert.Equal(t, "found it", resp.Content())

	require.Len(t, completer.requests, 2)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "find go"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
		{Role: RoleTool, Content: "golang.org", ToolCallID: "call_1", ToolName: "search"},
	}, completer.requests[1])
}

func TestClient_InvokeError(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("connection refused")}
	client := NewClient(completer, "")

	_, err := client.InvokeWithPrompt(context.Background(), "hello")
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hello"}}, client.Messages())
}

func TestClient_Truncate(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "search", Arguments: `{}`}
	completer := &fakeCompleter{responses: []*Response{
		{Message: Message{Role: RoleAssistant, Content: "hi"}},
		{Message: Message{Role: RoleAssistant, ToolCalls: []ToolCall{call}}, IsToolCall: true},
		{Message: Message{Role: RoleAssistant, Content: "again"}},
	}}
	client := NewClient(completer, "")

	_, err := client.InvokeWithPrompt(context.Background(), "hello")
	require.NoError(t, err)
	mark := len(client.Messages())

	_, err = client.InvokeWithPrompt(context.Background(), "search")
	require.NoError(t, err)
	require.Len(t, client.Messages(), 4)

	client.Truncate(mark)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	}, client.Messages())

	client.Truncate(10)
	client.Truncate(-1)
	assert.Len(t, client.Messages(), 2)

	_, err = client.InvokeWithPrompt(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleUser, Content: "again"},
	}, completer.requests[2])
}

func TestNewCompleter(t *testing.T) {
	completer, err := NewCompleter(config.LLMConfig{APIKey: "k", Model: "m", Provider: config.ProviderOpenAI})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, completer)

	completer, err = NewCompleter(config.LLMConfig{Model: "m", Provider: config.ProviderOllama, BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, completer)

	_, err = NewCompleter(config.LLMConfig{Model: "m", Provider: "bard"})
	assert.Error(t, err)
}
