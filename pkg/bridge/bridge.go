// Package bridge relays tool calls made by the LLM to a single MCP server.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kiosk404/mcp-llm-bridge/pkg/config"
	"github.com/kiosk404/mcp-llm-bridge/pkg/llm"
	"github.com/kiosk404/mcp-llm-bridge/pkg/logging"
	"github.com/kiosk404/mcp-llm-bridge/pkg/mcp"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrUnknownTool is returned when the LLM calls a tool the MCP server never advertised.
var ErrUnknownTool = errors.New("unknown tool")

var logger = logging.New("mcp_llm_bridge.bridge")

// ToolServer is the MCP side of the bridge.
type ToolServer interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) (*sdk.ListToolsResult, error)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*sdk.CallToolResult, error)
	Close() error
}

// Bridge connects one LLM conversation with one MCP server.
type Bridge struct {
	tools ToolServer
	llm   *llm.Client
	names map[string]string // sanitized LLM name -> MCP tool name
}

// New builds the MCP client and the LLM client described by cfg. The SSE URL wins
// when both an SSE URL and server params are configured.
func New(cfg *config.BridgeConfig) (*Bridge, error) {
	mcpClient, err := mcp.NewClient(cfg.MCPServerParams, cfg.MCPSSEURL, cfg.SSEHeaders())
	if err != nil {
		return nil, err
	}
	completer, err := llm.NewCompleter(cfg.LLMConfig)
	if err != nil {
		return nil, err
	}
	return NewWith(mcpClient, llm.NewClient(completer, cfg.SystemPrompt)), nil
}

// NewWith builds a bridge over already constructed clients.
func NewWith(tools ToolServer, llmClient *llm.Client) *Bridge {
	return &Bridge{
		tools: tools,
		llm:   llmClient,
		names: make(map[string]string),
	}
}

// Initialize connects to the MCP server and registers its tools with the LLM.
func (b *Bridge) Initialize(ctx context.Context) error {
	if err := b.tools.Connect(ctx); err != nil {
		return err
	}

	result, err := b.tools.ListTools(ctx)
	if err != nil {
		return err
	}

	llmTools := make([]llm.Tool, 0, len(result.Tools))
	for _, tool := range result.Tools {
		name := sanitizeToolName(tool.Name)
		if existing, ok := b.names[name]; ok {
			logger.Warn(fmt.Sprintf("Skipping tool %s: name %s is already used by %s", tool.Name, name, existing))
			continue
		}
		b.names[name] = tool.Name
		llmTools = append(llmTools, llm.Tool{
			Name:        name,
			Description: tool.Description,
			Parameters:  convertInputSchema(tool.InputSchema),
		})
		logger.Debug("Registered tool", "name", tool.Name, "llm_name", name)
	}
	b.llm.SetTools(llmTools)
	logger.Info(fmt.Sprintf("Connected to MCP server with %d tools", len(llmTools)))
	return nil
}

// ProcessMessage sends text to the LLM and keeps relaying tool calls until the LLM
// answers with plain content. A failed turn is removed from the conversation so the
// next prompt starts from the last completed turn.
func (b *Bridge) ProcessMessage(ctx context.Context, text string) (reply string, err error) {
	mark := len(b.llm.Messages())
	defer func() {
		if err != nil {
			b.llm.Truncate(mark)
		}
	}()

	resp, err := b.llm.InvokeWithPrompt(ctx, text)
	if err != nil {
		return "", err
	}

	for resp.IsToolCall && len(resp.ToolCalls()) > 0 {
		logger.Debug("Processing tool calls", "count", len(resp.ToolCalls()))
		results, err := b.handleToolCalls(ctx, resp.ToolCalls())
		if err != nil {
			return "", err
		}
		if resp, err = b.llm.Invoke(ctx, results); err != nil {
			return "", err
		}
	}
	return resp.Content(), nil
}

func (b *Bridge) handleToolCalls(ctx context.Context, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		mcpName, ok := b.names[call.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		}

		arguments := map[string]interface{}{}
		if strings.TrimSpace(call.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &arguments); err != nil {
				return nil, fmt.Errorf("invalid arguments for tool %s: %w", call.Name, err)
			}
		}

		logger.Info(fmt.Sprintf("Calling tool %s", mcpName))
		result, err := b.tools.CallTool(ctx, mcpName, arguments)
		if err != nil {
			return nil, err
		}

		output := formatToolResult(result)
		logger.Debug("Tool output", "tool", mcpName, "output", truncateString(output, 500))
		results = append(results, llm.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Output:     output,
		})
	}
	return results, nil
}

// Close releases the MCP connection.
func (b *Bridge) Close() error {
	return b.tools.Close()
}

// Run initializes b, calls fn and closes b on every path, including a failed
// Initialize or a panic in fn.
func Run(ctx context.Context, b *Bridge, fn func(context.Context, *Bridge) error) (err error) {
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			logger.Error(fmt.Sprintf("Failed to close bridge: %v", closeErr))
			if err == nil {
				err = closeErr
			}
		}
	}()

	if err := b.Initialize(ctx); err != nil {
		return err
	}
	return fn(ctx, b)
}

func sanitizeToolName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func convertInputSchema(inputSchema interface{}) map[string]interface{} {
	params := map[string]interface{}{}
	if data, err := json.Marshal(inputSchema); err == nil {
		_ = json.Unmarshal(data, &params)
	}
	if _, ok := params["type"]; !ok {
		params["type"] = "object"
	}
	if _, ok := params["properties"]; !ok {
		params["properties"] = map[string]interface{}{}
	}
	return params
}
