package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ErrMissingField is returned when a required key is absent from the params file.
var ErrMissingField = errors.New("missing required field")

// ConfigError reports a params file that could not be read, parsed or mapped.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config file %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LLMConfig holds the settings for the chat completion endpoint.
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Provider    string  `json:"provider,omitempty"` // "openai" (default) or "ollama"
}

// ServerParams describes how to launch a stdio MCP server.
type ServerParams struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
}

// BridgeConfig is the top-level params file.
type BridgeConfig struct {
	LLMConfig       LLMConfig         `json:"llm_config"`
	MCPServerParams *ServerParams     `json:"mcp_server_params,omitempty"`
	MCPSSEURL       string            `json:"mcp_sse_url,omitempty"`
	MCPSSEAPIKey    string            `json:"mcp_sse_api_key,omitempty"`
	MCPSSEHeaders   map[string]string `json:"mcp_sse_headers,omitempty"`
	SystemPrompt    string            `json:"system_prompt,omitempty"`
}

// SSEHeaders returns the headers sent with every SSE request, or nil if none are configured.
// The API key becomes a bearer Authorization header and overrides one given in mcp_sse_headers.
func (c *BridgeConfig) SSEHeaders() map[string]string {
	if len(c.MCPSSEHeaders) == 0 && c.MCPSSEAPIKey == "" {
		return nil
	}
	headers := make(map[string]string, len(c.MCPSSEHeaders)+1)
	for k, v := range c.MCPSSEHeaders {
		headers[k] = v
	}
	if c.MCPSSEAPIKey != "" {
		headers["Authorization"] = "Bearer " + c.MCPSSEAPIKey
	}
	return headers
}

// Load reads the params file at path. Comments and trailing commas are stripped before
// parsing, and raw control characters inside strings are accepted.
func Load(path string) (*BridgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(escapeControlChars(Normalize(string(data)))), &raw); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to parse config file: %w", err)}
	}

	config, err := fromMap(raw)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return config, nil
}

func fromMap(raw map[string]interface{}) (*BridgeConfig, error) {
	llmRaw, ok := raw["llm_config"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: llm_config", ErrMissingField)
	}
	for _, key := range []string{"api_key", "model"} {
		if _, ok := llmRaw[key]; !ok {
			return nil, fmt.Errorf("%w: llm_config.%s", ErrMissingField, key)
		}
	}

	config := &BridgeConfig{
		LLMConfig: LLMConfig{
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Provider:    ProviderOpenAI,
		},
	}
	if err := decode(raw, config); err != nil {
		return nil, fmt.Errorf("failed to map config: %w", err)
	}
	if config.LLMConfig.Provider == "" {
		config.LLMConfig.Provider = ProviderOpenAI
	}
	return config, nil
}

func decode(input interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "json",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
