package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"

	"github.com/kiosk404/mcp-llm-bridge/pkg/config"
	"github.com/kiosk404/mcp-llm-bridge/pkg/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	TransportSSE   = "sse"
	TransportStdio = "stdio"
)

var (
	ErrInvalidArgument  = errors.New("either stdio server params or an SSE URL must be provided")
	ErrNotConnected     = errors.New("not connected to MCP server")
	ErrAlreadyConnected = errors.New("already connected to MCP server")
	ErrClosed           = errors.New("MCP client is closed")
)

var logger = logging.New("mcp_llm_bridge.mcp_client")

// Session is the part of *mcp.ClientSession used by the bridge.
type Session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// StdioOpener builds the transport for a subprocess server.
type StdioOpener func(params *config.ServerParams) (mcp.Transport, func() error, error)

// SSEOpener builds the transport for an SSE server. The returned func releases the
// transport after the session is closed.
type SSEOpener func(url string, headers map[string]string) (mcp.Transport, func() error, error)

// Connector opens a session over transport and completes the initialize handshake.
type Connector func(ctx context.Context, transport mcp.Transport) (Session, error)

type Option func(*Client)

func WithStdioOpener(open StdioOpener) Option {
	return func(c *Client) { c.openStdio = open }
}

func WithSSEOpener(open SSEOpener) Option {
	return func(c *Client) { c.openSSE = open }
}

func WithConnector(connect Connector) Option {
	return func(c *Client) { c.connect = connect }
}

type state int

const (
	stateUnconnected state = iota
	stateConnected
	stateClosed
)

// Client owns a single connection to one MCP server, over stdio or SSE.
// It is not safe for concurrent use and cannot reconnect once closed.
type Client struct {
	serverParams *config.ServerParams
	sseURL       string
	sseHeaders   map[string]string

	openStdio StdioOpener
	openSSE   SSEOpener
	connect   Connector

	state          state
	session        Session
	closeTransport func() error
}

// NewClient creates a client for either a stdio server or an SSE endpoint.
// When both are given the SSE endpoint is used.
func NewClient(serverParams *config.ServerParams, sseURL string, sseHeaders map[string]string, opts ...Option) (*Client, error) {
	if serverParams == nil && sseURL == "" {
		return nil, ErrInvalidArgument
	}

	c := &Client{
		serverParams: serverParams,
		sseURL:       sseURL,
		sseHeaders:   sseHeaders,
		openStdio:    openStdio,
		openSSE:      openSSE,
		connect:      connect,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transport reports which transport Connect uses.
func (c *Client) Transport() string {
	if c.sseURL != "" {
		return TransportSSE
	}
	return TransportStdio
}

// Connect opens the transport, starts a session over it and performs the
// initialize handshake. It may only be called once.
func (c *Client) Connect(ctx context.Context) error {
	switch c.state {
	case stateConnected:
		return ErrAlreadyConnected
	case stateClosed:
		return ErrClosed
	}
	logger.Debug("Connecting to MCP server...")

	var (
		transport mcp.Transport
		release   func() error
		err       error
	)
	if c.sseURL != "" {
		logger.Debug("Using SSE transport", "url", c.sseURL)
		transport, release, err = c.openSSE(c.sseURL, c.sseHeaders)
	} else {
		logger.Debug("Using stdio transport", "command", c.serverParams.Command)
		transport, release, err = c.openStdio(c.serverParams)
	}
	if err != nil {
		c.state = stateClosed
		return fmt.Errorf("failed to open transport: %w", err)
	}

	session, err := c.connect(ctx, transport)
	if err != nil {
		c.state = stateClosed
		if release != nil {
			_ = release()
		}
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.session = session
	c.closeTransport = release
	c.state = stateConnected
	logger.Debug("Connected to MCP server successfully")
	return nil
}

// ListTools returns the tools advertised by the server.
func (c *Client) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	if c.state != stateConnected {
		return nil, ErrNotConnected
	}

	logger.Debug("Requesting available tools from MCP server")
	result, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	logger.Debug("Received tools from MCP server", "count", len(result.Tools))
	return result, nil
}

// CallTool calls the named tool with arguments and returns the server's result as is.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	if c.state != stateConnected {
		return nil, ErrNotConnected
	}

	logger.Debug("Calling MCP tool", "name", name, "arguments", arguments)
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}
	logger.Debug("Tool result", "is_error", result.IsError, "content_items", len(result.Content))
	return result, nil
}

// Close releases the session and then the transport underneath it. It is safe to
// call more than once.
func (c *Client) Close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed

	var errs []error
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
		c.session = nil
	}
	if c.closeTransport != nil {
		if err := c.closeTransport(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
		c.closeTransport = nil
	}
	return errors.Join(errs...)
}

func openStdio(params *config.ServerParams) (mcp.Transport, func() error, error) {
	if params.Command == "" {
		return nil, nil, fmt.Errorf("%w: empty server command", ErrInvalidArgument)
	}
	cmd := exec.Command(params.Command, params.Args...)
	cmd.Env = os.Environ()
	for k, v := range params.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Dir = params.Cwd

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	// The session owns the process: closing it closes stdin and reaps the child.
	return &mcp.CommandTransport{Command: cmd}, nil, nil
}

func openSSE(url string, headers map[string]string) (mcp.Transport, func() error, error) {
	httpClient := &http.Client{
		Transport: &headerTransport{
			Transport: http.DefaultTransport,
			Headers:   headers,
		},
	}
	release := func() error {
		httpClient.CloseIdleConnections()
		return nil
	}
	return &mcp.SSEClientTransport{Endpoint: url, HTTPClient: httpClient}, release, nil
}

func connect(ctx context.Context, transport mcp.Transport) (Session, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "mcp-llm-bridge",
		Version: "0.1.0",
	}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

type headerTransport struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.Headers) == 0 {
		return t.Transport.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return t.Transport.RoundTrip(req)
}
