package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2/clientcredentials"
)

const clientName = "autopay-agent"

// MCPConfig locates a payment provider's MCP endpoint. Token URL and client
// credentials are optional; without them requests are unauthenticated.
type MCPConfig struct {
	URL          string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Version      string
}

// MCPProvider exposes the tools of one MCP client session.
type MCPProvider struct {
	session *mcp.ClientSession
	logger  *slog.Logger
}

func NewMCPProvider(session *mcp.ClientSession, logger *slog.Logger) *MCPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPProvider{session: session, logger: logger.With("component", "mcp_provider")}
}

// DialMCP connects to cfg.URL over streamable HTTP, authenticating with the
// OAuth2 client-credentials grant when a token URL is configured.
func DialMCP(ctx context.Context, cfg MCPConfig, logger *slog.Logger) (*MCPProvider, error) {
	if cfg.URL == "" {
		return nil, errors.New("mcp url is required")
	}
	httpClient := http.DefaultClient
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// The token source outlives ctx, which only bounds the dial.
		httpClient = cc.Client(context.Background())
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: version}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect mcp %s: %w", cfg.URL, err)
	}
	return NewMCPProvider(session, logger), nil
}

func (p *MCPProvider) ListTools(ctx context.Context) ([]Tool, error) {
	var out []Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := p.session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, t := range res.Tools {
			if t == nil || t.Name == "" {
				continue
			}
			out = append(out, Tool{Name: t.Name, Description: t.Description, Schema: t.InputSchema})
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
	p.logger.Debug("mcp tools listed", "count", len(out))
	return out, nil
}

// CallTool invokes a tool on the session. The server name is informational:
// one session talks to one server. Tool-level errors become Go errors;
// structured content is preferred over text content.
func (p *MCPProvider) CallTool(ctx context.Context, server, tool string, params map[string]any) (any, error) {
	res, err := p.session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: params})
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", server, tool, err)
	}
	text := textContent(res)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, fmt.Errorf("%s/%s: %s", server, tool, text)
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	return text, nil
}

func (p *MCPProvider) Close() error {
	return p.session.Close()
}

func textContent(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
