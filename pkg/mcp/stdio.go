// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName      = "braid"
	clientVersion   = "0.1.0"
	protocolVersion = "2024-11-05"
)

// StdioConfig configures a subprocess-backed MCP server.
type StdioConfig struct {
	// Name identifies the server; defaults to the command.
	Name string

	// Command is the executable to run, e.g. "python" or "node".
	Command string

	// Args are passed to the command.
	Args []string

	// Env sets environment variables for the subprocess.
	Env map[string]string

	// Cwd records the configured working directory. It is not applied:
	// the subprocess always starts in the parent's working directory.
	Cwd string

	// Encoding is the text encoding of the wire; the MCP stdio
	// transport assumes UTF-8 and this field exists for parity with
	// server configurations that declare it.
	Encoding string

	// EncodingErrorPolicy is one of "strict", "ignore", "replace".
	EncodingErrorPolicy string

	// CacheToolsList enables the tool-list cache.
	CacheToolsList bool
}

// NewStdioServer creates a server over the stdio transport.
func NewStdioServer(cfg StdioConfig) (*Session, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp stdio: command is required")
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Command
	}
	return newSession(name, cfg.CacheToolsList, &stdioTransport{cfg: cfg}), nil
}

// stdioTransport runs the server as a subprocess through the mcp-go
// client.
type stdioTransport struct {
	cfg StdioConfig

	mu     sync.Mutex
	client *client.Client
}

func (t *stdioTransport) connect(ctx context.Context) (map[string]any, error) {
	mcpClient, err := client.NewStdioMCPClient(t.cfg.Command, envSlice(t.cfg.Env), t.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	initReq.Params.ProtocolVersion = protocolVersion

	initResp, err := mcpClient.Initialize(ctx, initReq)
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}

	t.mu.Lock()
	t.client = mcpClient
	t.mu.Unlock()

	return structToMap(initResp), nil
}

func (t *stdioTransport) listTools(ctx context.Context) ([]ToolInfo, error) {
	mcpClient := t.currentClient()
	if mcpClient == nil {
		return nil, ErrNotConnected
	}

	listResp, err := mcpClient.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	tools := make([]ToolInfo, 0, len(listResp.Tools))
	for _, mcpTool := range listResp.Tools {
		tools = append(tools, ToolInfo{
			Name:        mcpTool.Name,
			Description: mcpTool.Description,
			InputSchema: structToMap(mcpTool.InputSchema),
		})
	}
	return tools, nil
}

func (t *stdioTransport) callTool(ctx context.Context, name string, arguments map[string]any) (any, error) {
	mcpClient := t.currentClient()
	if mcpClient == nil {
		return nil, ErrNotConnected
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseCallResult(resp), nil
}

func (t *stdioTransport) close(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func (t *stdioTransport) currentClient() *client.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// parseCallResult reduces an MCP call result to the value handed to
// the model: the text content when there is one block, a list when
// there are several, or an error mapping.
func parseCallResult(resp *mcpgo.CallToolResult) any {
	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcpgo.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if resp.IsError {
		msg := "unknown error"
		if len(texts) > 0 {
			msg = texts[0]
		}
		return map[string]any{"error": msg}
	}

	switch len(texts) {
	case 0:
		return ""
	case 1:
		return texts[0]
	default:
		return texts
	}
}

// structToMap converts a typed wire struct to a plain map through a
// JSON round trip.
func structToMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}
