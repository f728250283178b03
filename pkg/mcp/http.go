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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/braid/pkg/httpclient"
)

const (
	// DefaultHTTPTimeout bounds the wait for each response's headers.
	DefaultHTTPTimeout = 5 * time.Second

	// DefaultEventReadTimeout bounds reading one SSE response,
	// accommodating long-running tool calls.
	DefaultEventReadTimeout = 300 * time.Second
)

// SSEConfig configures a server over the SSE transport.
type SSEConfig struct {
	// Name identifies the server; defaults to the URL.
	Name string

	// URL is the server endpoint.
	URL string

	// Headers are added to every request.
	Headers map[string]string

	// HTTPTimeout bounds the wait for each response's headers.
	// Default 5s.
	HTTPTimeout time.Duration

	// EventReadTimeout bounds reading one SSE response. Default 300s.
	EventReadTimeout time.Duration

	// CacheToolsList enables the tool-list cache.
	CacheToolsList bool
}

// NewSSEServer creates a server over the SSE transport.
func NewSSEServer(cfg SSEConfig) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mcp sse: url is required")
	}
	name := cfg.Name
	if name == "" {
		name = cfg.URL
	}
	return newSession(name, cfg.CacheToolsList, &httpTransport{
		name:             name,
		url:              cfg.URL,
		headers:          cfg.Headers,
		httpTimeout:      cfg.HTTPTimeout,
		eventReadTimeout: cfg.EventReadTimeout,
	}), nil
}

// StreamableHTTPConfig configures a server over the streamable-HTTP
// transport.
type StreamableHTTPConfig struct {
	Name             string
	URL              string
	Headers          map[string]string
	HTTPTimeout      time.Duration
	EventReadTimeout time.Duration

	// TerminateOnClose sends a session DELETE on cleanup.
	TerminateOnClose bool

	// CacheToolsList enables the tool-list cache.
	CacheToolsList bool
}

// NewStreamableHTTPServer creates a server over the streamable-HTTP
// transport.
func NewStreamableHTTPServer(cfg StreamableHTTPConfig) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mcp streamable-http: url is required")
	}
	name := cfg.Name
	if name == "" {
		name = cfg.URL
	}
	return newSession(name, cfg.CacheToolsList, &httpTransport{
		name:             name,
		url:              cfg.URL,
		headers:          cfg.Headers,
		httpTimeout:      cfg.HTTPTimeout,
		eventReadTimeout: cfg.EventReadTimeout,
		terminateOnClose: cfg.TerminateOnClose,
	}), nil
}

// httpTransport speaks JSON-RPC over HTTP for the sse and
// streamable-http transports. Responses may arrive as plain JSON or
// as an SSE stream carrying the JSON-RPC payload.
type httpTransport struct {
	name             string
	url              string
	headers          map[string]string
	httpTimeout      time.Duration
	eventReadTimeout time.Duration
	terminateOnClose bool

	client    *httpclient.Client
	requestID atomic.Int64

	sessionMu sync.RWMutex
	sessionID string
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (t *httpTransport) connect(ctx context.Context) (map[string]any, error) {
	httpTimeout := t.httpTimeout
	if httpTimeout == 0 {
		httpTimeout = DefaultHTTPTimeout
	}
	if t.eventReadTimeout == 0 {
		t.eventReadTimeout = DefaultEventReadTimeout
	}
	// The overall exchange must stay open for SSE body reads, so the
	// HTTP timeout bounds the wait for response headers only; SSE body
	// reads are bounded by the event-read timeout.
	t.client = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: httpTimeout},
		}),
		httpclient.WithMaxRetries(3),
		httpclient.WithHeaderParser(httpclient.ParseRetryAfter),
	)

	initResp, err := t.rpc(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}
	if initResp.Error != nil {
		return nil, fmt.Errorf("MCP init error: %s", initResp.Error.Message)
	}

	// The initialized notification completes the handshake.
	if _, err := t.rpc(ctx, "notifications/initialized", map[string]any{}); err != nil {
		slog.Debug("MCP initialized notification failed", "server", t.name, "error", err)
	}

	result, _ := initResp.Result.(map[string]any)
	return result, nil
}

func (t *httpTransport) listTools(ctx context.Context) ([]ToolInfo, error) {
	resp, err := t.rpc(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("MCP list error: %s", resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from tools/list")
	}
	toolsList, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing tools in tools/list response")
	}

	var tools []ToolInfo
	for _, raw := range toolsList {
		toolMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		info := ToolInfo{}
		info.Name, _ = toolMap["name"].(string)
		info.Description, _ = toolMap["description"].(string)
		if inputSchema, ok := toolMap["inputSchema"].(map[string]any); ok {
			info.InputSchema = inputSchema
		}
		tools = append(tools, info)
	}
	return tools, nil
}

func (t *httpTransport) callTool(ctx context.Context, name string, arguments map[string]any) (any, error) {
	resp, err := t.rpc(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return map[string]any{"error": resp.Error.Message}, nil
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return resp.Result, nil
	}

	var texts []string
	if content, ok := resultMap["content"].([]any); ok {
		for _, c := range content {
			if cm, ok := c.(map[string]any); ok {
				if cm["type"] == "text" {
					if text, ok := cm["text"].(string); ok {
						texts = append(texts, text)
					}
				}
			}
		}
	}

	if isError, _ := resultMap["isError"].(bool); isError {
		msg := "unknown error"
		if len(texts) > 0 {
			msg = texts[0]
		}
		return map[string]any{"error": msg}, nil
	}

	switch len(texts) {
	case 0:
		return resultMap, nil
	case 1:
		return texts[0], nil
	default:
		return texts, nil
	}
}

func (t *httpTransport) close(ctx context.Context) error {
	t.sessionMu.Lock()
	sessionID := t.sessionID
	t.sessionID = ""
	t.sessionMu.Unlock()

	if t.terminateOnClose && sessionID != "" && t.client != nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.url, nil)
		if err == nil {
			req.Header.Set("mcp-session-id", sessionID)
			if resp, err := t.client.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}

	t.client = nil
	return nil
}

// rpc sends a JSON-RPC request and reads the response, following the
// SSE path when the server answers with an event stream.
func (t *httpTransport) rpc(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	if t.client == nil {
		return nil, ErrNotConnected
	}

	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      t.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	t.sessionMu.RLock()
	sessionID := t.sessionID
	t.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	// Session id is minted by the server on initialize
	// (streamable-http transport).
	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		t.sessionMu.Lock()
		t.sessionID = newSessionID
		t.sessionMu.Unlock()
	}

	if httpResp.StatusCode == http.StatusAccepted {
		// Notifications are acknowledged without a body.
		return &jsonRPCResponse{JSONRPC: "2.0"}, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(responseBody))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return t.readSSEResponse(httpResp)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// readSSEResponse reads the first complete JSON-RPC response from an
// SSE stream, bounded by the event-read timeout.
func (t *httpTransport) readSSEResponse(httpResp *http.Response) (*jsonRPCResponse, error) {
	type result struct {
		response *jsonRPCResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		defer httpResp.Body.Close()

		reader := bufio.NewReader(httpResp.Body)
		var currentData strings.Builder

		flush := func() *jsonRPCResponse {
			if currentData.Len() == 0 {
				return nil
			}
			var resp jsonRPCResponse
			if err := json.Unmarshal([]byte(currentData.String()), &resp); err == nil {
				return &resp
			}
			currentData.Reset()
			return nil
		}

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					slog.Debug("MCP SSE read error", "server", t.name, "error", err)
				}
				break
			}

			lineStr := strings.TrimSpace(string(line))

			// Empty line signals end of event
			if lineStr == "" {
				if resp := flush(); resp != nil {
					resultChan <- result{response: resp}
					return
				}
				continue
			}

			if strings.HasPrefix(lineStr, "data:") {
				currentData.WriteString(strings.TrimSpace(strings.TrimPrefix(lineStr, "data:")))
			}
		}

		if resp := flush(); resp != nil {
			resultChan <- result{response: resp}
			return
		}
		resultChan <- result{err: fmt.Errorf("SSE stream ended without complete message")}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			return nil, res.err
		}
		return res.response, nil
	case <-time.After(t.eventReadTimeout):
		return nil, fmt.Errorf("timeout reading SSE response after %v", t.eventReadTimeout)
	}
}
