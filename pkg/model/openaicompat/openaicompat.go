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

// Package openaicompat implements the backend client against any
// OpenAI-compatible chat-completions endpoint: OpenAI itself, LiteLLM
// proxies, vLLM, Ollama's compatibility surface, and similar gateways.
//
// Streaming uses SSE. Tool-call deltas may arrive fragmented across
// events; the client buffers them and emits one complete tool call
// per id once the arguments parse as JSON (see model.Assembler).
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/httpclient"
	"github.com/kadirpekel/braid/pkg/model"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second

	doneMarker = "[DONE]"
)

// Config configures the client.
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	DefaultOptions *model.Options
}

// Option configures the client.
type Option func(*Config)

// WithModel sets the model name.
func WithModel(name string) Option {
	return func(c *Config) {
		c.Model = name
	}
}

// WithBaseURL sets a custom base URL (e.g. a LiteLLM proxy).
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithDefaultOptions sets the client-level option defaults.
func WithDefaultOptions(opts *model.Options) Option {
	return func(c *Config) {
		c.DefaultOptions = opts
	}
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	httpClient *httpclient.Client
	apiKey     string
	baseURL    string
	modelName  string
	defaults   *model.Options
}

// New creates a new client.
func New(cfg Config, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}

	return &Client{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(maxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		modelName: modelName,
		defaults:  cfg.DefaultOptions,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// DefaultOptions returns the client-level option defaults.
func (c *Client) DefaultOptions() *model.Options {
	return c.defaults
}

// Generate performs a non-streaming completion.
func (c *Client) Generate(ctx context.Context, conv []conversation.Message, req *model.Request) (*model.Response, error) {
	body, err := c.requestBody(conv, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &model.ResponseValidationError{Reason: "failed to decode completion", Err: err}
	}

	return c.parseResponse(&apiResp)
}

// GenerateStreaming performs a streaming completion.
func (c *Client) GenerateStreaming(ctx context.Context, conv []conversation.Message, req *model.Request) iter.Seq2[model.Chunk, error] {
	return func(yield func(model.Chunk, error) bool) {
		body, err := c.requestBody(conv, req, true)
		if err != nil {
			yield(nil, err)
			return
		}

		resp, err := c.post(ctx, body)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		assembler := model.NewAssembler()
		usage := model.Usage{Requests: 1}
		sawUsage := false

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				yield(nil, &model.ConnectionError{Err: fmt.Errorf("stream read: %w", err)})
				return
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			data := bytes.TrimSpace(line[5:])
			if string(data) == doneMarker {
				break
			}

			var event chatStreamEvent
			if err := json.Unmarshal(data, &event); err != nil {
				slog.Debug("Skipping malformed stream event", "error", err)
				continue
			}

			if event.Usage != nil {
				usage.PromptTokens = event.Usage.PromptTokens
				usage.CompletionTokens = event.Usage.CompletionTokens
				usage.TotalTokens = event.Usage.TotalTokens
				sawUsage = true
			}

			for _, choice := range event.Choices {
				delta := choice.Delta
				if delta == nil {
					continue
				}
				if delta.Content != "" {
					if !yield(model.TextChunk{Text: delta.Content}, nil) {
						return
					}
				}
				if delta.Reasoning != "" {
					if !yield(model.ReasoningChunk{Text: delta.Reasoning}, nil) {
						return
					}
				}
				for _, tc := range delta.ToolCalls {
					var name, fragment string
					if tc.Function != nil {
						name = tc.Function.Name
						fragment = tc.Function.Arguments
					}
					if chunk := assembler.Push(tc.Index, tc.ID, name, fragment); chunk != nil {
						if !yield(*chunk, nil) {
							return
						}
					}
				}
			}
		}

		// Providers that omit per-call completion markers finish calls
		// only at end of stream.
		for _, chunk := range assembler.Flush() {
			if !yield(*chunk, nil) {
				return
			}
		}

		if !sawUsage {
			slog.Debug("Stream ended without a usage event", "model", c.modelName)
		}
		usage.EstimatedCost = model.CostFor(c.modelName, usage.PromptTokens, usage.CompletionTokens)
		yield(model.UsageChunk{Usage: usage}, nil)
	}
}

// CountTokens estimates the token count of a conversation using the
// model's tiktoken encoding. Models unknown to tiktoken use the
// cl100k_base encoding; a character count is used only when no
// encoding can be loaded. Both estimates grow monotonically with the
// conversation.
func (c *Client) CountTokens(conv []conversation.Message) int {
	enc, err := tiktoken.EncodingForModel(c.modelName)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		total := 0
		for _, msg := range conv {
			total += len(messageText(msg))
		}
		return total
	}

	total := 0
	for _, msg := range conv {
		total += len(enc.Encode(messageText(msg), nil, nil))
	}
	return total
}

func messageText(msg conversation.Message) string {
	if msg.Role == conversation.RoleTool {
		return fmt.Sprintf("%v", msg.Result)
	}
	text := msg.Content
	for _, tc := range msg.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		text += tc.Name + string(args)
	}
	return text
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			bodyBytes, _ := io.ReadAll(resp.Body)
			return nil, &model.StatusError{Code: resp.StatusCode, Message: string(bodyBytes)}
		}
		return nil, &model.ConnectionError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &model.StatusError{Code: resp.StatusCode, Message: string(bodyBytes)}
	}
	return resp, nil
}

func (c *Client) requestBody(conv []conversation.Message, req *model.Request, stream bool) ([]byte, error) {
	if req == nil {
		req = &model.Request{}
	}
	opts := c.defaults.Merge(req.Options)

	apiReq := chatRequest{
		Model:    c.modelName,
		Messages: convertMessages(conv),
		Stream:   stream,
	}
	if stream {
		apiReq.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if opts != nil {
		apiReq.Temperature = opts.Temperature
		apiReq.MaxTokens = opts.MaxTokens
		apiReq.TopP = opts.TopP
		apiReq.Stop = opts.StopSequences
	}

	for _, schema := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        schema.Name,
				Description: schema.Description,
				Parameters:  schema.Parameters,
			},
		})
	}

	if req.ToolChoice != nil && len(apiReq.Tools) > 0 {
		switch req.ToolChoice.Mode {
		case model.ToolChoiceAuto:
			apiReq.ToolChoice = "auto"
		case model.ToolChoiceNone:
			apiReq.ToolChoice = "none"
		case model.ToolChoiceRequired:
			apiReq.ToolChoice = "required"
		case model.ToolChoiceTool:
			apiReq.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]any{"name": req.ToolChoice.Tool},
			}
		}
	}

	switch {
	case req.OutputSchema != nil:
		apiReq.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   "response",
				Strict: true,
				Schema: req.OutputSchema,
			},
		}
	case req.JSONMode:
		apiReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

func convertMessages(conv []conversation.Message) []apiMessage {
	out := make([]apiMessage, 0, len(conv))
	for _, msg := range conv {
		switch msg.Role {
		case conversation.RoleTool:
			content := fmt.Sprintf("%v", msg.Result)
			out = append(out, apiMessage{
				Role:       "tool",
				Content:    content,
				ToolCallID: msg.ToolCallID,
			})
		case conversation.RoleAssistant:
			m := apiMessage{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				m.ToolCalls = append(m.ToolCalls, apiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: &apiFunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, m)
		default:
			out = append(out, apiMessage{Role: string(msg.Role), Content: msg.Content})
		}
	}
	return out
}

func (c *Client) parseResponse(resp *chatResponse) (*model.Response, error) {
	if resp.Error != nil {
		return nil, &model.ResponseValidationError{Reason: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return nil, &model.EmptyResponseError{Model: c.modelName}
	}

	choice := resp.Choices[0]
	result := &model.Response{
		Content:   choice.Message.Content,
		Reasoning: choice.Message.Reasoning,
		Usage: model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Requests:         1,
		},
		Metadata: map[string]any{
			"id":            resp.ID,
			"model":         resp.Model,
			"finish_reason": choice.FinishReason,
		},
	}
	result.Usage.EstimatedCost = model.CostFor(c.modelName, result.Usage.PromptTokens, result.Usage.CompletionTokens)

	for _, tc := range choice.Message.ToolCalls {
		call := conversation.ToolCall{
			ID:        tc.ID,
			Type:      tc.Type,
			Arguments: map[string]any{},
		}
		if call.Type == "" {
			call.Type = conversation.ToolCallTypeFunction
		}
		if tc.Function != nil {
			call.Name = tc.Function.Name
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
					return nil, &model.ResponseValidationError{
						Reason: fmt.Sprintf("tool call %q carries malformed arguments", call.Name),
						Err:    err,
					}
				}
			}
		}
		result.ToolCalls = append(result.ToolCalls, call)
	}

	return result, nil
}

// Wire types for the chat-completions API.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []apiMessage    `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	Tools          []apiTool       `json:"tools,omitempty"`
	ToolChoice     any             `json:"tool_choice,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiTool struct {
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type apiToolCall struct {
	Index    int              `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function *apiFunctionCall `json:"function,omitempty"`
}

type apiFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   apiUsage     `json:"usage"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Reasoning string        `json:"reasoning_content,omitempty"`
	ToolCalls []apiToolCall `json:"tool_calls,omitempty"`
}

type chatStreamEvent struct {
	ID      string         `json:"id"`
	Choices []streamChoice `json:"choices"`
	Usage   *apiUsage      `json:"usage,omitempty"`
}

type streamChoice struct {
	Index        int          `json:"index"`
	Delta        *streamDelta `json:"delta"`
	FinishReason string       `json:"finish_reason"`
}

type streamDelta struct {
	Content   string        `json:"content,omitempty"`
	Reasoning string        `json:"reasoning_content,omitempty"`
	ToolCalls []apiToolCall `json:"tool_calls,omitempty"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// Ensure Client implements model.LLM
var _ model.LLM = (*Client)(nil)
