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

package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		APIKey:     "test-key",
		Model:      "test-model",
		BaseURL:    srv.URL,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	return client
}

func userMessage(content string) []conversation.Message {
	return []conversation.Message{{Role: conversation.RoleUser, Content: content}}
}

func TestGenerateParsesTextAndUsage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "resp-1",
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 2, "completion_tokens": 1, "total_tokens": 3}
		}`)
	})

	resp, err := client.Generate(context.Background(), userMessage("Hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi", resp.Content)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, 2, resp.Usage.PromptTokens)
	assert.Equal(t, 1, resp.Usage.CompletionTokens)
	assert.Equal(t, 3, resp.Usage.TotalTokens)
	assert.Equal(t, 1, resp.Usage.Requests)
}

func TestGenerateParsesToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		tools, _ := req["tools"].([]any)
		require.Len(t, tools, 1)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "",
				"tool_calls": [{"id": "t1", "type": "function",
					"function": {"name": "echo", "arguments": "{\"x\":\"hello\"}"}}]},
				"finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 4, "total_tokens": 9}
		}`)
	})

	resp, err := client.Generate(context.Background(), userMessage("run echo"), &model.Request{
		Tools: []model.ToolSchema{{Name: "echo", Description: "echoes", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "t1", resp.ToolCalls[0].ID)
	assert.Equal(t, "echo", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"x": "hello"}, resp.ToolCalls[0].Arguments)
}

func TestGenerateStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	})

	_, err := client.Generate(context.Background(), userMessage("x"), nil)
	var statusErr *model.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestGenerateEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices": [], "usage": {}}`)
	})

	_, err := client.Generate(context.Background(), userMessage("x"), nil)
	var emptyErr *model.EmptyResponseError
	assert.ErrorAs(t, err, &emptyErr)
}

func TestGenerateConnectionError(t *testing.T) {
	client, err := New(Config{BaseURL: "http://127.0.0.1:1", MaxRetries: 1})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), userMessage("x"), nil)
	var connErr *model.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func sseBody() string {
	return `data: {"choices":[{"index":0,"delta":{"content":"Hel"}}]}

data: {"choices":[{"index":0,"delta":{"content":"lo"}}]}

data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"t1","function":{"name":"echo","arguments":"{\"x\":"}}]}}]}

data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"hello\"}"}}]}}]}

data: {"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":6,"total_tokens":16}}

data: [DONE]

`
}

func TestGenerateStreamingOrderingAndAssembly(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody())
	})

	var chunks []model.Chunk
	for chunk, err := range client.GenerateStreaming(context.Background(), userMessage("hi"), nil) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 4)
	assert.Equal(t, model.TextChunk{Text: "Hel"}, chunks[0])
	assert.Equal(t, model.TextChunk{Text: "lo"}, chunks[1])

	call, ok := chunks[2].(model.ToolCallChunk)
	require.True(t, ok)
	assert.Equal(t, "t1", call.ID)
	assert.Equal(t, "echo", call.Name)
	assert.Equal(t, map[string]any{"x": "hello"}, call.Arguments)

	usage, ok := chunks[3].(model.UsageChunk)
	require.True(t, ok)
	assert.Equal(t, 16, usage.Usage.TotalTokens)
	assert.Equal(t, 1, usage.Usage.Requests)
}

func TestGenerateStreamingUsageIsTerminal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody())
	})

	var kinds []string
	for chunk, err := range client.GenerateStreaming(context.Background(), userMessage("hi"), nil) {
		require.NoError(t, err)
		switch chunk.(type) {
		case model.TextChunk:
			kinds = append(kinds, "text")
		case model.ToolCallChunk:
			kinds = append(kinds, "tool")
		case model.UsageChunk:
			kinds = append(kinds, "usage")
		}
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, "usage", kinds[len(kinds)-1])
	assert.Equal(t, 1, countOf(kinds, "usage"))
}

func countOf(items []string, want string) int {
	n := 0
	for _, item := range items {
		if item == want {
			n++
		}
	}
	return n
}

func TestCountTokensMonotonic(t *testing.T) {
	client, err := New(Config{Model: "test-model"})
	require.NoError(t, err)

	conv := userMessage("hello there")
	base := client.CountTokens(conv)
	assert.Positive(t, base)

	grown := append(conv, conversation.Message{Role: conversation.RoleAssistant, Content: "general kenobi"})
	assert.GreaterOrEqual(t, client.CountTokens(grown), base)
}

func TestMessageConversionRoundTrip(t *testing.T) {
	msgs := []conversation.Message{
		{Role: conversation.RoleSystem, Content: "sys"},
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "using tool", ToolCalls: []conversation.ToolCall{
			{ID: "t1", Type: "function", Name: "echo", Arguments: map[string]any{"x": 1}},
		}},
		{Role: conversation.RoleTool, ToolCallID: "t1", ToolName: "echo", Result: "ok"},
	}

	converted := convertMessages(msgs)
	require.Len(t, converted, 4)
	assert.Equal(t, "system", converted[0].Role)
	assert.Equal(t, "user", converted[1].Role)
	assert.Equal(t, "assistant", converted[2].Role)
	require.Len(t, converted[2].ToolCalls, 1)
	assert.Equal(t, "echo", converted[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", converted[3].Role)
	assert.Equal(t, "t1", converted[3].ToolCallID)
	assert.Equal(t, "ok", converted[3].Content)
}
