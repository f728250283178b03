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

package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/mcp"
	"github.com/kadirpekel/braid/pkg/model"
	"github.com/kadirpekel/braid/pkg/model/modeltest"
	"github.com/kadirpekel/braid/pkg/tool"
)

func nestedAgent(t *testing.T) *Agent {
	t.Helper()
	llm := modeltest.New(modeltest.Script{
		Response: "nested answer",
		Usage:    model.Usage{PromptTokens: 4, CompletionTokens: 3, TotalTokens: 7},
	})
	nested, err := New(Config{
		Model:       llm,
		Name:        "researcher",
		Description: "Answers research questions",
	})
	require.NoError(t, err)
	return nested
}

func parentWithNested(t *testing.T, nested *Agent) *Agent {
	t.Helper()
	llm := modeltest.New(
		modeltest.Script{ToolCalls: []conversation.ToolCall{{
			ID:        "t1",
			Type:      conversation.ToolCallTypeFunction,
			Name:      "ask_researcher",
			Arguments: map[string]any{"request": "what is x"},
		}}, Usage: model.Usage{TotalTokens: 5}},
		modeltest.Script{Response: "final answer", Usage: model.Usage{TotalTokens: 2}},
	)
	parent, err := New(Config{
		Model: llm,
		Tools: []tool.Tool{nested.AsTool("ask_researcher", "Delegate to the researcher")},
	})
	require.NoError(t, err)
	return parent
}

func TestDownstreamPassthrough(t *testing.T) {
	nested := nestedAgent(t)
	parent := parentWithNested(t, nested)

	rc := tool.NewRunContext()
	rc.StreamDownstreamEvents = true

	result := parent.RunStreaming(context.Background(), "delegate this", WithRunContext(rc))
	events := collect(t, result)
	kinds := kindsOf(events)

	// tool-call first, then the nested agent's envelopes, then the
	// settled result of the wrapping tool.
	assert.Equal(t, "tool-call", kinds[0])
	assert.Contains(t, kinds, "downstream-result")

	var downstream []DownstreamEvent
	resultIdx := -1
	for i, ev := range events {
		switch e := ev.(type) {
		case DownstreamEvent:
			downstream = append(downstream, e)
			assert.Equal(t, nested.ID(), e.AgentID)
		case ToolCallResultEvent:
			if resultIdx == -1 {
				resultIdx = i
			}
		}
	}
	require.NotEmpty(t, downstream)

	// Every envelope precedes the wrapping tool's result.
	lastDownstream := 0
	for i, k := range kinds {
		if k == "downstream-result" {
			lastDownstream = i
		}
	}
	assert.Less(t, lastDownstream, resultIdx)

	// The nested run's own stream ends with its conversation.
	_, isConv := downstream[len(downstream)-1].Event.(ConversationEvent)
	assert.True(t, isConv)

	// The tool's settled value is the nested agent's final content.
	settled := events[resultIdx].(ToolCallResultEvent).Result
	assert.Equal(t, "nested answer", settled.Result)

	// Collector groups by agent id.
	assert.NotEmpty(t, result.Downstream[nested.ID()])
}

func TestDownstreamDrainedWithoutOptIn(t *testing.T) {
	nested := nestedAgent(t)
	parent := parentWithNested(t, nested)

	result := parent.RunStreaming(context.Background(), "delegate this")
	events := collect(t, result)

	assert.NotContains(t, kindsOf(events), "downstream-result")
	// The tool still settles to the nested content.
	var settled *tool.CallResult
	for _, ev := range events {
		if e, ok := ev.(ToolCallResultEvent); ok {
			settled = &e.Result
			break
		}
	}
	require.NotNil(t, settled)
	assert.Equal(t, "nested answer", settled.Result)
}

func TestDownstreamUsageAccumulatesIntoParent(t *testing.T) {
	nested := nestedAgent(t)
	parent := parentWithNested(t, nested)

	rc := tool.NewRunContext()
	result := parent.RunStreaming(context.Background(), "delegate this", WithRunContext(rc))
	require.NoError(t, result.Drain(context.Background()))

	// Parent turns contribute 5 + 2, the nested run 7.
	assert.Equal(t, 14, result.Usage.TotalTokens)
	assert.GreaterOrEqual(t, result.Usage.PromptTokens, 4)
	assert.GreaterOrEqual(t, result.Usage.CompletionTokens, 3)
}

func TestDownstreamAgentRegisteredInContext(t *testing.T) {
	nested := nestedAgent(t)
	parent := parentWithNested(t, nested)

	rc := tool.NewRunContext()
	require.NoError(t, parent.RunStreaming(context.Background(), "go", WithRunContext(rc)).Drain(context.Background()))

	assert.NotNil(t, rc.Agent(parent.ID()))
	assert.NotNil(t, rc.Agent(nested.ID()))
}

// fakeToolServer is a minimal JSON-RPC MCP endpoint advertising the
// given tool names.
func fakeToolServer(t *testing.T, names ...string) mcp.Server {
	t.Helper()
	handler := func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64          `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result any
		switch req.Method {
		case "initialize":
			result = map[string]any{"protocolVersion": "2024-11-05"}
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
			return
		case "tools/list":
			var tools []any
			for _, name := range names {
				tools = append(tools, map[string]any{
					"name":        name,
					"description": "remote " + name,
					"inputSchema": map[string]any{"type": "object"},
				})
			}
			result = map[string]any{"tools": tools}
		case "tools/call":
			name, _ := req.Params["name"].(string)
			result = map[string]any{
				"content": []any{map[string]any{"type": "text", "text": "remote result from " + name}},
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}

	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	session, err := mcp.NewStreamableHTTPServer(mcp.StreamableHTTPConfig{Name: "fake", URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, session.Connect(context.Background()))
	t.Cleanup(func() { _ = session.Cleanup(context.Background()) })
	return session
}

func TestMCPToolMergeAndInvocation(t *testing.T) {
	server := fakeToolServer(t, "search")

	calc, err := tool.NewCallable("calc", "calculates", nil,
		func(ctx tool.Context, args map[string]any) (any, error) { return 42, nil })
	require.NoError(t, err)

	llm := modeltest.New(
		modeltest.Script{ToolCalls: []conversation.ToolCall{{
			ID: "t1", Type: "function", Name: "search", Arguments: map[string]any{"q": "x"},
		}}},
		modeltest.Script{Response: "found it"},
	)
	ag, err := New(Config{Model: llm, Tools: []tool.Tool{calc}, MCPServers: []mcp.Server{server}})
	require.NoError(t, err)

	result, err := ag.Run(context.Background(), "search for x")
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "remote result from search", result.ToolCalls[0].Result)
}

func TestMCPToolMergeCollision(t *testing.T) {
	server := fakeToolServer(t, "calc")

	calc, err := tool.NewCallable("calc", "calculates", nil,
		func(ctx tool.Context, args map[string]any) (any, error) { return 42, nil })
	require.NoError(t, err)

	llm := modeltest.New(modeltest.Script{Response: "never"})
	ag, err := New(Config{Model: llm, Tools: []tool.Tool{calc}, MCPServers: []mcp.Server{server}})
	require.NoError(t, err)

	_, err = ag.Run(context.Background(), "go")
	var dup *tool.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "calc", dup.Name)
}

func TestMCPMergedSchemasSentToBackend(t *testing.T) {
	server := fakeToolServer(t, "search")

	calc, err := tool.NewCallable("calc", "calculates", nil,
		func(ctx tool.Context, args map[string]any) (any, error) { return 42, nil })
	require.NoError(t, err)

	llm := modeltest.New(modeltest.Script{Response: "plain answer"})
	ag, err := New(Config{Model: llm, Tools: []tool.Tool{calc}, MCPServers: []mcp.Server{server}})
	require.NoError(t, err)

	registry, err := ag.allTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"calc", "search"}, registry.Names())
}
