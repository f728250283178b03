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
	"fmt"
	"iter"

	"github.com/kadirpekel/braid/pkg/tool"
)

// agentTool exposes an agent as a tool of a parent agent. The nested
// agent runs its own streaming loop; every event it emits surfaces as
// an intermediate result, which the invoker forwards as downstream
// envelopes when the parent run opted in.
type agentTool struct {
	agent       *Agent
	name        string
	description string
}

func newAgentTool(ag *Agent, name, description string) tool.Tool {
	return &agentTool{agent: ag, name: name, description: description}
}

func (t *agentTool) Name() string               { return t.name }
func (t *agentTool) Description() string        { return t.description }
func (t *agentTool) RequiresConfirmation() bool { return false }
func (t *agentTool) AgentID() string            { return t.agent.ID() }

func (t *agentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "The task or request for the " + t.name + " agent",
			},
		},
		"required": []string{"request"},
	}
}

// CallStreaming runs the nested agent to completion. On completion
// the nested agent's final content becomes the tool's return value,
// with its tool calls and usage in the metadata, and its usage folded
// into the parent run.
func (t *agentTool) CallStreaming(ctx tool.Context, args map[string]any) iter.Seq2[*tool.Result, error] {
	return func(yield func(*tool.Result, error) bool) {
		request, ok := args["request"].(string)
		if !ok {
			yield(nil, fmt.Errorf("request parameter must be a string"))
			return
		}

		// The nested run gets a fresh context; the parent registry
		// tracks the participant for demultiplexing by agent id.
		parentRun := ctx.Run()
		parentRun.RegisterAgent(t.agent)

		nested := t.agent.RunStreaming(ctx, request)
		for ev, err := range nested.Events() {
			if err != nil {
				yield(nil, fmt.Errorf("nested agent %s: %w", t.agent.ID(), err))
				return
			}
			if !yield(&tool.Result{Content: ev, Streaming: true}, nil) {
				return
			}
		}
		usage := nested.Usage
		yield(&tool.Result{
			Content: nested.Content,
			Metadata: map[string]any{
				"agent_id":   t.agent.ID(),
				"tool_calls": nested.ToolCalls,
				"usage":      usage,
			},
			Usage: &usage,
		}, nil)
	}
}

var _ tool.DownstreamTool = (*agentTool)(nil)
