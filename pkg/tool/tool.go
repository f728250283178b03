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

// Package tool defines the tools an agent can invoke.
//
// # Tool Interface Hierarchy
//
//	Tool (base)
//	  ├── CallableTool            - synchronous execution, single result
//	  ├── StreamingTool           - yields intermediate items before a final result
//	  └── RequiresConfirmation()  - gates execution on an explicit user decision
//
// A tool marked RequiresConfirmation pauses the run before its first
// execution: the agent emits a ConfirmationRequest carrying a
// deterministic id, and a later run resumes with the caller's decision
// recorded in the RunContext. Same tool + same arguments always yield
// the same id, so decisions survive process boundaries.
package tool

import (
	"context"
	"fmt"
	"iter"

	"github.com/kadirpekel/braid/pkg/model"
)

// Tool is the base interface for anything an agent can invoke.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description of what the
	// tool does. Shown to the model to decide when to use the tool.
	Description() string

	// RequiresConfirmation indicates whether execution is gated on an
	// explicit user decision.
	RequiresConfirmation() bool

	// Schema returns the JSON schema of the tool's parameters, or nil
	// when the tool takes none.
	Schema() map[string]any
}

// CallableTool extends Tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call executes the tool. The invoker runs synchronous tools on
	// their own goroutine, so a Call may block without stalling event
	// emission.
	Call(ctx Context, args map[string]any) (any, error)
}

// StreamingTool extends Tool with incremental output. Downstream-agent
// tools use this to surface nested events in the parent stream.
type StreamingTool interface {
	Tool

	// CallStreaming executes the tool and yields incremental results.
	// Results with Streaming=true are intermediate; the final result
	// has Streaming=false and carries the tool's return value.
	CallStreaming(ctx Context, args map[string]any) iter.Seq2[*Result, error]
}

// DownstreamTool is a StreamingTool backed by a nested agent. Its
// intermediate results carry the nested agent's events; the invoker
// wraps them in downstream envelopes when the run context enables
// passthrough.
type DownstreamTool interface {
	StreamingTool

	// AgentID returns the nested agent's id, used to tag the
	// downstream envelopes.
	AgentID() string
}

// Result is one output item of a tool execution.
type Result struct {
	// Content is the output value. For intermediate results of a
	// DownstreamTool this is a nested agent event.
	Content any

	// Streaming marks an intermediate item; the final result of an
	// execution has Streaming=false.
	Streaming bool

	// Metadata contains optional additional data about this result.
	Metadata map[string]any

	// Usage carries token usage accrued by the execution (downstream
	// agents); the invoker folds it into the run context.
	Usage *model.Usage
}

// CallResult is the settled outcome of one tool call, as it appears
// in the transcript and in run results.
type CallResult struct {
	ID        string
	Name      string
	Arguments map[string]any
	Result    any
	Metadata  map[string]any
}

// Context is the execution context handed to a tool. It extends the
// request context with the identity of the invocation and a read
// handle on the per-run state.
type Context interface {
	context.Context

	// CallID returns the id of the tool call being served.
	CallID() string

	// Run returns the per-run state container.
	Run() *RunContext
}

// ToSchema converts a tool to the schema mapping sent to the model.
func ToSchema(t Tool) model.ToolSchema {
	return model.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// DuplicateError is raised when two tools share a name.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate tool name %q", e.Name)
}
