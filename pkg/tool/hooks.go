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

package tool

import (
	"context"

	"github.com/kadirpekel/braid/pkg/conversation"
)

// Decision is the outcome of the pre-tool hook chain.
type Decision string

const (
	// DecisionAllow lets the invocation proceed, possibly with
	// mutated arguments.
	DecisionAllow Decision = "allow"
	// DecisionDeny blocks the invocation; a synthetic tool result
	// carrying the reason is recorded instead.
	DecisionDeny Decision = "deny"
	// DecisionAsk defers the invocation behind a confirmation
	// request minted by the hook.
	DecisionAsk Decision = "ask"
)

// PreToolResult is the running value folded through the pre-tool
// chain.
type PreToolResult struct {
	Decision  Decision
	Reason    string
	Arguments map[string]any

	// Confirmation is set when Decision is DecisionAsk.
	Confirmation *ConfirmationRequest
}

// PreToolHook observes a tool call before execution. It receives the
// running result of the chain and returns a possibly modified one.
// Returning DecisionDeny or DecisionAsk short-circuits the remaining
// hooks.
type PreToolHook func(ctx context.Context, rc *RunContext, call *conversation.ToolCall, prev PreToolResult) (PreToolResult, error)

// PostToolHook observes the raw return value (or error) of a tool
// call and may replace the output. Post hooks run even when the call
// failed, before the error is re-raised.
type PostToolHook func(ctx context.Context, rc *RunContext, call *conversation.ToolCall, output any, callErr error) (any, error)

// Hooks is an agent's ordered hook registration.
type Hooks struct {
	Pre  []PreToolHook
	Post []PostToolHook
}

// RunPre folds the call through the pre-tool chain, left to right.
// The chain starts as an allow carrying the call's own arguments.
func (h Hooks) RunPre(ctx context.Context, rc *RunContext, call *conversation.ToolCall) (PreToolResult, error) {
	result := PreToolResult{
		Decision:  DecisionAllow,
		Arguments: call.Arguments,
	}
	for _, hook := range h.Pre {
		var err error
		result, err = hook(ctx, rc, call, result)
		if err != nil {
			return result, err
		}
		if result.Decision == DecisionDeny || result.Decision == DecisionAsk {
			break
		}
	}
	if result.Arguments == nil {
		result.Arguments = map[string]any{}
	}
	return result, nil
}

// RunPost folds the output through the post-tool chain, left to
// right. Each hook may replace the output.
func (h Hooks) RunPost(ctx context.Context, rc *RunContext, call *conversation.ToolCall, output any, callErr error) (any, error) {
	for _, hook := range h.Post {
		var err error
		output, err = hook(ctx, rc, call, output, callErr)
		if err != nil {
			return output, err
		}
	}
	return output, nil
}
