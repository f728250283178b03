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
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/observability"
	"github.com/kadirpekel/braid/pkg/tool"
)

// PendingConfirmationResult is the stand-in recorded for a gated tool
// awaiting a decision, visible to the model on the next turn.
const PendingConfirmationResult = "pending confirmation"

// DeclinedResult is recorded when the caller declined a gated tool.
const DeclinedResult = "Tool execution declined by the user"

// executeToolCalls dispatches a turn's tool calls.
//
// Sequential mode runs calls in emission order, each completing
// before the next starts. Parallel mode schedules every call
// concurrently; emitted events funnel through one bounded queue and
// are forwarded in arrival order, which makes the transcript order of
// results a completion order by contract.
func (a *Agent) executeToolCalls(
	ctx context.Context,
	calls []conversation.ToolCall,
	registry *tool.Registry,
	rc *tool.RunContext,
	parallel bool,
) iter.Seq2[Event, error] {
	if !parallel || len(calls) < 2 {
		return func(yield func(Event, error) bool) {
			for _, call := range calls {
				for ev, err := range a.executeTool(ctx, call, registry, rc) {
					if !yield(ev, err) {
						return
					}
					if err != nil {
						return
					}
				}
			}
		}
	}

	return func(yield func(Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Capacity equals the fan-out, so memory stays bounded by
		// the turn while producers can still make progress between
		// drains.
		queue := make(chan Event, len(calls))
		g, gctx := errgroup.WithContext(ctx)

		for _, call := range calls {
			g.Go(func() error {
				for ev, err := range a.executeTool(gctx, call, registry, rc) {
					if err != nil {
						return err
					}
					select {
					case queue <- ev:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}

		groupErr := make(chan error, 1)
		go func() {
			groupErr <- g.Wait()
			close(queue)
		}()

		for ev := range queue {
			if !yield(ev, nil) {
				return
			}
		}
		if err := <-groupErr; err != nil && err != context.Canceled {
			yield(nil, err)
		}
	}
}

// executeTool runs a single tool call through validation, the hook
// chain, confirmation gating, and invocation. The sequence carries
// exactly one ToolCallResultEvent unless it stops with a fatal error;
// gated calls also emit a ConfirmationRequestEvent (after the
// stand-in result for confirmation-gated tools, before it for hook
// "ask" decisions).
func (a *Agent) executeTool(
	ctx context.Context,
	call conversation.ToolCall,
	registry *tool.Registry,
	rc *tool.RunContext,
) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if call.Type != "" && call.Type != conversation.ToolCallTypeFunction {
			yield(nil, &ToolNotSupportedError{Type: call.Type})
			return
		}

		t, ok := registry.Get(call.Name)
		if !ok {
			yield(nil, &ToolNotAvailableError{Name: call.Name})
			return
		}

		pre, err := a.hooks.RunPre(ctx, rc, &call)
		if err != nil {
			yield(nil, fmt.Errorf("pre-tool hook failed: %w", err))
			return
		}

		switch pre.Decision {
		case tool.DecisionDeny:
			reason := pre.Reason
			if reason == "" {
				reason = "Tool execution denied"
			}
			yield(ToolCallResultEvent{Result: tool.CallResult{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
				Result:    reason,
			}}, nil)
			return

		case tool.DecisionAsk:
			request := pre.Confirmation
			if request == nil {
				r := tool.NewConfirmationRequest(t, pre.Arguments)
				request = &r
			}
			reason := pre.Reason
			if reason == "" {
				reason = "Hook requires user confirmation"
			}
			if !yield(ConfirmationRequestEvent{Request: *request}, nil) {
				return
			}
			yield(ToolCallResultEvent{Result: tool.CallResult{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
				Result:    reason,
			}}, nil)
			return
		}

		// Hooks may have mutated the arguments.
		args := pre.Arguments

		if t.RequiresConfirmation() {
			id := tool.ConfirmationID(call.Name, args)
			confirmed, decided := rc.ConfirmationFor(id)
			switch {
			case !decided:
				// The stand-in result lands in the transcript so the
				// model can summarize what it asked for.
				if !yield(ToolCallResultEvent{Result: tool.CallResult{
					ID:        call.ID,
					Name:      call.Name,
					Arguments: args,
					Result:    PendingConfirmationResult,
				}}, nil) {
					return
				}
				yield(ConfirmationRequestEvent{Request: tool.NewConfirmationRequest(t, args)}, nil)
				return
			case !confirmed:
				yield(ToolCallResultEvent{Result: tool.CallResult{
					ID:        call.ID,
					Name:      call.Name,
					Arguments: args,
					Result:    DeclinedResult,
				}}, nil)
				return
			}
		}

		tctx := &toolContext{Context: ctx, callID: call.ID, rc: rc}

		_, span := observability.StartSpan(ctx, "agent.tool",
			attribute.String(observability.AttrAgentID, a.id),
			attribute.String(observability.AttrToolName, call.Name),
			attribute.String(observability.AttrToolCall, call.ID),
		)
		start := time.Now()

		var (
			output   any
			metadata map[string]any
			callErr  error
		)

		switch impl := t.(type) {
		case tool.StreamingTool:
			agentID := ""
			if dt, ok := t.(tool.DownstreamTool); ok {
				agentID = dt.AgentID()
			}
			for res, err := range impl.CallStreaming(tctx, args) {
				if err != nil {
					callErr = err
					break
				}
				if res == nil {
					continue
				}
				if res.Streaming {
					// Nested-agent events are forwarded only when the
					// run opted in; otherwise the stream is drained
					// silently.
					if rc.StreamDownstreamEvents && agentID != "" {
						if nested, ok := res.Content.(Event); ok {
							if !yield(DownstreamEvent{AgentID: agentID, Event: nested}, nil) {
								observability.EndSpan(span, nil)
								return
							}
						}
					}
					continue
				}
				output = res.Content
				metadata = res.Metadata
				if res.Usage != nil {
					rc.AddUsage(*res.Usage)
				}
			}

		case tool.CallableTool:
			// Synchronous callables run on their own goroutine so a
			// blocking tool cannot stall event emission. A cancelled
			// call may still complete; its result is discarded.
			type callOutcome struct {
				value any
				err   error
			}
			outc := make(chan callOutcome, 1)
			go func() {
				value, err := impl.Call(tctx, args)
				outc <- callOutcome{value: value, err: err}
			}()
			select {
			case out := <-outc:
				output, callErr = out.value, out.err
			case <-ctx.Done():
				observability.EndSpan(span, ctx.Err())
				yield(nil, ctx.Err())
				return
			}

		default:
			callErr = fmt.Errorf("tool %q is not callable", call.Name)
		}

		// Post hooks run on the raw outcome, errors included, and may
		// replace the output.
		hooked, hookErr := a.hooks.RunPost(ctx, rc, &call, output, callErr)
		if hookErr != nil {
			observability.EndSpan(span, hookErr)
			yield(nil, fmt.Errorf("post-tool hook failed: %w", hookErr))
			return
		}
		if callErr != nil {
			execErr := &ToolExecutionError{Tool: call.Name, Err: callErr}
			observability.EndSpan(span, execErr)
			yield(nil, execErr)
			return
		}
		output = hooked

		span.SetAttributes(attribute.Int64("braid.tool.duration_ms", time.Since(start).Milliseconds()))
		observability.EndSpan(span, nil)

		yield(ToolCallResultEvent{Result: tool.CallResult{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: args,
			Result:    output,
			Metadata:  metadata,
		}}, nil)
	}
}

// toolContext implements tool.Context over the request context.
type toolContext struct {
	context.Context
	callID string
	rc     *tool.RunContext
}

func (c *toolContext) CallID() string        { return c.callID }
func (c *toolContext) Run() *tool.RunContext { return c.rc }

var _ tool.Context = (*toolContext)(nil)
