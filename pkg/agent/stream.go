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
	"iter"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
	"github.com/kadirpekel/braid/pkg/observability"
	"github.com/kadirpekel/braid/pkg/tool"
)

// clientCallIDPrefix marks tool-call ids minted locally for models
// that return none. Ids are needed to pair calls with results.
const clientCallIDPrefix = "braid-"

// RunStreaming starts a streaming run and returns its event sequence
// wrapped in a collector.
//
// The producer enforces the per-turn ordering documented on Event.
// Abandoning the iteration cancels the run: no further backend calls
// are scheduled, parallel tool invocations are cancelled at the next
// cooperative yield, and in-flight synchronous tools may finish with
// their results discarded.
//
// An error terminates the sequence immediately, with no usage or
// conversation trailers: consumers must treat the absence of the
// Conversation event as a failed run.
func (a *Agent) RunStreaming(ctx context.Context, input any, opts ...RunOption) *StreamResult {
	s := newRunSettings(opts...)

	seq := a.streamInternal(ctx, input, s)

	if len(s.postProcessors) > 0 {
		if err := validatePostProcessors(s.postProcessors, s.allowNonStreaming); err != nil {
			return newStreamResult(failedSeq(err))
		}
		seq = a.applyStreamingProcessors(ctx, seq, s.postProcessors)
	}

	result := newStreamResult(seq)
	if s.allowNonStreaming {
		result.finalize = func(r *StreamResult) {
			a.applyAggregateProcessors(ctx, r, s.postProcessors)
		}
	}
	return result
}

// applyAggregateProcessors runs plain post-processors on the
// collected aggregate once the stream has ended.
func (a *Agent) applyAggregateProcessors(ctx context.Context, r *StreamResult, processors []PostProcessor) {
	res := &Result{
		Content:   r.Content,
		History:   r.History,
		ToolCalls: r.ToolCalls,
		Usage:     r.Usage,
	}
	for _, p := range processors {
		if _, streaming := p.(StreamingPostProcessor); streaming {
			continue
		}
		next, err := p.Process(ctx, res, a)
		if err != nil {
			r.Err = err
			return
		}
		res = next
	}
	r.Content = res.Content
	r.History = res.History
	r.ToolCalls = res.ToolCalls
	r.Usage = res.Usage
}

func failedSeq(err error) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		yield(nil, err)
	}
}

func (a *Agent) applyStreamingProcessors(ctx context.Context, seq iter.Seq2[Event, error], processors []PostProcessor) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for ev, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, p := range processors {
				sp, ok := p.(StreamingPostProcessor)
				if !ok {
					continue // plain processors run on the aggregate
				}
				ev, err = sp.ProcessEvent(ctx, ev)
				if err != nil {
					yield(nil, err)
					return
				}
				if ev == nil {
					break
				}
			}
			if ev == nil {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (a *Agent) streamInternal(ctx context.Context, input any, s *runSettings) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		rc := s.runContext
		rc.RegisterAgent(a)

		merged := a.defaultOptions.Merge(s.options)
		llmOpts := merged.LLMOptions
		if llmOpts == nil {
			llmOpts = a.llm.DefaultOptions()
		}

		ctx, span := observability.StartSpan(ctx, "agent.run_streaming",
			attribute.String(observability.AttrAgentID, a.id),
			attribute.String(observability.AttrAgentName, a.name),
			attribute.String(observability.AttrModel, a.llm.Name()),
		)
		err := a.streamLoop(ctx, input, s, rc, merged, llmOpts, yield)
		observability.EndSpan(span, err)
		if err != nil {
			yield(nil, err)
		}
	}
}

// streamLoop is the streaming state machine. A nil return means the
// run completed (or the consumer abandoned it); a non-nil return is a
// fatal error the caller forwards.
func (a *Agent) streamLoop(
	ctx context.Context,
	input any,
	s *runSettings,
	rc *tool.RunContext,
	merged *Options,
	llmOpts *model.Options,
	yield func(Event, error) bool,
) error {
	buf, err := a.buildConversation(input)
	if err != nil {
		return err
	}
	registry, err := a.allTools(ctx)
	if err != nil {
		return err
	}

	var traces []string
	requested := make(map[string]bool)
	textOnly := false
	repeatBreak := false
	finalContent := ""
	turnCount := 0
	limit, bounded := merged.maxTurns()

	for {
		// The text-only finisher is the one turn allowed past the
		// bound.
		if bounded && turnCount >= limit && !textOnly {
			return &MaxTurnsExceededError{Limit: limit}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := checkTokenLimits(merged, rc.Usage(), buf.Messages(), a.llm); err != nil {
			return err
		}

		req := &model.Request{Options: clampLLMOptions(llmOpts, merged, rc.Usage())}
		if !textOnly {
			req.Tools = registry.Schemas()
			if turnCount == 0 {
				req.ToolChoice = s.toolChoice
			}
		}

		var (
			content    strings.Builder
			toolChunks []conversation.ToolCall
			turnUsage  model.Usage
		)

		for chunk, err := range a.llm.GenerateStreaming(ctx, buf.Messages(), req) {
			if err != nil {
				return err
			}
			switch c := chunk.(type) {
			case model.TextChunk:
				content.WriteString(c.Text)
				if !yield(TextEvent{Text: c.Text}, nil) {
					return nil
				}
			case model.ReasoningChunk:
				if merged.LogReasoning {
					traces = append(traces, c.Text)
					if !yield(ReasoningEvent{Text: c.Text}, nil) {
						return nil
					}
				}
			case model.ToolCallChunk:
				if textOnly {
					// The finisher turn is never allowed to call
					// tools; stray calls are dropped.
					continue
				}
				tc := conversation.ToolCall{
					ID:        c.ID,
					Type:      conversation.ToolCallTypeFunction,
					Name:      c.Name,
					Arguments: c.Arguments,
				}
				if tc.ID == "" {
					tc.ID = clientCallIDPrefix + uuid.NewString()
				}
				toolChunks = append(toolChunks, tc)
				if !yield(ToolCallEvent{Call: tc}, nil) {
					return nil
				}
			case model.UsageChunk:
				turnUsage = c.Usage
			}
		}

		finalContent = content.String()
		pending := make(map[string]bool)

		// The finisher turn is never allowed to dispatch tools.
		if len(toolChunks) > 0 && !textOnly {
			buf.AppendAssistant(finalContent, toolChunks...)

			for ev, err := range a.executeToolCalls(ctx, toolChunks, registry, rc, merged.ParallelToolCalling) {
				if err != nil {
					return err
				}
				if e, ok := ev.(ConfirmationRequestEvent); ok {
					pending[e.Request.ConfirmationID] = true
				}
				if e, ok := ev.(ToolCallResultEvent); ok {
					// All results enter the transcript, pending
					// confirmations included, so the model sees them
					// next turn.
					buf.AppendToolResult(e.Result.ID, e.Result.Name, e.Result.Arguments, e.Result.Result)
				}
				if !yield(ev, nil) {
					return nil
				}
			}
		}

		rc.AddUsage(turnUsage)
		if !yield(UsageEvent{Usage: rc.Usage()}, nil) {
			return nil
		}

		turnCount++

		if len(pending) > 0 {
			// Re-encountering ids already asked for earlier in this
			// run breaks instead of looping forever.
			if intersects(pending, requested) {
				repeatBreak = true
				break
			}
			for id := range pending {
				requested[id] = true
			}
			textOnly = true
			continue
		}

		if len(toolChunks) == 0 || textOnly {
			break
		}
	}

	if !repeatBreak {
		buf.AppendAssistant(finalContent)
	}
	if a.keepHistory {
		a.history = buf.Messages()
	}

	yield(ConversationEvent{Messages: buf.Messages()}, nil)
	return nil
}
