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

	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
	"github.com/kadirpekel/braid/pkg/observability"
	"github.com/kadirpekel/braid/pkg/tool"
)

// RunOption configures a single run.
type RunOption func(*runSettings)

type runSettings struct {
	options           *Options
	runContext        *tool.RunContext
	toolChoice        *model.ToolChoice
	postProcessors    []PostProcessor
	allowNonStreaming bool
}

// WithOptions supplies per-run options, overlaid on the agent's
// defaults.
func WithOptions(opts *Options) RunOption {
	return func(s *runSettings) {
		s.options = opts
	}
}

// WithRunContext supplies the run context. Callers resuming a
// confirmation handshake pass the context carrying their decisions.
func WithRunContext(rc *tool.RunContext) RunOption {
	return func(s *runSettings) {
		s.runContext = rc
	}
}

// WithToolChoice directs tool usage on the first turn.
func WithToolChoice(tc *model.ToolChoice) RunOption {
	return func(s *runSettings) {
		s.toolChoice = tc
	}
}

// WithPostProcessors registers result post-processors, applied in
// order.
func WithPostProcessors(processors ...PostProcessor) RunOption {
	return func(s *runSettings) {
		s.postProcessors = append(s.postProcessors, processors...)
	}
}

// WithNonStreamingPostProcessors opts a streaming run into plain
// post-processors; they are applied to the collected aggregate after
// the stream ends.
func WithNonStreamingPostProcessors() RunOption {
	return func(s *runSettings) {
		s.allowNonStreaming = true
	}
}

func newRunSettings(opts ...RunOption) *runSettings {
	s := &runSettings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.runContext == nil {
		s.runContext = tool.NewRunContext()
	}
	return s
}

// Run drives the agent to completion and returns the aggregated
// result.
//
// The loop alternates model calls and tool dispatch until the model
// produces a response without tool calls, a confirmation pause ends
// the run, or a budget is exhausted. Exhausting the turn bound is a
// MaxTurnsExceededError; budget violations surface as
// MaxTokensExceededError or NextPromptOverLimitError.
func (a *Agent) Run(ctx context.Context, input any, opts ...RunOption) (*Result, error) {
	s := newRunSettings(opts...)
	rc := s.runContext
	rc.RegisterAgent(a)

	merged := a.defaultOptions.Merge(s.options)
	llmOpts := merged.LLMOptions
	if llmOpts == nil {
		llmOpts = a.llm.DefaultOptions()
	}

	ctx, span := observability.StartSpan(ctx, "agent.run",
		attribute.String(observability.AttrAgentID, a.id),
		attribute.String(observability.AttrAgentName, a.name),
		attribute.String(observability.AttrModel, a.llm.Name()),
	)
	result, err := a.runLoop(ctx, input, s, rc, merged, llmOpts)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	for _, processor := range s.postProcessors {
		result, err = processor.Process(ctx, result, a)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (a *Agent) runLoop(
	ctx context.Context,
	input any,
	s *runSettings,
	rc *tool.RunContext,
	merged *Options,
	llmOpts *model.Options,
) (*Result, error) {
	buf, err := a.buildConversation(input)
	if err != nil {
		return nil, err
	}
	registry, err := a.allTools(ctx)
	if err != nil {
		return nil, err
	}

	var (
		toolCalls []tool.CallResult
		traces    []string
		resp      *model.Response
	)
	requested := make(map[string]bool)
	textOnly := false
	repeatBreak := false
	turnCount := 0
	limit, bounded := merged.maxTurns()

	for {
		// The text-only finisher is the one turn allowed past the
		// bound.
		if bounded && turnCount >= limit && !textOnly {
			return nil, &MaxTurnsExceededError{Limit: limit}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := checkTokenLimits(merged, rc.Usage(), buf.Messages(), a.llm); err != nil {
			return nil, err
		}

		req := &model.Request{Options: clampLLMOptions(llmOpts, merged, rc.Usage())}
		if !textOnly {
			req.Tools = registry.Schemas()
			if turnCount == 0 {
				req.ToolChoice = s.toolChoice
			}
		}

		resp, err = a.llm.Generate(ctx, buf.Messages(), req)
		if err != nil {
			return nil, err
		}
		rc.AddUsage(resp.Usage)

		if merged.LogReasoning && resp.Reasoning != "" {
			traces = append(traces, resp.Reasoning)
		}

		// The finisher turn is never allowed to dispatch tools.
		if len(resp.ToolCalls) == 0 || textOnly {
			break
		}

		buf.AppendAssistant(resp.Content, resp.ToolCalls...)

		pending := make(map[string]bool)
		for ev, err := range a.executeToolCalls(ctx, resp.ToolCalls, registry, rc, merged.ParallelToolCalling) {
			if err != nil {
				return nil, err
			}
			switch e := ev.(type) {
			case ToolCallResultEvent:
				toolCalls = append(toolCalls, e.Result)
				buf.AppendToolResult(e.Result.ID, e.Result.Name, e.Result.Arguments, e.Result.Result)
			case ConfirmationRequestEvent:
				pending[e.Request.ConfirmationID] = true
			}
			// Downstream events are drained silently in aggregated runs.
		}

		turnCount++

		if len(pending) > 0 {
			if intersects(pending, requested) {
				repeatBreak = true
				break
			}
			for id := range pending {
				requested[id] = true
			}
			// The next call passes no tools: the model summarizes
			// what was requested, then the run ends.
			textOnly = true
		}
	}

	if !repeatBreak {
		buf.AppendAssistant(resp.Content)
	}
	if a.keepHistory {
		a.history = buf.Messages()
	}

	return &Result{
		Content:         resp.Content,
		Metadata:        resp.Metadata,
		History:         buf.Messages(),
		ToolCalls:       toolCalls,
		Usage:           rc.Usage(),
		ReasoningTraces: traces,
	}, nil
}

func intersects(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

// checkTokenLimits enforces the token budget around a backend call:
// before the call it rejects a next prompt that would overflow, and
// it rejects cumulative counters that already exceed their limits.
func checkTokenLimits(opts *Options, usage model.Usage, conv []conversation.Message, llm model.LLM) error {
	if opts.MaxPromptTokens != nil || opts.MaxTotalTokens != nil {
		nextPrompt := llm.CountTokens(conv)
		if opts.MaxPromptTokens != nil && nextPrompt > *opts.MaxPromptTokens-usage.PromptTokens {
			return &MaxTokensExceededError{
				Dimension: DimensionPrompt,
				Limit:     *opts.MaxPromptTokens,
				Observed:  nextPrompt,
			}
		}
		if opts.MaxTotalTokens != nil && nextPrompt > *opts.MaxTotalTokens-usage.TotalTokens {
			return &NextPromptOverLimitError{
				Dimension: DimensionTotal,
				Limit:     *opts.MaxTotalTokens,
				Consumed:  usage.TotalTokens,
				Next:      nextPrompt,
			}
		}
	}

	if opts.MaxTotalTokens != nil && usage.TotalTokens > *opts.MaxTotalTokens {
		return &MaxTokensExceededError{Dimension: DimensionTotal, Limit: *opts.MaxTotalTokens, Observed: usage.TotalTokens}
	}
	if opts.MaxPromptTokens != nil && usage.PromptTokens > *opts.MaxPromptTokens {
		return &MaxTokensExceededError{Dimension: DimensionPrompt, Limit: *opts.MaxPromptTokens, Observed: usage.PromptTokens}
	}
	if opts.MaxCompletionTokens != nil && usage.CompletionTokens > *opts.MaxCompletionTokens {
		return &MaxTokensExceededError{Dimension: DimensionCompletion, Limit: *opts.MaxCompletionTokens, Observed: usage.CompletionTokens}
	}
	return nil
}

// clampLLMOptions caps the forwarded max_tokens so a response cannot
// overrun the remaining budget.
func clampLLMOptions(llmOpts *model.Options, opts *Options, usage model.Usage) *model.Options {
	var limits []int
	for _, limit := range []*int{opts.MaxTotalTokens, opts.MaxPromptTokens, opts.MaxCompletionTokens} {
		if limit != nil {
			limits = append(limits, *limit)
		}
	}
	if len(limits) == 0 {
		return llmOpts
	}

	lowest := limits[0]
	for _, v := range limits[1:] {
		if v < lowest {
			lowest = v
		}
	}

	clamped := llmOpts.Clone()
	if clamped == nil {
		clamped = &model.Options{}
	}
	remaining := lowest - usage.TotalTokens
	clamped.MaxTokens = &remaining
	return clamped
}
