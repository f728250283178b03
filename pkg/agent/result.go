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

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
	"github.com/kadirpekel/braid/pkg/tool"
)

// Result is the aggregated outcome of a run.
type Result struct {
	// Content is the final assistant text.
	Content string

	// Metadata is the provider metadata bag of the final response.
	Metadata map[string]any

	// History is the full transcript of the run.
	History []conversation.Message

	// ToolCalls are the settled tool-call results, in the order they
	// were recorded.
	ToolCalls []tool.CallResult

	// Usage is the run's cumulative usage.
	Usage model.Usage

	// ReasoningTraces holds the reasoning fragments of the run, when
	// reasoning logging was enabled.
	ReasoningTraces []string
}

// StreamResult is a streaming run: an event sequence that doubles as
// a collector. Iterate Events to drive the run; after the iteration
// finishes the aggregate fields are populated.
type StreamResult struct {
	seq iter.Seq2[Event, error]

	// Content accumulates the assistant text seen so far.
	Content string

	// ToolCalls accumulates settled tool-call results.
	ToolCalls []tool.CallResult

	// Downstream groups nested-agent items by agent id.
	Downstream map[string][]Event

	// History is the final transcript, set by the Conversation event.
	History []conversation.Message

	// Usage is the latest cumulative usage observed.
	Usage model.Usage

	// Err is the error that terminated the stream, if any. A nil Err
	// with an empty History still means a failed run: the absence of
	// the Conversation trailer marks failure.
	Err error

	consumed bool
	finalize func(*StreamResult)
}

func newStreamResult(seq iter.Seq2[Event, error]) *StreamResult {
	return &StreamResult{
		seq:        seq,
		Downstream: make(map[string][]Event),
	}
}

// Events returns the run's event sequence. The sequence may be
// iterated once; abandoning it cancels the run.
func (r *StreamResult) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if r.consumed {
			return
		}
		r.consumed = true
		for ev, err := range r.seq {
			if err != nil {
				r.Err = err
				yield(nil, err)
				return
			}
			r.collect(ev)
			if !yield(ev, nil) {
				return
			}
		}
		if r.finalize != nil {
			r.finalize(r)
		}
	}
}

// Drain consumes the remaining events, discarding them, and returns
// the terminal error if any. Useful when only the aggregate matters.
func (r *StreamResult) Drain(ctx context.Context) error {
	for _, err := range r.Events() {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return r.Err
}

func (r *StreamResult) collect(ev Event) {
	switch e := ev.(type) {
	case TextEvent:
		r.Content += e.Text
	case ToolCallResultEvent:
		r.ToolCalls = append(r.ToolCalls, e.Result)
	case DownstreamEvent:
		r.Downstream[e.AgentID] = append(r.Downstream[e.AgentID], e.Event)
	case UsageEvent:
		r.Usage = e.Usage
	case ConversationEvent:
		r.History = e.Messages
	}
}
