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
	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
	"github.com/kadirpekel/braid/pkg/tool"
)

// Event is one item of a streaming run. Within a turn the sequence
// obeys:
//
//	(Text | Reasoning)* → ToolCall* → (ToolCallResult | ConfirmationRequest)* → Usage
//
// and the final event of a successful run is always Conversation.
type Event interface {
	event()
}

// TextEvent is a chunk of assistant text.
type TextEvent struct {
	Text string
}

// ReasoningEvent is a fragment of the model's reasoning trace,
// emitted only when reasoning logging is enabled.
type ReasoningEvent struct {
	Text string
}

// ToolCallEvent is a complete tool call assembled from backend deltas.
type ToolCallEvent struct {
	Call conversation.ToolCall
}

// ToolCallResultEvent is the settled outcome of a tool call — a real
// result, a hook decision, or a pending-confirmation stand-in.
type ToolCallResultEvent struct {
	Result tool.CallResult
}

// ConfirmationRequestEvent asks the caller to approve a gated tool.
type ConfirmationRequestEvent struct {
	Request tool.ConfirmationRequest
}

// DownstreamEvent wraps an event re-emitted from a nested-agent tool.
type DownstreamEvent struct {
	AgentID string
	Event   Event
}

// UsageEvent carries the run's cumulative usage after a turn.
type UsageEvent struct {
	Usage model.Usage
}

// ConversationEvent carries the final transcript; it is emitted
// exactly once, as the last event of the run.
type ConversationEvent struct {
	Messages []conversation.Message
}

func (TextEvent) event()                {}
func (ReasoningEvent) event()           {}
func (ToolCallEvent) event()            {}
func (ToolCallResultEvent) event()      {}
func (ConfirmationRequestEvent) event() {}
func (DownstreamEvent) event()          {}
func (UsageEvent) event()               {}
func (ConversationEvent) event()        {}
