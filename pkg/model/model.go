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

// Package model defines the backend client abstraction for chat
// completion services.
//
// The interface is polymorphic over the capability set the agent loop
// needs: one-shot generation, streaming generation, and token
// counting. Concrete clients live in subpackages (openaicompat for
// delegated OpenAI-compatible services, modeltest for scripted test
// doubles); the agent loop depends only on this package.
package model

import (
	"context"
	"iter"

	"github.com/kadirpekel/braid/pkg/conversation"
)

// LLM is the contract between the agent loop and a chat backend.
//
// Implementations must be safe for use from multiple runs
// concurrently. Only the streaming interface is required by the
// streaming loop; Generate backs the aggregated run path.
type LLM interface {
	// Name returns the model identifier (used for pricing lookups).
	Name() string

	// Generate performs a single non-streaming completion.
	Generate(ctx context.Context, conv []conversation.Message, req *Request) (*Response, error)

	// GenerateStreaming performs a streaming completion. The chunk
	// sequence obeys the ordering contract documented on Chunk.
	GenerateStreaming(ctx context.Context, conv []conversation.Message, req *Request) iter.Seq2[Chunk, error]

	// CountTokens estimates the token count of a conversation. The
	// estimate may be approximate, but it must be monotonic:
	// appending a message never decreases the count.
	CountTokens(conv []conversation.Message) int

	// DefaultOptions returns the client-level option defaults, used
	// when a run supplies none.
	DefaultOptions() *Options
}

// Request carries the per-call inputs that accompany a conversation.
type Request struct {
	// Options for this call. Nil means the client defaults.
	Options *Options

	// Tools the model may call, as JSON-Schema-like mappings.
	Tools []ToolSchema

	// ToolChoice directs the model's tool usage. Nil means auto.
	ToolChoice *ToolChoice

	// OutputSchema forces structured output when non-nil.
	OutputSchema map[string]any

	// JSONMode forces a JSON response without a schema.
	JSONMode bool
}

// ToolSchema describes one tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Response is the result of a non-streaming call.
type Response struct {
	Content   string
	ToolCalls []conversation.ToolCall
	Reasoning string
	Usage     Usage
	Metadata  map[string]any
}

// ToolChoiceMode enumerates the tool-choice directives.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceNone forbids tool calls.
	ToolChoiceNone ToolChoiceMode = "none"
	// ToolChoiceRequired forces the model to pick some tool.
	ToolChoiceRequired ToolChoiceMode = "required"
	// ToolChoiceTool forces a specific tool, named in ToolChoice.Tool.
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice directs tool usage for a single call. The agent loop
// applies it only on the first turn of a run.
type ToolChoice struct {
	Mode ToolChoiceMode
	Tool string
}

// ChooseTool returns a directive forcing the named tool.
func ChooseTool(name string) *ToolChoice {
	return &ToolChoice{Mode: ToolChoiceTool, Tool: name}
}
