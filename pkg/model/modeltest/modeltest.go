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

// Package modeltest provides a scripted model.LLM for tests. Each
// backend call consumes the next script; the last script is sticky.
package modeltest

import (
	"context"
	"iter"
	"sync"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
)

// Script is one scripted backend response.
type Script struct {
	// Response is the assistant text, streamed as a single chunk.
	Response string

	// ToolCalls requested by the scripted response.
	ToolCalls []conversation.ToolCall

	// Reasoning is an optional reasoning trace.
	Reasoning string

	// Usage reported for the call. A zero Requests counts as one.
	Usage model.Usage
}

// LLM is a scripted backend.
type LLM struct {
	name     string
	defaults *model.Options

	mu      sync.Mutex
	scripts []Script
	calls   int
}

// New creates a scripted backend. With no scripts every call returns
// an empty response.
func New(scripts ...Script) *LLM {
	return &LLM{name: "mock-model", scripts: scripts}
}

// WithName sets the reported model name.
func (m *LLM) WithName(name string) *LLM {
	m.name = name
	return m
}

// WithDefaultOptions sets the client-level defaults.
func (m *LLM) WithDefaultOptions(opts *model.Options) *LLM {
	m.defaults = opts
	return m
}

// Calls returns the number of backend calls made so far.
func (m *LLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Name implements model.LLM.
func (m *LLM) Name() string { return m.name }

// DefaultOptions implements model.LLM.
func (m *LLM) DefaultOptions() *model.Options { return m.defaults }

func (m *LLM) next() Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Script
	switch {
	case len(m.scripts) == 0:
	case m.calls < len(m.scripts):
		s = m.scripts[m.calls]
	default:
		s = m.scripts[len(m.scripts)-1]
	}
	m.calls++
	if s.Usage.Requests == 0 {
		s.Usage.Requests = 1
	}
	return s
}

// Generate implements model.LLM.
func (m *LLM) Generate(ctx context.Context, conv []conversation.Message, req *model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.next()
	return &model.Response{
		Content:   s.Response,
		ToolCalls: append([]conversation.ToolCall(nil), s.ToolCalls...),
		Reasoning: s.Reasoning,
		Usage:     s.Usage,
		Metadata:  map[string]any{"model": m.name},
	}, nil
}

// GenerateStreaming implements model.LLM. Text streams as one chunk,
// then reasoning, then tool calls, then the terminal usage chunk.
func (m *LLM) GenerateStreaming(ctx context.Context, conv []conversation.Message, req *model.Request) iter.Seq2[model.Chunk, error] {
	return func(yield func(model.Chunk, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		s := m.next()
		if s.Response != "" {
			if !yield(model.TextChunk{Text: s.Response}, nil) {
				return
			}
		}
		if s.Reasoning != "" {
			if !yield(model.ReasoningChunk{Text: s.Reasoning}, nil) {
				return
			}
		}
		for _, tc := range s.ToolCalls {
			if !yield(model.ToolCallChunk{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}, nil) {
				return
			}
		}
		yield(model.UsageChunk{Usage: s.Usage}, nil)
	}
}

// CountTokens implements model.LLM by summing content lengths, which
// is monotonic in conversation growth.
func (m *LLM) CountTokens(conv []conversation.Message) int {
	total := 0
	for _, msg := range conv {
		total += len(msg.Content)
	}
	return total
}

var _ model.LLM = (*LLM)(nil)
