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

// Package conversation defines the typed transcript exchanged with a
// chat-completion backend.
//
// A transcript is an ordered sequence of messages in one of four
// shapes: system, user, assistant (optionally carrying tool calls),
// and tool-result. The Buffer type is the append-only owner of a
// transcript during an agent run.
package conversation

import "fmt"

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallTypeFunction is the only tool-call type the runtime dispatches.
const ToolCallTypeFunction = "function"

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID        string
	Type      string
	Name      string
	Arguments map[string]any
}

// Message is one entry of a transcript. The Role determines which
// fields are meaningful:
//
//   - system / user: Content only
//   - assistant: Content, plus ToolCalls when the model requested tools
//   - tool: ToolCallID, ToolName, Arguments and Result for the
//     originating call
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall

	ToolCallID string
	ToolName   string
	Arguments  map[string]any
	Result     any
}

// Buffer is an append-only transcript, except that SetSystem may
// replace the system message or insert one at the head. It is owned
// by a single agent run and mutated only by the run loop; it is not
// safe for concurrent mutation.
//
// Appending a tool result whose id has no prior unresolved tool call
// is a logic error, but it does not fail: the message is still
// appended and the violation is recorded for inspection.
type Buffer struct {
	messages   []Message
	unresolved map[string]bool
	violations []string
}

// NewBuffer creates a buffer seeded with the given history.
func NewBuffer(history ...Message) *Buffer {
	b := &Buffer{unresolved: make(map[string]bool)}
	for _, msg := range history {
		b.append(msg)
	}
	return b
}

// AppendSystem appends a system message.
func (b *Buffer) AppendSystem(content string) {
	b.append(Message{Role: RoleSystem, Content: content})
}

// AppendUser appends a user message.
func (b *Buffer) AppendUser(content string) {
	b.append(Message{Role: RoleUser, Content: content})
}

// AppendAssistant appends an assistant message, optionally carrying
// the tool calls the model requested.
func (b *Buffer) AppendAssistant(content string, toolCalls ...ToolCall) {
	b.append(Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls})
}

// AppendToolResult appends the outcome of a tool call.
func (b *Buffer) AppendToolResult(id, name string, arguments map[string]any, result any) {
	b.append(Message{
		Role:       RoleTool,
		ToolCallID: id,
		ToolName:   name,
		Arguments:  arguments,
		Result:     result,
	})
}

func (b *Buffer) append(msg Message) {
	switch msg.Role {
	case RoleAssistant:
		for _, tc := range msg.ToolCalls {
			b.unresolved[tc.ID] = true
		}
	case RoleTool:
		if !b.unresolved[msg.ToolCallID] {
			b.violations = append(b.violations,
				fmt.Sprintf("tool result %q (%s) has no unresolved tool call", msg.ToolCallID, msg.ToolName))
		}
		delete(b.unresolved, msg.ToolCallID)
	}
	b.messages = append(b.messages, msg)
}

// Messages returns the transcript as an immutable snapshot.
func (b *Buffer) Messages() []Message {
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (b *Buffer) Len() int {
	return len(b.messages)
}

// Violations returns invariant violations recorded during appends.
func (b *Buffer) Violations() []string {
	return append([]string(nil), b.violations...)
}

// HasSystem reports whether the transcript contains a system message.
func (b *Buffer) HasSystem() bool {
	for _, msg := range b.messages {
		if msg.Role == RoleSystem {
			return true
		}
	}
	return false
}

// SetSystem inserts a system message at the head of the transcript,
// or replaces the existing one.
func (b *Buffer) SetSystem(content string) {
	for i, msg := range b.messages {
		if msg.Role == RoleSystem {
			b.messages[i].Content = content
			return
		}
	}
	b.messages = append([]Message{{Role: RoleSystem, Content: content}}, b.messages...)
}
