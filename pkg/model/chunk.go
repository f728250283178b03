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

package model

// Chunk is one item of a streaming response. Within a single
// response, the sequence obeys:
//
//   - text and reasoning chunks preserve generation order
//   - every ToolCallChunk follows the text chunks that preceded it in
//     the underlying stream
//   - the UsageChunk appears exactly once, as the final non-error chunk
//
// Providers that emit fragmented tool-call deltas must assemble them
// internally (see Assembler) and emit a single ToolCallChunk per call
// id once the arguments parse as complete JSON.
type Chunk interface {
	chunk()
}

// TextChunk is a piece of generated text.
type TextChunk struct {
	Text string
}

// ToolCallChunk is a fully assembled tool call.
type ToolCallChunk struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ReasoningChunk is a fragment of the model's reasoning trace.
type ReasoningChunk struct {
	Text string
}

// UsageChunk is the terminal usage record of a streaming response.
type UsageChunk struct {
	Usage Usage
}

func (TextChunk) chunk()      {}
func (ToolCallChunk) chunk()  {}
func (ReasoningChunk) chunk() {}
func (UsageChunk) chunk()     {}
