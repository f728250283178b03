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

import (
	"encoding/json"
	"strings"
)

// Assembler buffers fragmented tool-call deltas and produces one
// complete ToolCallChunk per call id. Providers stream function calls
// as (id, name) announcements followed by argument fragments; a call
// is complete once its buffered arguments parse as a JSON object.
//
// Assembler is not safe for concurrent use; each streaming response
// owns its own instance.
type Assembler struct {
	pending map[int]*pendingCall
	order   []int
	emitted map[string]bool
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		pending: make(map[int]*pendingCall),
		emitted: make(map[string]bool),
	}
}

// Push feeds one delta, keyed by the provider's call index. Any of
// id, name, and fragment may be empty on a given delta. It returns a
// completed chunk when the accumulated arguments first parse as
// complete JSON, or nil.
func (a *Assembler) Push(index int, id, name, fragment string) *ToolCallChunk {
	pc, ok := a.pending[index]
	if !ok {
		pc = &pendingCall{}
		a.pending[index] = pc
		a.order = append(a.order, index)
	}
	if id != "" {
		pc.id = id
	}
	if name != "" {
		pc.name = name
	}
	pc.args.WriteString(fragment)

	return a.tryComplete(index, pc, false)
}

func (a *Assembler) tryComplete(index int, pc *pendingCall, atEnd bool) *ToolCallChunk {
	if pc.id == "" || pc.name == "" || a.emitted[pc.id] {
		return nil
	}

	raw := pc.args.String()
	if raw == "" && !atEnd {
		return nil // only the announcement so far
	}
	args := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil // arguments still incomplete
		}
	}

	a.emitted[pc.id] = true
	delete(a.pending, index)
	return &ToolCallChunk{ID: pc.id, Name: pc.name, Arguments: args}
}

// Flush completes every remaining call whose arguments parse, in
// arrival order; a call that received no argument text completes
// with empty arguments. Called when the provider signals end of
// stream without per-call completion events.
func (a *Assembler) Flush() []*ToolCallChunk {
	var out []*ToolCallChunk
	for _, index := range a.order {
		pc, ok := a.pending[index]
		if !ok {
			continue
		}
		if chunk := a.tryComplete(index, pc, true); chunk != nil {
			out = append(out, chunk)
		}
	}
	return out
}
