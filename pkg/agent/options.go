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

import "github.com/kadirpekel/braid/pkg/model"

// DefaultMaxTurns bounds a run when MaxTurns is not given.
const DefaultMaxTurns = 10

// Options are the per-run tunables. Pointer fields distinguish "not
// given" from explicit values; options compose by rightward override.
type Options struct {
	// LLMOptions are forwarded to the backend. Nil falls back to the
	// backend's own defaults.
	LLMOptions *model.Options

	// MaxTurns bounds the number of turns. Nil means the default
	// (10); a pointer to a value <= 0 means unbounded.
	MaxTurns *int

	// MaxTotalTokens bounds the cumulative total token count. Nil
	// means unbounded.
	MaxTotalTokens *int

	// MaxPromptTokens bounds the cumulative prompt token count. Nil
	// means unbounded.
	MaxPromptTokens *int

	// MaxCompletionTokens bounds the cumulative completion token
	// count. Nil means unbounded.
	MaxCompletionTokens *int

	// LogReasoning persists reasoning traces and emits them as
	// events.
	LogReasoning bool

	// ParallelToolCalling runs a turn's tool calls concurrently;
	// their results are forwarded in completion order.
	ParallelToolCalling bool
}

// Merge overlays other onto o, rightward: fields given in other win.
// Neither operand is mutated.
func (o *Options) Merge(other *Options) *Options {
	merged := &Options{}
	if o != nil {
		*merged = *o
		merged.LLMOptions = o.LLMOptions.Clone()
	}
	if other == nil {
		return merged
	}

	if other.LLMOptions != nil {
		merged.LLMOptions = other.LLMOptions.Clone()
	}
	if other.MaxTurns != nil {
		v := *other.MaxTurns
		merged.MaxTurns = &v
	}
	if other.MaxTotalTokens != nil {
		v := *other.MaxTotalTokens
		merged.MaxTotalTokens = &v
	}
	if other.MaxPromptTokens != nil {
		v := *other.MaxPromptTokens
		merged.MaxPromptTokens = &v
	}
	if other.MaxCompletionTokens != nil {
		v := *other.MaxCompletionTokens
		merged.MaxCompletionTokens = &v
	}
	if other.LogReasoning {
		merged.LogReasoning = true
	}
	if other.ParallelToolCalling {
		merged.ParallelToolCalling = true
	}
	return merged
}

// maxTurns resolves the effective turn bound: the bound and whether
// one applies.
func (o *Options) maxTurns() (limit int, bounded bool) {
	if o == nil || o.MaxTurns == nil {
		return DefaultMaxTurns, true
	}
	if *o.MaxTurns <= 0 {
		return 0, false
	}
	return *o.MaxTurns, true
}

// Int returns a pointer to v, for option literals.
func Int(v int) *int {
	return &v
}
