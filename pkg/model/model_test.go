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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageAddIsPointwise(t *testing.T) {
	a := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Requests: 1, EstimatedCost: 0.5}
	b := Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5, Requests: 1, EstimatedCost: 0.25}

	sum := a.Add(b)
	assert.Equal(t, 13, sum.PromptTokens)
	assert.Equal(t, 7, sum.CompletionTokens)
	assert.Equal(t, 20, sum.TotalTokens)
	assert.Equal(t, 2, sum.Requests)
	assert.InDelta(t, 0.75, sum.EstimatedCost, 1e-9)
}

func TestUsageZeroIsIdentity(t *testing.T) {
	u := Usage{PromptTokens: 7, TotalTokens: 7, Requests: 1}
	assert.Equal(t, u, u.Add(Usage{}))
	assert.Equal(t, u, Usage{}.Add(u))
	assert.True(t, Usage{}.IsZero())
	assert.False(t, u.IsZero())
}

func TestCostForKnownAndUnknownModels(t *testing.T) {
	cost := CostFor("gpt-4o", 1_000_000, 1_000_000)
	assert.InDelta(t, 12.50, cost, 1e-9)

	assert.Zero(t, CostFor("no-such-model", 1000, 1000))

	SetModelPricing("custom-deploy", Pricing{PromptPerMTok: 1.0, CompletionPerMTok: 2.0})
	assert.InDelta(t, 3.0, CostFor("custom-deploy", 1_000_000, 1_000_000), 1e-9)
}

func TestOptionsMergeRightwardOverride(t *testing.T) {
	temp := 0.2
	maxTok := 100
	left := &Options{Temperature: &temp, MaxTokens: &maxTok, StopSequences: []string{"a"}}

	newTemp := 0.9
	right := &Options{Temperature: &newTemp, Metadata: map[string]string{"k": "v"}}

	merged := left.Merge(right)
	require.NotNil(t, merged.Temperature)
	assert.Equal(t, 0.9, *merged.Temperature)
	require.NotNil(t, merged.MaxTokens)
	assert.Equal(t, 100, *merged.MaxTokens)
	assert.Equal(t, []string{"a"}, merged.StopSequences)
	assert.Equal(t, "v", merged.Metadata["k"])

	// Operands are untouched.
	assert.Equal(t, 0.2, *left.Temperature)
	assert.Nil(t, left.Metadata)
}

func TestOptionsMergeNilOperands(t *testing.T) {
	temp := 0.5
	opts := &Options{Temperature: &temp}

	var nilOpts *Options
	merged := nilOpts.Merge(opts)
	require.NotNil(t, merged)
	assert.Equal(t, 0.5, *merged.Temperature)

	merged = opts.Merge(nil)
	assert.Equal(t, 0.5, *merged.Temperature)
}

func TestOptionsCloneIsDeep(t *testing.T) {
	maxTok := 10
	opts := &Options{MaxTokens: &maxTok, Metadata: map[string]string{"a": "b"}}
	clone := opts.Clone()

	*clone.MaxTokens = 99
	clone.Metadata["a"] = "changed"

	assert.Equal(t, 10, *opts.MaxTokens)
	assert.Equal(t, "b", opts.Metadata["a"])
}

func TestAssemblerBuffersFragments(t *testing.T) {
	a := NewAssembler()

	assert.Nil(t, a.Push(0, "call_1", "echo", `{"x":`))
	chunk := a.Push(0, "", "", `"hello"}`)
	require.NotNil(t, chunk)
	assert.Equal(t, "call_1", chunk.ID)
	assert.Equal(t, "echo", chunk.Name)
	assert.Equal(t, map[string]any{"x": "hello"}, chunk.Arguments)

	// The same call is never emitted twice.
	assert.Nil(t, a.Push(0, "call_1", "echo", ""))
}

func TestAssemblerEmptyArguments(t *testing.T) {
	a := NewAssembler()
	// The bare announcement is not yet complete JSON; the call
	// completes with empty arguments at end of stream.
	assert.Nil(t, a.Push(0, "call_1", "ping", ""))
	chunks := a.Flush()
	require.Len(t, chunks, 1)
	assert.Equal(t, map[string]any{}, chunks[0].Arguments)
}

func TestAssemblerInterleavedCalls(t *testing.T) {
	a := NewAssembler()
	assert.Nil(t, a.Push(0, "c0", "first", `{"a"`))
	assert.Nil(t, a.Push(1, "c1", "second", `{"b":`))
	first := a.Push(0, "", "", `:1}`)
	require.NotNil(t, first)
	assert.Equal(t, "c0", first.ID)
	second := a.Push(1, "", "", `2}`)
	require.NotNil(t, second)
	assert.Equal(t, "c1", second.ID)
}

func TestAssemblerFlushDropsIncompleteCalls(t *testing.T) {
	a := NewAssembler()
	require.NotNil(t, a.Push(2, "c2", "beta", `{}`))

	// Truncated arguments never complete, on push or flush.
	assert.Nil(t, a.Push(3, "c3", "gamma", `{"n"`))
	assert.Empty(t, a.Flush())
}
