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

package tool

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
)

func newEcho(t *testing.T, name string) CallableTool {
	t.Helper()
	echo, err := NewCallable(name, "echoes the input", nil,
		func(ctx Context, args map[string]any) (any, error) {
			return args["x"], nil
		})
	require.NoError(t, err)
	return echo
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(newEcho(t, "echo"), newEcho(t, "echo"))
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "echo", dup.Name)
}

func TestRegistryMergeCollision(t *testing.T) {
	reg, err := NewRegistry(newEcho(t, "calc"))
	require.NoError(t, err)

	merged, err := reg.Merge(newEcho(t, "search"))
	require.NoError(t, err)
	assert.Equal(t, []string{"calc", "search"}, merged.Names())

	_, err = reg.Merge(newEcho(t, "calc"))
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "calc", dup.Name)
}

func TestRegistryMergeDoesNotMutateOriginal(t *testing.T) {
	reg, err := NewRegistry(newEcho(t, "calc"))
	require.NoError(t, err)
	_, err = reg.Merge(newEcho(t, "search"))
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistrySchemas(t *testing.T) {
	echo, err := NewCallable("echo", "echoes", map[string]any{"type": "object"},
		func(ctx Context, args map[string]any) (any, error) { return nil, nil })
	require.NoError(t, err)

	reg, err := NewRegistry(echo)
	require.NoError(t, err)

	schemas := reg.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, model.ToolSchema{
		Name:        "echo",
		Description: "echoes",
		Parameters:  map[string]any{"type": "object"},
	}, schemas[0])
}

var hexID = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestConfirmationIDShape(t *testing.T) {
	id := ConfirmationID("echo", map[string]any{"x": "hello"})
	assert.Regexp(t, hexID, id)
}

func TestConfirmationIDStability(t *testing.T) {
	a := ConfirmationID("echo", map[string]any{"x": "hello"})
	b := ConfirmationID("echo", map[string]any{"x": "hello"})
	assert.Equal(t, a, b)
}

func TestConfirmationIDArgumentOrderIndependent(t *testing.T) {
	a := ConfirmationID("t", map[string]any{"a": 1, "b": 2})
	b := ConfirmationID("t", map[string]any{"b": 2, "a": 1})
	assert.Equal(t, a, b)
}

func TestConfirmationIDDiscriminates(t *testing.T) {
	base := ConfirmationID("echo", map[string]any{"x": "hello"})
	assert.NotEqual(t, base, ConfirmationID("echo", map[string]any{"x": "bye"}))
	assert.NotEqual(t, base, ConfirmationID("other", map[string]any{"x": "hello"}))
}

func TestConfirmationIDNilArguments(t *testing.T) {
	assert.Equal(t,
		ConfirmationID("echo", nil),
		ConfirmationID("echo", map[string]any{}))
}

func TestDependenciesFreezeOnFirstRead(t *testing.T) {
	rc := NewRunContext()
	require.NoError(t, rc.Deps().Set("db-handle"))
	require.NoError(t, rc.Deps().Set("replaced"))

	assert.Equal(t, "replaced", rc.Deps().Value())

	err := rc.Deps().Set("after-read")
	assert.ErrorIs(t, err, ErrDependenciesFrozen)
	assert.Equal(t, "replaced", rc.Deps().Value())
}

func TestRunContextConfirmations(t *testing.T) {
	rc := NewRunContext()
	_, ok := rc.ConfirmationFor("abc")
	assert.False(t, ok)

	rc.Confirm("abc", true)
	rc.Confirm("def", false)

	confirmed, ok := rc.ConfirmationFor("abc")
	assert.True(t, ok)
	assert.True(t, confirmed)

	confirmed, ok = rc.ConfirmationFor("def")
	assert.True(t, ok)
	assert.False(t, confirmed)
}

func TestRunContextIgnoresEmptyConfirmationIDs(t *testing.T) {
	rc := NewRunContext()
	rc.SetConfirmations([]ConfirmationDecision{{Confirmed: true}})
	_, ok := rc.ConfirmationFor("")
	assert.False(t, ok)
}

func TestRunContextUsageAccumulates(t *testing.T) {
	rc := NewRunContext()
	rc.AddUsage(model.Usage{TotalTokens: 5, Requests: 1})
	rc.AddUsage(model.Usage{TotalTokens: 3, Requests: 1})
	assert.Equal(t, 8, rc.Usage().TotalTokens)
	assert.Equal(t, 2, rc.Usage().Requests)
}

func TestHookChainMutatesArguments(t *testing.T) {
	hooks := Hooks{
		Pre: []PreToolHook{
			func(ctx context.Context, rc *RunContext, call *conversation.ToolCall, prev PreToolResult) (PreToolResult, error) {
				prev.Arguments = map[string]any{"x": "rewritten"}
				return prev, nil
			},
			func(ctx context.Context, rc *RunContext, call *conversation.ToolCall, prev PreToolResult) (PreToolResult, error) {
				prev.Arguments["extra"] = true
				return prev, nil
			},
		},
	}

	call := &conversation.ToolCall{Name: "echo", Arguments: map[string]any{"x": "orig"}}
	result, err := hooks.RunPre(context.Background(), NewRunContext(), call)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, result.Decision)
	assert.Equal(t, map[string]any{"x": "rewritten", "extra": true}, result.Arguments)
}

func TestHookChainDenyShortCircuits(t *testing.T) {
	var secondRan bool
	hooks := Hooks{
		Pre: []PreToolHook{
			func(ctx context.Context, rc *RunContext, call *conversation.ToolCall, prev PreToolResult) (PreToolResult, error) {
				prev.Decision = DecisionDeny
				prev.Reason = "not allowed"
				return prev, nil
			},
			func(ctx context.Context, rc *RunContext, call *conversation.ToolCall, prev PreToolResult) (PreToolResult, error) {
				secondRan = true
				return prev, nil
			},
		},
	}

	result, err := hooks.RunPre(context.Background(), NewRunContext(), &conversation.ToolCall{Name: "rm"})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, result.Decision)
	assert.Equal(t, "not allowed", result.Reason)
	assert.False(t, secondRan)
}

func TestPostHookReplacesOutput(t *testing.T) {
	hooks := Hooks{
		Post: []PostToolHook{
			func(ctx context.Context, rc *RunContext, call *conversation.ToolCall, output any, callErr error) (any, error) {
				return "redacted", nil
			},
		},
	}

	out, err := hooks.RunPost(context.Background(), NewRunContext(), &conversation.ToolCall{Name: "echo"}, "secret", nil)
	require.NoError(t, err)
	assert.Equal(t, "redacted", out)
}
