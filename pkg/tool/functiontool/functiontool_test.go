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

package functiontool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/braid/pkg/tool"
)

type weatherArgs struct {
	City  string `json:"city" jsonschema:"required,description=City name"`
	Units string `json:"units,omitempty" jsonschema:"description=Temperature units"`
}

type testContext struct {
	context.Context
	rc *tool.RunContext
}

func (c *testContext) CallID() string        { return "test-call" }
func (c *testContext) Run() *tool.RunContext { return c.rc }

func newTestContext() tool.Context {
	return &testContext{Context: context.Background(), rc: tool.NewRunContext()}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Description: "d"}, func(ctx tool.Context, args weatherArgs) (any, error) {
		return nil, nil
	})
	assert.Error(t, err)

	_, err = New(Config{Name: "n"}, func(ctx tool.Context, args weatherArgs) (any, error) {
		return nil, nil
	})
	assert.Error(t, err)
}

func TestSchemaGeneration(t *testing.T) {
	weather, err := New(Config{Name: "get_weather", Description: "Get the weather"},
		func(ctx tool.Context, args weatherArgs) (any, error) {
			return nil, nil
		})
	require.NoError(t, err)

	schema := weather.Schema()
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "city")
	assert.NotContains(t, required, "units")
}

func TestCallDecodesArguments(t *testing.T) {
	weather, err := New(Config{Name: "get_weather", Description: "Get the weather"},
		func(ctx tool.Context, args weatherArgs) (any, error) {
			return args.City + "/" + args.Units, nil
		})
	require.NoError(t, err)

	out, err := weather.Call(newTestContext(), map[string]any{"city": "Warsaw", "units": "celsius"})
	require.NoError(t, err)
	assert.Equal(t, "Warsaw/celsius", out)
}

func TestCallRejectsMalformedArguments(t *testing.T) {
	weather, err := New(Config{Name: "get_weather", Description: "Get the weather"},
		func(ctx tool.Context, args weatherArgs) (any, error) {
			return nil, nil
		})
	require.NoError(t, err)

	_, err = weather.Call(newTestContext(), map[string]any{"city": 42})
	assert.Error(t, err)
}

func TestRequiresConfirmationFlag(t *testing.T) {
	gated, err := New(Config{Name: "rm", Description: "remove", RequiresConfirmation: true},
		func(ctx tool.Context, args weatherArgs) (any, error) {
			return nil, nil
		})
	require.NoError(t, err)
	assert.True(t, gated.RequiresConfirmation())
}
