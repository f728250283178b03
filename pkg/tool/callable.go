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

import "fmt"

// Func is a plain tool callable. The Context handle gives access to
// the run state for callables that need it.
type Func func(ctx Context, args map[string]any) (any, error)

// CallableOption configures a callable built with NewCallable.
type CallableOption func(*callable)

// WithConfirmation marks the tool as requiring an explicit user
// decision before execution.
func WithConfirmation() CallableOption {
	return func(c *callable) {
		c.requiresConfirmation = true
	}
}

// NewCallable wraps a function as a CallableTool. schema may be nil
// for tools that take no parameters. For typed arguments with
// generated schemas, use the functiontool package instead.
func NewCallable(name, description string, schema map[string]any, fn Func, opts ...CallableOption) (CallableTool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if description == "" {
		return nil, fmt.Errorf("tool description is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %q has no callable", name)
	}

	c := &callable{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type callable struct {
	name                 string
	description          string
	schema               map[string]any
	fn                   Func
	requiresConfirmation bool
}

func (c *callable) Name() string               { return c.name }
func (c *callable) Description() string        { return c.description }
func (c *callable) RequiresConfirmation() bool { return c.requiresConfirmation }
func (c *callable) Schema() map[string]any     { return c.schema }

func (c *callable) Call(ctx Context, args map[string]any) (any, error) {
	return c.fn(ctx, args)
}

var _ CallableTool = (*callable)(nil)
