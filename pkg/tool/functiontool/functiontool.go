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

// Package functiontool creates tools from typed Go functions, with
// the parameter schema generated from struct tags.
//
//	type EchoArgs struct {
//	    Text string `json:"text" jsonschema:"required,description=Text to echo"`
//	}
//
//	echoTool, err := functiontool.New(
//	    functiontool.Config{Name: "echo", Description: "Echo the input"},
//	    func(ctx tool.Context, args EchoArgs) (any, error) {
//	        return args.Text, nil
//	    },
//	)
//
// Use functiontool for simple stateless tools. For streaming output
// or dynamic schemas, implement tool.CallableTool or
// tool.StreamingTool directly.
package functiontool

import (
	"fmt"

	"github.com/kadirpekel/braid/pkg/tool"
)

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string

	// RequiresConfirmation gates execution on a user decision.
	RequiresConfirmation bool
}

// New creates a CallableTool from a typed function. Args must be a
// struct whose json / jsonschema tags define the parameters.
func New[Args any](cfg Config, fn func(tool.Context, Args) (any, error)) (tool.CallableTool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("tool description is required")
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		config: cfg,
		fn:     fn,
		schema: schema,
	}, nil
}

// functionTool implements tool.CallableTool by wrapping a typed function.
type functionTool[Args any] struct {
	config Config
	fn     func(tool.Context, Args) (any, error)
	schema map[string]any
}

func (t *functionTool[Args]) Name() string               { return t.config.Name }
func (t *functionTool[Args]) Description() string        { return t.config.Description }
func (t *functionTool[Args]) RequiresConfirmation() bool { return t.config.RequiresConfirmation }
func (t *functionTool[Args]) Schema() map[string]any     { return t.schema }

// Call decodes the arguments into the typed struct and invokes the
// function.
func (t *functionTool[Args]) Call(ctx tool.Context, args map[string]any) (any, error) {
	var typedArgs Args
	if err := mapToStruct(args, &typedArgs); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}
	return t.fn(ctx, typedArgs)
}

// Verify interface compliance at compile time
var _ tool.CallableTool = (*functionTool[struct{}])(nil)
