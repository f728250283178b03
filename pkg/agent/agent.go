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

// Package agent implements the execution core: the turn loop that
// alternates between model generation and tool execution, in both
// aggregated (Run) and streaming (RunStreaming) form.
//
// A minimal agent:
//
//	ag, err := agent.New(agent.Config{
//	    Model:  client,
//	    Prompt: "You are a helpful assistant",
//	    Tools:  []tool.Tool{searchTool},
//	})
//	result, err := ag.Run(ctx, "What's new?")
//
// Streaming consumers iterate the event sequence and may abandon it
// at any point; abandonment cancels in-flight work at the next
// cooperative yield.
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/mcp"
	"github.com/kadirpekel/braid/pkg/model"
	"github.com/kadirpekel/braid/pkg/tool"
)

// PromptBuilder renders a structured input into the starting
// messages of a run. Agents serving typed inputs supply one instead
// of a string prompt.
type PromptBuilder interface {
	Build(input any) ([]conversation.Message, error)
}

// PromptBuilderFunc adapts a function to PromptBuilder.
type PromptBuilderFunc func(input any) ([]conversation.Message, error)

// Build implements PromptBuilder.
func (f PromptBuilderFunc) Build(input any) ([]conversation.Message, error) {
	return f(input)
}

// Config configures an agent.
type Config struct {
	// Model is the backend client. Required.
	Model model.LLM

	// Name and Description identify the agent, notably when it is
	// wrapped as a tool of another agent.
	Name        string
	Description string

	// Prompt is the agent's string prompt. With a string input it
	// becomes the system message; with a nil input it becomes the
	// user message itself.
	Prompt string

	// PromptBuilder renders structured inputs. Takes precedence over
	// Prompt when set.
	PromptBuilder PromptBuilder

	// History is the initial transcript.
	History []conversation.Message

	// KeepHistory persists the transcript across runs.
	KeepHistory bool

	// Tools are the agent's local tools.
	Tools []tool.Tool

	// MCPServers contribute remote tools, merged before each run.
	MCPServers []mcp.Server

	// Hooks observe and gate every tool call.
	Hooks tool.Hooks

	// DefaultOptions apply to every run, overridable per run.
	DefaultOptions *Options
}

// Agent drives conversations against a backend with a tool catalog.
// An Agent is safe to run repeatedly; with KeepHistory the transcript
// carries over between runs, so such agents must not run
// concurrently with themselves.
type Agent struct {
	id             string
	name           string
	description    string
	llm            model.LLM
	prompt         string
	promptBuilder  PromptBuilder
	history        []conversation.Message
	keepHistory    bool
	tools          *tool.Registry
	mcpServers     []mcp.Server
	hooks          tool.Hooks
	defaultOptions *Options
}

// New creates an agent. Duplicate tool names are a hard error.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent requires a model")
	}

	registry, err := tool.NewRegistry(cfg.Tools...)
	if err != nil {
		return nil, err
	}

	return &Agent{
		id:             uuid.NewString()[:8],
		name:           cfg.Name,
		description:    cfg.Description,
		llm:            cfg.Model,
		prompt:         cfg.Prompt,
		promptBuilder:  cfg.PromptBuilder,
		history:        append([]conversation.Message(nil), cfg.History...),
		keepHistory:    cfg.KeepHistory,
		tools:          registry,
		mcpServers:     cfg.MCPServers,
		hooks:          cfg.Hooks,
		defaultOptions: cfg.DefaultOptions,
	}, nil
}

// ID returns the agent's run-unique identifier.
func (a *Agent) ID() string { return a.id }

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.description }

// Model returns the agent's backend client.
func (a *Agent) Model() model.LLM { return a.llm }

// History returns the agent's current transcript (meaningful with
// KeepHistory).
func (a *Agent) History() []conversation.Message {
	return append([]conversation.Message(nil), a.history...)
}

// buildConversation renders the starting transcript for a run from
// the agent's prompt rules, the retained history, and the input.
func (a *Agent) buildConversation(input any) (*conversation.Buffer, error) {
	buf := conversation.NewBuffer(a.history...)

	if a.promptBuilder != nil {
		msgs, err := a.promptBuilder.Build(input)
		if err != nil {
			return nil, fmt.Errorf("prompt builder: %w", err)
		}
		for _, msg := range msgs {
			switch msg.Role {
			case conversation.RoleSystem:
				buf.SetSystem(msg.Content)
			case conversation.RoleUser:
				buf.AppendUser(msg.Content)
			case conversation.RoleAssistant:
				buf.AppendAssistant(msg.Content, msg.ToolCalls...)
			}
		}
		return buf, nil
	}

	switch in := input.(type) {
	case string:
		if a.prompt != "" {
			buf.SetSystem(a.prompt)
		}
		buf.AppendUser(in)
	case nil:
		if a.prompt == "" {
			return nil, &InvalidPromptInputError{Prompt: a.prompt, Input: input}
		}
		buf.AppendUser(a.prompt)
	default:
		return nil, &InvalidPromptInputError{Prompt: a.prompt, Input: input}
	}
	return buf, nil
}

// allTools builds the registry for a run by merging local tools with
// the tools advertised by each MCP server. Name collisions are hard
// errors. It is called once, when a run starts; the merged registry
// is not rebuilt between turns.
func (a *Agent) allTools(ctx context.Context) (*tool.Registry, error) {
	if len(a.mcpServers) == 0 {
		return a.tools, nil
	}

	var remote []tool.Tool
	for _, server := range a.mcpServers {
		tools, err := server.Tools(ctx)
		if err != nil {
			return nil, err
		}
		remote = append(remote, tools...)
	}
	return a.tools.Merge(remote...)
}

// AsTool wraps the agent as a tool of another agent. Empty name and
// description fall back to the agent's own.
func (a *Agent) AsTool(name, description string) tool.Tool {
	if name == "" {
		name = a.name
	}
	if description == "" {
		description = a.description
	}
	return newAgentTool(a, name, description)
}
