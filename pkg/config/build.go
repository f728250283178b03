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

package config

import (
	"fmt"
	"time"

	"github.com/kadirpekel/braid/pkg/agent"
	"github.com/kadirpekel/braid/pkg/mcp"
	"github.com/kadirpekel/braid/pkg/model"
	"github.com/kadirpekel/braid/pkg/model/openaicompat"
	"github.com/kadirpekel/braid/pkg/tool"
)

// Build instantiates the configured agent with its backend client and
// MCP servers. Session lifecycles remain the caller's: connect and
// clean up the returned servers around runs.
func (c *Config) Build(tools ...tool.Tool) (*agent.Agent, []mcp.Server, error) {
	llm, err := c.buildModel()
	if err != nil {
		return nil, nil, err
	}

	servers, err := c.buildServers()
	if err != nil {
		return nil, nil, err
	}

	ag, err := agent.New(agent.Config{
		Model:       llm,
		Name:        c.Agent.Name,
		Description: c.Agent.Description,
		Prompt:      c.Agent.Prompt,
		KeepHistory: c.Agent.KeepHistory,
		Tools:       tools,
		MCPServers:  servers,
		DefaultOptions: &agent.Options{
			MaxTurns:            c.Agent.MaxTurns,
			MaxTotalTokens:      c.Agent.MaxTotalTokens,
			MaxPromptTokens:     c.Agent.MaxPromptTokens,
			MaxCompletionTokens: c.Agent.MaxCompletionTokens,
			LogReasoning:        c.Agent.LogReasoning,
			ParallelToolCalling: c.Agent.ParallelToolCalling,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return ag, servers, nil
}

func (c *Config) buildModel() (model.LLM, error) {
	switch c.Model.Provider {
	case "", "openai-compatible", "openai", "litellm":
		return openaicompat.New(openaicompat.Config{
			APIKey:     c.Model.APIKey,
			Model:      c.Model.Name,
			BaseURL:    c.Model.BaseURL,
			Timeout:    c.Model.Timeout(),
			MaxRetries: c.Model.MaxRetries,
			DefaultOptions: &model.Options{
				MaxTokens:   c.Model.MaxTokens,
				Temperature: c.Model.Temp,
			},
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
}

func (c *Config) buildServers() ([]mcp.Server, error) {
	var servers []mcp.Server
	for _, srv := range c.MCPServers {
		var (
			server mcp.Server
			err    error
		)
		switch srv.Transport {
		case "stdio":
			server, err = mcp.NewStdioServer(mcp.StdioConfig{
				Name:           srv.Name,
				Command:        srv.Command,
				Args:           srv.Args,
				Env:            srv.Env,
				Cwd:            srv.Cwd,
				CacheToolsList: srv.CacheToolsList,
			})
		case "sse":
			server, err = mcp.NewSSEServer(mcp.SSEConfig{
				Name:             srv.Name,
				URL:              srv.URL,
				Headers:          srv.Headers,
				HTTPTimeout:      time.Duration(srv.HTTPTimeoutSec) * time.Second,
				EventReadTimeout: time.Duration(srv.EventReadTimeoutSec) * time.Second,
				CacheToolsList:   srv.CacheToolsList,
			})
		case "streamable-http":
			server, err = mcp.NewStreamableHTTPServer(mcp.StreamableHTTPConfig{
				Name:             srv.Name,
				URL:              srv.URL,
				Headers:          srv.Headers,
				HTTPTimeout:      time.Duration(srv.HTTPTimeoutSec) * time.Second,
				EventReadTimeout: time.Duration(srv.EventReadTimeoutSec) * time.Second,
				TerminateOnClose: srv.TerminateOnClose,
				CacheToolsList:   srv.CacheToolsList,
			})
		}
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, nil
}
