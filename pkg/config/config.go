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

// Package config loads agent configuration from YAML with dotenv and
// ${VAR} environment expansion.
//
//	model:
//	  provider: openai-compatible
//	  name: gpt-4o-mini
//	  api_key: ${OPENAI_API_KEY}
//	  base_url: ${LLM_GATEWAY_URL:-https://api.openai.com/v1}
//	agent:
//	  name: assistant
//	  prompt: "You are a helpful assistant"
//	  keep_history: true
//	mcp_servers:
//	  - name: search
//	    transport: stdio
//	    command: uvx
//	    args: ["mcp-server-search"]
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Model      ModelConfig       `yaml:"model" mapstructure:"model"`
	Agent      AgentConfig       `yaml:"agent" mapstructure:"agent"`
	MCPServers []MCPServerConfig `yaml:"mcp_servers" mapstructure:"mcp_servers"`
}

// ModelConfig configures the backend client.
type ModelConfig struct {
	Provider   string   `yaml:"provider" mapstructure:"provider"`
	Name       string   `yaml:"name" mapstructure:"name"`
	APIKey     string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string   `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSec int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries int      `yaml:"max_retries" mapstructure:"max_retries"`
	MaxTokens  *int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temp       *float64 `yaml:"temperature" mapstructure:"temperature"`
}

// Timeout returns the configured request timeout.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSec) * time.Second
}

// AgentConfig configures the agent itself.
type AgentConfig struct {
	Name                string `yaml:"name" mapstructure:"name"`
	Description         string `yaml:"description" mapstructure:"description"`
	Prompt              string `yaml:"prompt" mapstructure:"prompt"`
	KeepHistory         bool   `yaml:"keep_history" mapstructure:"keep_history"`
	MaxTurns            *int   `yaml:"max_turns" mapstructure:"max_turns"`
	MaxTotalTokens      *int   `yaml:"max_total_tokens" mapstructure:"max_total_tokens"`
	MaxPromptTokens     *int   `yaml:"max_prompt_tokens" mapstructure:"max_prompt_tokens"`
	MaxCompletionTokens *int   `yaml:"max_completion_tokens" mapstructure:"max_completion_tokens"`
	LogReasoning        bool   `yaml:"log_reasoning" mapstructure:"log_reasoning"`
	ParallelToolCalling bool   `yaml:"parallel_tool_calling" mapstructure:"parallel_tool_calling"`
}

// MCPServerConfig configures one remote tool server.
type MCPServerConfig struct {
	Name      string            `yaml:"name" mapstructure:"name"`
	Transport string            `yaml:"transport" mapstructure:"transport"`
	URL       string            `yaml:"url" mapstructure:"url"`
	Headers   map[string]string `yaml:"headers" mapstructure:"headers"`
	Command   string            `yaml:"command" mapstructure:"command"`
	Args      []string          `yaml:"args" mapstructure:"args"`
	Env       map[string]string `yaml:"env" mapstructure:"env"`
	Cwd       string            `yaml:"cwd" mapstructure:"cwd"`

	HTTPTimeoutSec      int  `yaml:"http_timeout_seconds" mapstructure:"http_timeout_seconds"`
	EventReadTimeoutSec int  `yaml:"event_read_timeout_seconds" mapstructure:"event_read_timeout_seconds"`
	TerminateOnClose    bool `yaml:"terminate_on_close" mapstructure:"terminate_on_close"`
	CacheToolsList      bool `yaml:"cache_tools_list" mapstructure:"cache_tools_list"`
}

// Load reads a YAML config file, after loading .env files and
// expanding ${VAR} references in every string value.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document with environment expansion applied.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded := ExpandEnvVarsInData(raw)

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(expanded); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for i, srv := range c.MCPServers {
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("mcp_servers[%d]: stdio transport requires command", i)
			}
		case "sse", "streamable-http":
			if srv.URL == "" {
				return fmt.Errorf("mcp_servers[%d]: %s transport requires url", i, srv.Transport)
			}
		case "":
			return fmt.Errorf("mcp_servers[%d]: transport is required", i)
		default:
			return fmt.Errorf("mcp_servers[%d]: unknown transport %q", i, srv.Transport)
		}
	}
	return nil
}

// LoadEnvFiles loads .env.local and .env when present.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}
	return value
}

// ExpandEnvVarsInData recursively expands ${VAR}, ${VAR:-default} and
// $VAR patterns in every string of a decoded YAML tree.
func ExpandEnvVarsInData(data any) any {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = ExpandEnvVarsInData(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result
	default:
		return v
	}
}
