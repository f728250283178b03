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

import "fmt"

// TokenDimension names the budget dimension a token error refers to.
type TokenDimension string

const (
	DimensionPrompt     TokenDimension = "prompt"
	DimensionCompletion TokenDimension = "completion"
	DimensionTotal      TokenDimension = "total"
)

// ToolNotSupportedError is raised for tool-call types other than
// "function".
type ToolNotSupportedError struct {
	Type string
}

func (e *ToolNotSupportedError) Error() string {
	return fmt.Sprintf("tool call type %q is not supported", e.Type)
}

// ToolNotAvailableError is raised when a tool call references an
// unknown name.
type ToolNotAvailableError struct {
	Name string
}

func (e *ToolNotAvailableError) Error() string {
	return fmt.Sprintf("tool %q is not available", e.Name)
}

// ToolExecutionError wraps a tool failure after post-hooks have run.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// InvalidPromptInputError is raised when the agent's prompt and the
// run input cannot be combined into a conversation.
type InvalidPromptInputError struct {
	Prompt string
	Input  any
}

func (e *InvalidPromptInputError) Error() string {
	return fmt.Sprintf("cannot build a prompt from prompt=%q and input of type %T", e.Prompt, e.Input)
}

// MaxTurnsExceededError is raised when the loop exhausts its turn
// bound.
type MaxTurnsExceededError struct {
	Limit int
}

func (e *MaxTurnsExceededError) Error() string {
	return fmt.Sprintf("maximum number of turns (%d) exceeded", e.Limit)
}

// MaxTokensExceededError is raised when a cumulative counter exceeds
// its limit.
type MaxTokensExceededError struct {
	Dimension TokenDimension
	Limit     int
	Observed  int
}

func (e *MaxTokensExceededError) Error() string {
	return fmt.Sprintf("maximum %s tokens exceeded: limit %d, observed %d", e.Dimension, e.Limit, e.Observed)
}

// NextPromptOverLimitError is raised before a backend call that would
// overflow the budget.
type NextPromptOverLimitError struct {
	Dimension TokenDimension
	Limit     int
	Consumed  int
	Next      int
}

func (e *NextPromptOverLimitError) Error() string {
	return fmt.Sprintf("next prompt would exceed the %s token limit: limit %d, consumed %d, next prompt %d",
		e.Dimension, e.Limit, e.Consumed, e.Next)
}

// InvalidPostProcessorError is raised at streaming entry when a
// non-streaming processor is registered without an explicit opt-in.
type InvalidPostProcessorError struct {
	Reason string
}

func (e *InvalidPostProcessorError) Error() string {
	return fmt.Sprintf("invalid post-processor: %s", e.Reason)
}
