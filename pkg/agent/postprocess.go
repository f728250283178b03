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

import "context"

// PostProcessor transforms an aggregated result. Processors run
// sequentially in registration order; each may replace content,
// metadata, or usage.
type PostProcessor interface {
	Process(ctx context.Context, result *Result, ag *Agent) (*Result, error)
}

// StreamingPostProcessor additionally transforms events in flight,
// making it usable on streaming runs. ProcessEvent may return the
// event unchanged, a replacement, or nil to drop it.
type StreamingPostProcessor interface {
	PostProcessor

	ProcessEvent(ctx context.Context, ev Event) (Event, error)
}

// validatePostProcessors enforces the streaming entry rule: every
// processor must support streaming unless the caller explicitly
// allowed non-streaming ones.
func validatePostProcessors(processors []PostProcessor, allowNonStreaming bool) error {
	if allowNonStreaming {
		return nil
	}
	for _, p := range processors {
		if _, ok := p.(StreamingPostProcessor); !ok {
			return &InvalidPostProcessorError{
				Reason: "non-streaming post-processors are not allowed unless explicitly enabled",
			}
		}
	}
	return nil
}
