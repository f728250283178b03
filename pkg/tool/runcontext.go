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
	"errors"
	"sync"

	"github.com/kadirpekel/braid/pkg/model"
)

// ErrDependenciesFrozen is returned when the dependency slot is
// mutated after it has been read.
var ErrDependenciesFrozen = errors.New("dependencies are immutable after first access")

// Dependencies is the run's dependency container. It freezes on
// first read: tools observe a stable value for the whole run.
type Dependencies struct {
	mu     sync.Mutex
	value  any
	frozen bool
}

// Set stores the dependency value. Setting after the first read is a
// runtime error.
func (d *Dependencies) Set(value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return ErrDependenciesFrozen
	}
	d.value = value
	return nil
}

// Value returns the dependency value and freezes the container.
func (d *Dependencies) Value() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
	return d.value
}

// Participant is the minimal view of an agent registered in a run
// context. The concrete type lives in the agent package.
type Participant interface {
	ID() string
}

// RunContext carries per-run state across turns and, via the caller,
// across runs of a confirmation handshake. The loop owns it; tools
// receive it read-mostly through their Context handle.
type RunContext struct {
	// StreamDownstreamEvents enables passthrough of nested-agent
	// events into the parent stream.
	StreamDownstreamEvents bool

	deps Dependencies

	mu            sync.Mutex
	usage         model.Usage
	agents        map[string]Participant
	confirmations []ConfirmationDecision
}

// NewRunContext creates an empty run context.
func NewRunContext() *RunContext {
	return &RunContext{agents: make(map[string]Participant)}
}

// Deps returns the dependency container.
func (rc *RunContext) Deps() *Dependencies {
	return &rc.deps
}

// Usage returns the cumulative usage observed so far.
func (rc *RunContext) Usage() model.Usage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.usage
}

// AddUsage folds a usage record into the cumulative total. Additions
// are applied by the loop as results are drained, so composition is
// deterministic with respect to drain order.
func (rc *RunContext) AddUsage(u model.Usage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.usage = rc.usage.Add(u)
}

// RegisterAgent records a participating agent by id.
func (rc *RunContext) RegisterAgent(p Participant) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.agents == nil {
		rc.agents = make(map[string]Participant)
	}
	rc.agents[p.ID()] = p
}

// Agent returns a registered participant, or nil.
func (rc *RunContext) Agent(id string) Participant {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.agents[id]
}

// Confirm records the caller's decision for a confirmation id.
// Decisions for ids the runtime never requested are accepted silently
// (hook-driven gating may mint its own ids).
func (rc *RunContext) Confirm(id string, confirmed bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.confirmations = append(rc.confirmations, ConfirmationDecision{
		ConfirmationID: id,
		Confirmed:      confirmed,
	})
}

// SetConfirmations replaces the decision list wholesale, as a caller
// resuming a run would.
func (rc *RunContext) SetConfirmations(decisions []ConfirmationDecision) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.confirmations = append([]ConfirmationDecision(nil), decisions...)
}

// ConfirmationFor looks up the decision for a confirmation id. The
// second return reports whether any decision is present. Entries with
// an empty id never match.
func (rc *RunContext) ConfirmationFor(id string) (confirmed, ok bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, d := range rc.confirmations {
		if d.ConfirmationID != "" && d.ConfirmationID == id {
			return d.Confirmed, true
		}
	}
	return false, false
}
