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

import "github.com/kadirpekel/braid/pkg/model"

// Registry holds an agent's tools by unique name, preserving
// registration order for schema emission.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from the given tools. A name
// collision is a hard error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(t Tool) error {
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return &DuplicateError{Name: name}
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Merge returns a new registry containing r's tools plus the remote
// ones. Collisions across local and remote, or across remotes, are
// hard errors.
func (r *Registry) Merge(remote ...Tool) (*Registry, error) {
	merged := &Registry{tools: make(map[string]Tool, len(r.order)+len(remote))}
	for _, name := range r.order {
		if err := merged.add(r.tools[name]); err != nil {
			return nil, err
		}
	}
	for _, t := range remote {
		if err := merged.add(t); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Schemas returns the tool schemas in registration order, as sent to
// the backend.
func (r *Registry) Schemas() []model.ToolSchema {
	out := make([]model.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, ToSchema(r.tools[name]))
	}
	return out
}
