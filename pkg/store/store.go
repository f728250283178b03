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

// Package store persists conversation transcripts for subsystems
// around the execution core (history browsing, resumable chats). The
// core itself never depends on it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
)

// ErrNotFound is returned when a conversation id is unknown.
var ErrNotFound = errors.New("store: conversation not found")

// Record is one persisted conversation.
type Record struct {
	ID        string
	AgentName string
	Messages  []conversation.Message
	Usage     model.Usage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationStore persists conversation transcripts.
type ConversationStore interface {
	// Save inserts or replaces a conversation.
	Save(ctx context.Context, rec Record) error

	// Load returns a conversation by id, or ErrNotFound.
	Load(ctx context.Context, id string) (*Record, error)

	// List returns the stored conversation ids, most recent first.
	List(ctx context.Context) ([]string, error)

	// Delete removes a conversation. Deleting an unknown id is a
	// no-op.
	Delete(ctx context.Context, id string) error

	// Close releases store resources.
	Close() error
}
