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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/braid/pkg/conversation"
	"github.com/kadirpekel/braid/pkg/model"
)

func sampleRecord(id string) Record {
	return Record{
		ID:        id,
		AgentName: "assistant",
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Content: "hi"},
			{Role: conversation.RoleAssistant, Content: "hello"},
		},
		Usage: model.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3, Requests: 1},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRecord("conv-1")))

	rec, err := s.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "assistant", rec.AgentName)
	require.Len(t, rec.Messages, 2)
	assert.Equal(t, conversation.RoleUser, rec.Messages[0].Role)
	assert.Equal(t, 3, rec.Usage.TotalTokens)
}

func TestFileStoreLoadUnknown(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	rec := sampleRecord("conv-1")
	require.NoError(t, s.Save(ctx, rec))

	rec.Messages = append(rec.Messages, conversation.Message{Role: conversation.RoleUser, Content: "more"})
	require.NoError(t, s.Save(ctx, rec))

	loaded, err := s.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 3)
}

func TestFileStoreListMostRecentFirst(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRecord("old")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Save(ctx, sampleRecord("new")))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)
}

func TestFileStoreDelete(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRecord("conv-1")))
	require.NoError(t, s.Delete(ctx, "conv-1"))
	_, err = s.Load(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an unknown id is a no-op.
	assert.NoError(t, s.Delete(ctx, "conv-1"))
}

func TestSQLStoreRejectsUnknownDialect(t *testing.T) {
	_, err := NewSQLStore("oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported dialect")
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	s := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "SELECT $1, $2", s.rebind("SELECT ?, ?"))

	s.dialect = "sqlite3"
	assert.Equal(t, "SELECT ?, ?", s.rebind("SELECT ?, ?"))
}
