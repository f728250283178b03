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
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements ConversationStore on a SQL database.
// Concurrency is handled by database-level locking.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore opens a store on the given driver and DSN. Supported
// dialects: sqlite3, postgres, mysql.
func NewSQLStore(dialect, dsn string) (*SQLStore, error) {
	switch dialect {
	case "sqlite", "sqlite3":
		dialect = "sqlite3"
	case "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite3, postgres, mysql)", dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	schema := `CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		agent_name TEXT NOT NULL DEFAULT '',
		messages_json TEXT NOT NULL,
		usage_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if s.dialect == "mysql" {
		schema = strings.Replace(schema, "id TEXT PRIMARY KEY", "id VARCHAR(128) PRIMARY KEY", 1)
	}
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to migrate conversations table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders for the postgres dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save inserts or replaces a conversation.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	usage, err := json.Marshal(rec.Usage)
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}

	now := time.Now().UTC()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}

	var query string
	switch s.dialect {
	case "mysql":
		query = `INSERT INTO conversations (id, agent_name, messages_json, usage_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE agent_name = VALUES(agent_name), messages_json = VALUES(messages_json),
			usage_json = VALUES(usage_json), updated_at = VALUES(updated_at)`
	default: // sqlite, postgres
		query = `INSERT INTO conversations (id, agent_name, messages_json, usage_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET agent_name = excluded.agent_name, messages_json = excluded.messages_json,
			usage_json = excluded.usage_json, updated_at = excluded.updated_at`
	}

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		rec.ID, rec.AgentName, string(messages), string(usage), created, now)
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", rec.ID, err)
	}
	return nil
}

// Load returns a conversation by id.
func (s *SQLStore) Load(ctx context.Context, id string) (*Record, error) {
	query := s.rebind(`SELECT id, agent_name, messages_json, usage_json, created_at, updated_at
		FROM conversations WHERE id = ?`)

	var (
		rec          Record
		messagesJSON string
		usageJSON    string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.AgentName, &messagesJSON, &usageJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(usageJSON), &rec.Usage); err != nil {
		return nil, fmt.Errorf("failed to decode usage for %s: %w", id, err)
	}
	return &rec, nil
}

// List returns the stored conversation ids, most recent first.
func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a conversation.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ ConversationStore = (*SQLStore)(nil)
