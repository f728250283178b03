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

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kadirpekel/braid/pkg/tool"
)

// transport abstracts the wire layer under a session.
type transport interface {
	connect(ctx context.Context) (initializeResult map[string]any, err error)
	listTools(ctx context.Context) ([]ToolInfo, error)
	callTool(ctx context.Context, name string, arguments map[string]any) (any, error)
	close(ctx context.Context) error
}

// Session is the shared lifecycle and caching layer over a transport.
// Created via NewStdioServer, NewSSEServer, or NewStreamableHTTPServer.
type Session struct {
	name           string
	cacheToolsList bool
	tr             transport

	// cleanupMu serializes teardowns against each other; it is the
	// only lock held across a suspension point, and only during
	// teardown. Connect does not take it.
	cleanupMu sync.Mutex

	mu         sync.Mutex
	state      ConnState
	initResult map[string]any
	cacheDirty bool
	toolsList  []ToolInfo
}

func newSession(name string, cacheToolsList bool, tr transport) *Session {
	return &Session{
		name:           name,
		cacheToolsList: cacheToolsList,
		tr:             tr,
		state:          StateDisconnected,
		// The cache starts dirty so tools are fetched at least once.
		cacheDirty: true,
	}
}

// Name returns the server name.
func (s *Session) Name() string {
	return s.name
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InitializeResult returns the server's initialize response, or nil
// when never connected.
func (s *Session) InitializeResult() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initResult
}

// Connect establishes the transport and performs the handshake. On
// any failure a full teardown runs before the error propagates.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	initResult, err := s.tr.connect(ctx)
	if err != nil {
		slog.Error("Error initializing MCP server", "server", s.name, "error", err)
		_ = s.Cleanup(ctx)
		return fmt.Errorf("mcp %s: connect: %w", s.name, err)
	}

	s.mu.Lock()
	s.initResult = initResult
	s.state = StateConnected
	s.mu.Unlock()

	slog.Info("Connected to MCP server", "server", s.name)
	return nil
}

// Cleanup closes the transport under the cleanup mutex, so concurrent
// cleanups do not interleave. Connect does not take that mutex; a
// Connect running alongside a Cleanup is not excluded. The session
// resets to an empty state.
func (s *Session) Cleanup(ctx context.Context) error {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()

	s.mu.Lock()
	s.state = StateClosing
	s.mu.Unlock()

	err := s.tr.close(ctx)
	if err != nil {
		slog.Error("Error cleaning up MCP server", "server", s.name, "error", err)
	}

	s.mu.Lock()
	s.state = StateClosed
	s.initResult = nil
	s.toolsList = nil
	s.cacheDirty = true
	s.mu.Unlock()

	return err
}

// InvalidateToolsCache marks the tool-list cache dirty.
func (s *Session) InvalidateToolsCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheDirty = true
}

// ListTools returns the server's tools. The cached list is served
// when caching is enabled and the cache is clean; otherwise one
// round-trip fetches and caches it.
func (s *Session) ListTools(ctx context.Context) ([]ToolInfo, error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	if s.cacheToolsList && !s.cacheDirty && s.toolsList != nil {
		cached := s.toolsList
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	tools, err := s.tr.listTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: list tools: %w", s.name, err)
	}

	s.mu.Lock()
	s.toolsList = tools
	s.cacheDirty = false
	s.mu.Unlock()

	return tools, nil
}

// CallTool forwards an invocation to the server.
func (s *Session) CallTool(ctx context.Context, name string, arguments map[string]any) (any, error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	s.mu.Unlock()

	result, err := s.tr.callTool(ctx, name, arguments)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: call %s: %w", s.name, name, err)
	}
	return result, nil
}

// Tools returns the server's tools wrapped for the agent registry.
func (s *Session) Tools(ctx context.Context) ([]tool.Tool, error) {
	infos, err := s.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tool.Tool, 0, len(infos))
	for _, info := range infos {
		out = append(out, &remoteTool{session: s, info: info})
	}
	return out, nil
}

// remoteTool exposes one server tool as tool.CallableTool.
type remoteTool struct {
	session *Session
	info    ToolInfo
}

func (t *remoteTool) Name() string               { return t.info.Name }
func (t *remoteTool) Description() string        { return t.info.Description }
func (t *remoteTool) RequiresConfirmation() bool { return false }
func (t *remoteTool) Schema() map[string]any     { return t.info.InputSchema }

func (t *remoteTool) Call(ctx tool.Context, args map[string]any) (any, error) {
	return t.session.CallTool(ctx, t.info.Name, args)
}

var (
	_ Server            = (*Session)(nil)
	_ tool.CallableTool = (*remoteTool)(nil)
)
