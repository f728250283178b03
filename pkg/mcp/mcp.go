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

// Package mcp manages long-lived sessions to Model Context Protocol
// tool servers.
//
// Three transports are supported: stdio (subprocess, via the mcp-go
// client), SSE, and streamable-HTTP (both JSON-RPC over HTTP with
// SSE response reading). Sessions expose the standard list_tools and
// call_tool RPCs, with an optional tool-list cache invalidated
// explicitly.
//
// Lifecycle is explicit: Connect, then Cleanup, typically via
//
//	if err := mcp.Use(ctx, server, func(ctx context.Context) error {
//	    ...
//	}); err != nil { ... }
//
// Reconnection is not automatic; re-enter the scope to reconnect.
package mcp

import (
	"context"
	"errors"

	"github.com/kadirpekel/braid/pkg/tool"
)

// ConnState is a session's connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateClosing      ConnState = "closing"
	StateClosed       ConnState = "closed"
)

// ErrNotConnected is returned when a session operation requires a
// connected session.
var ErrNotConnected = errors.New("mcp: server not connected, call Connect first")

// ToolInfo describes one tool advertised by a server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Server is a configured MCP tool server.
type Server interface {
	// Name returns a readable name for the server.
	Name() string

	// Connect establishes the transport and performs the initialize
	// handshake. Any failure triggers a full teardown before the
	// error propagates. Connecting an already connected session is a
	// no-op.
	Connect(ctx context.Context) error

	// Cleanup tears the session down. It is safe to call on a
	// never-connected or already cleaned session.
	Cleanup(ctx context.Context) error

	// State returns the current connection state.
	State() ConnState

	// ListTools returns the server's tools, served from cache when
	// caching is enabled and the cache is clean. Fails when not
	// connected.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// CallTool invokes a tool on the server. Fails when not
	// connected.
	CallTool(ctx context.Context, name string, arguments map[string]any) (any, error)

	// InvalidateToolsCache marks the tool-list cache dirty.
	InvalidateToolsCache()

	// Tools returns the server's tools wrapped for an agent's
	// registry. Subject to the same caching as ListTools.
	Tools(ctx context.Context) ([]tool.Tool, error)
}

// Use runs fn inside a connect/cleanup scope. Cleanup happens even
// when fn returns an error.
func Use(ctx context.Context, s Server, fn func(ctx context.Context) error) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Cleanup(ctx)
	return fn(ctx)
}
