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

package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("bogus"))
}

func TestSetupWritesModuleRecords(t *testing.T) {
	var buf bytes.Buffer
	prev := Setup(&buf, slog.LevelInfo)
	defer slog.SetDefault(prev)

	slog.Info("from the module", "key", "value")
	assert.Contains(t, buf.String(), "from the module")
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := Setup(&buf, slog.LevelWarn)
	defer slog.SetDefault(prev)

	slog.Info("too quiet")
	assert.Empty(t, buf.String())

	slog.Warn("loud enough")
	assert.Contains(t, buf.String(), "loud enough")
}
