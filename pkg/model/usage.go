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

package model

import "sync"

// Usage is the cumulative token accounting of a run. Composition is
// pointwise addition, so usage records form a monoid with the zero
// value as identity.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Requests         int
	EstimatedCost    float64
}

// Add returns the pointwise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		Requests:         u.Requests + other.Requests,
		EstimatedCost:    u.EstimatedCost + other.EstimatedCost,
	}
}

// IsZero reports whether u is the monoid identity.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Pricing holds per-model unit prices in USD per million tokens.
type Pricing struct {
	PromptPerMTok     float64
	CompletionPerMTok float64
}

var (
	pricingMu sync.RWMutex

	// Prices for common delegated models. Operators register their own
	// deployments with SetModelPricing; unknown models cost zero.
	modelPricing = map[string]Pricing{
		"gpt-4o":          {PromptPerMTok: 2.50, CompletionPerMTok: 10.00},
		"gpt-4o-mini":     {PromptPerMTok: 0.15, CompletionPerMTok: 0.60},
		"gpt-4.1":         {PromptPerMTok: 2.00, CompletionPerMTok: 8.00},
		"gpt-4.1-mini":    {PromptPerMTok: 0.40, CompletionPerMTok: 1.60},
		"o3":              {PromptPerMTok: 2.00, CompletionPerMTok: 8.00},
		"gpt-3.5-turbo":   {PromptPerMTok: 0.50, CompletionPerMTok: 1.50},
		"llama-3.1-70b":   {PromptPerMTok: 0.00, CompletionPerMTok: 0.00},
		"llama-3.1-8b":    {PromptPerMTok: 0.00, CompletionPerMTok: 0.00},
		"mistral-large":   {PromptPerMTok: 2.00, CompletionPerMTok: 6.00},
		"deepseek-chat":   {PromptPerMTok: 0.27, CompletionPerMTok: 1.10},
		"gemini-2.0-flash": {PromptPerMTok: 0.10, CompletionPerMTok: 0.40},
	}
)

// SetModelPricing registers or overrides the unit prices for a model.
func SetModelPricing(model string, p Pricing) {
	pricingMu.Lock()
	defer pricingMu.Unlock()
	modelPricing[model] = p
}

// CostFor estimates the monetary cost of the given token counts for a
// model. Unknown models cost zero.
func CostFor(model string, promptTokens, completionTokens int) float64 {
	pricingMu.RLock()
	p, ok := modelPricing[model]
	pricingMu.RUnlock()
	if !ok {
		return 0
	}
	return float64(promptTokens)*p.PromptPerMTok/1e6 +
		float64(completionTokens)*p.CompletionPerMTok/1e6
}
