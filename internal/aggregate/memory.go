// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aggregate

import (
	"context"
	"sort"
	"sync"

	"github.com/bcem/campaigns/internal/models"
)

// MemoryStore keeps campaigns in process. It backs dry runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	campaigns map[Key]*models.Campaign
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{campaigns: make(map[Key]*models.Campaign)}
}

func (m *MemoryStore) MergeCampaign(_ context.Context, inc Increment) (*models.Campaign, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := inc.Key()
	existing := m.campaigns[key]
	merged := Apply(existing, inc)
	if existing == nil {
		m.nextID++
		merged.ID = m.nextID
	}
	m.campaigns[key] = &merged

	out := merged
	return &out, existing == nil, nil
}

func (m *MemoryStore) CampaignExists(_ context.Context, key Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.campaigns[key]
	return ok, nil
}

// Campaigns returns a snapshot ordered by ID.
func (m *MemoryStore) Campaigns() []models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
