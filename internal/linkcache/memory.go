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

package linkcache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is the in-process layer.
type Memory struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemory creates an in-process cache whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Memory{c: gocache.New(ttl, ttl/2)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	e, ok := v.(Entry)
	return e, ok, nil
}

func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.c.Get(key); ok {
		if prev, ok := v.(Entry); ok && !supersedes(e, prev) {
			return nil
		}
	}
	m.c.SetDefault(key, e)
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	return m.c.ItemCount()
}
