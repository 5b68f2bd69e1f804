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

// Package dedup remembers which physical messages have already been counted,
// so overlapping scan windows do not count the same message twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a counted message is remembered. It must
	// exceed the widest scan lookback.
	DefaultTTL = 30 * 24 * time.Hour

	keyPrefix = "campaigns:seen:"
)

// Filter tracks which observation keys have been counted.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{rdb: rdb, ttl: ttl}
}

// Seen returns the subset of keys that were already marked.
func (f *Filter) Seen(ctx context.Context, keys []string) (map[string]bool, error) {
	seen := make(map[string]bool)
	if len(keys) == 0 {
		return seen, nil
	}

	pipe := f.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Exists(ctx, keyPrefix+k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("dedup EXISTS: %w", err)
	}

	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			seen[keys[i]] = true
		}
	}
	return seen, nil
}

// Mark records keys as counted. Existing marks keep their original expiry.
func (f *Filter) Mark(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	pipe := f.rdb.Pipeline()
	for _, k := range keys {
		pipe.SetNX(ctx, keyPrefix+k, 1, f.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}
