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

// Package linkcache remembers the category of normalized CTA links so each
// link is classified at most once. Layers are combined fastest first; a
// write with lower confidence never replaces a higher-confidence entry.
package linkcache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bcem/campaigns/internal/models"
)

// Entry is a cached classification.
type Entry struct {
	Category   models.Category `json:"category"`
	Confidence float64         `json:"confidence"`
	Source     string          `json:"source"`
}

// Classification sources.
const (
	SourceRule   = "rule"
	SourceAI     = "ai"
	SourceManual = "manual"
)

// Cache stores link classifications keyed by normalized URL.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
}

// supersedes reports whether next may replace prev.
func supersedes(next, prev Entry) bool {
	return next.Confidence >= prev.Confidence
}

// Tiered reads through layers in order and writes to all of them.
type Tiered struct {
	layers []Cache
}

// NewTiered combines layers, fastest first. Nil layers are ignored.
func NewTiered(layers ...Cache) *Tiered {
	t := &Tiered{}
	for _, l := range layers {
		if l != nil {
			t.layers = append(t.layers, l)
		}
	}
	return t
}

// Get returns the first hit and copies it into the faster layers above it.
// A failing layer is logged and skipped.
func (t *Tiered) Get(ctx context.Context, key string) (Entry, bool, error) {
	for i, layer := range t.layers {
		e, ok, err := layer.Get(ctx, key)
		if err != nil {
			slog.Warn("link cache layer read failed", "layer", i, "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		for _, upper := range t.layers[:i] {
			if err := upper.Put(ctx, key, e); err != nil {
				slog.Debug("link cache backfill failed", "key", key, "error", err)
			}
		}
		return e, true, nil
	}
	return Entry{}, false, nil
}

// Put writes e to every layer and joins the failures.
func (t *Tiered) Put(ctx context.Context, key string, e Entry) error {
	var errs []error
	for _, layer := range t.layers {
		if err := layer.Put(ctx, key, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
