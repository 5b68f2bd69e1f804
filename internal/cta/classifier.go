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

package cta

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/bcem/campaigns/internal/ai"
	"github.com/bcem/campaigns/internal/linkcache"
	"github.com/bcem/campaigns/internal/models"
)

// AIConfidence is the confidence recorded for model answers.
const AIConfidence = 0.6

var numberedLinePattern = regexp.MustCompile(`^\s*(\d+)\s*[.):\-]\s*([A-Za-z_]+)`)

// Classifier assigns categories to links: cache first, then rules, then
// one batched model call for whatever is left.
type Classifier struct {
	cache linkcache.Cache
	model ai.Classifier
}

// NewClassifier creates a link classifier. model may be ai.Disabled.
func NewClassifier(cache linkcache.Cache, model ai.Classifier) *Classifier {
	if model == nil {
		model = ai.Disabled{}
	}
	return &Classifier{cache: cache, model: model}
}

// Categorize returns a category for every input URL. Links the model could
// not answer for are "other" and are not cached.
func (c *Classifier) Categorize(ctx context.Context, urls []string) map[string]models.Category {
	out := make(map[string]models.Category, len(urls))
	byKey := make(map[string][]string)
	var pending []string

	for _, u := range urls {
		key := NormalizeURL(u)
		if _, dup := byKey[key]; dup {
			byKey[key] = append(byKey[key], u)
			continue
		}
		byKey[key] = []string{u}

		if e, ok := c.lookup(ctx, key); ok {
			out[u] = e.Category
			continue
		}
		if cat, ok := ruleCategory(u); ok {
			out[u] = cat
			c.store(ctx, key, linkcache.Entry{Category: cat, Confidence: RuleConfidence, Source: linkcache.SourceRule})
			continue
		}
		pending = append(pending, key)
	}

	for key, cat := range c.askModel(ctx, pending) {
		out[byKey[key][0]] = cat
		c.store(ctx, key, linkcache.Entry{Category: cat, Confidence: AIConfidence, Source: linkcache.SourceAI})
	}

	// Duplicates share the first URL's answer.
	for _, group := range byKey {
		cat, ok := out[group[0]]
		if !ok {
			cat = models.CategoryOther
		}
		for _, u := range group {
			out[u] = cat
		}
	}
	return out
}

func (c *Classifier) lookup(ctx context.Context, key string) (linkcache.Entry, bool) {
	if c.cache == nil {
		return linkcache.Entry{}, false
	}
	e, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("link cache lookup failed", "key", key, "error", err)
		return linkcache.Entry{}, false
	}
	return e, ok
}

func (c *Classifier) store(ctx context.Context, key string, e linkcache.Entry) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(ctx, key, e); err != nil {
		slog.Warn("link cache write failed", "key", key, "error", err)
	}
}

// askModel sends all keys in one prompt and returns the answers it could
// parse.
func (c *Classifier) askModel(ctx context.Context, keys []string) map[string]models.Category {
	if len(keys) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Classify the purpose of each link found in a political or marketing email as one of: ")
	sb.WriteString("donation, petition, event, volunteer, other.\n")
	sb.WriteString("Answer with one line per link in the form `<number>. <category>`.\n\n")
	for i, k := range keys {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, k)
	}

	reply, err := c.model.Categorize(ctx, sb.String())
	if err != nil {
		slog.Debug("link categorization unavailable", "links", len(keys), "error", err)
		return nil
	}

	out := make(map[string]models.Category, len(keys))
	for idx, answer := range parseNumbered(reply) {
		if idx < 1 || idx > len(keys) {
			continue
		}
		if cat, ok := models.ParseCategory(answer); ok {
			out[keys[idx-1]] = cat
		}
	}
	return out
}

// parseNumbered reads "N. answer" lines into a map of lowercased answers.
func parseNumbered(reply string) map[int]string {
	out := make(map[int]string)
	for _, line := range strings.Split(reply, "\n") {
		m := numberedLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out[n] = strings.ToLower(m[2])
	}
	return out
}
