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
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bcem/campaigns/internal/ai"
	"github.com/bcem/campaigns/internal/models"
	"github.com/bcem/campaigns/internal/redirect"
)

const defaultConcurrency = 8

var textURLPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)

// LinkResolver follows a link to its destination.
type LinkResolver interface {
	Resolve(ctx context.Context, rawURL string) redirect.Result
}

// ProcessorConfig wires a Processor.
type ProcessorConfig struct {
	Resolver    LinkResolver
	Classifier  *Classifier
	AI          ai.Classifier
	MaxLinks    int
	Concurrency int
}

// Processor turns a message body into categorized CTA links.
type Processor struct {
	resolver    LinkResolver
	classifier  *Classifier
	model       ai.Classifier
	maxLinks    int
	concurrency int
}

// NewProcessor creates a CTA processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.AI == nil {
		cfg.AI = ai.Disabled{}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewClassifier(nil, cfg.AI)
	}
	if cfg.MaxLinks <= 0 || cfg.MaxLinks > DefaultMaxLinks {
		cfg.MaxLinks = DefaultMaxLinks
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Processor{
		resolver:    cfg.Resolver,
		classifier:  cfg.Classifier,
		model:       cfg.AI,
		maxLinks:    cfg.MaxLinks,
		concurrency: cfg.Concurrency,
	}
}

// Process extracts, resolves and categorizes the links in an HTML body.
// Links containing an excluded address are never returned.
func (p *Processor) Process(ctx context.Context, body string, excluded []string) []models.CTALink {
	cands := Extract(body, excluded, p.maxLinks)
	cands = p.dropUnsubscribes(ctx, cands)
	return p.finish(ctx, candidateURLs(cands))
}

// ProcessText does the same for a plain-text body such as an SMS.
func (p *Processor) ProcessText(ctx context.Context, text string) []models.CTALink {
	seen := make(map[string]bool)
	var cands []Candidate
	for _, m := range textURLPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?)]}'\"")
		u, ok := keepLink(m, "", nil)
		if !ok || seen[u] {
			continue
		}
		seen[u] = true
		cands = append(cands, Candidate{URL: u, Keyword: ctaKeywordPattern.MatchString(u)})
	}
	return p.finish(ctx, candidateURLs(prioritize(cands, p.maxLinks)))
}

// Refresh re-resolves and re-categorizes previously stored links.
func (p *Processor) Refresh(ctx context.Context, links []models.CTALink) []models.CTALink {
	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.OriginalURL)
	}
	return p.finish(ctx, urls)
}

func (p *Processor) finish(ctx context.Context, urls []string) []models.CTALink {
	if len(urls) == 0 {
		return []models.CTALink{}
	}
	links := p.resolveAll(ctx, urls)

	targets := make([]string, len(links))
	for i, l := range links {
		targets[i] = l.EffectiveURL()
	}
	cats := p.classifier.Categorize(ctx, targets)
	for i := range links {
		links[i].Category = cats[targets[i]]
	}
	return links
}

// resolveAll resolves tracker-shaped links concurrently. Other links are
// taken as final. Both URLs are stored without query strings.
func (p *Processor) resolveAll(ctx context.Context, urls []string) []models.CTALink {
	finals := make([]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, u := range urls {
		finals[i] = u
		if p.resolver == nil || !redirect.LooksLikeTracker(u) {
			continue
		}
		g.Go(func() error {
			res := p.resolver.Resolve(gctx, u)
			if res.Err != nil {
				slog.Debug("link resolution incomplete",
					"url", u,
					"final_url", res.FinalURL,
					"kind", res.Kind,
					"error", res.Err,
				)
			}
			if res.FinalURL != "" {
				finals[i] = res.FinalURL
			}
			return nil
		})
	}
	_ = g.Wait()

	// Trackers often share one path and differ only in the query, so a
	// stripped original alone does not identify a link.
	seen := make(map[models.CTALink]bool, len(urls))
	out := make([]models.CTALink, 0, len(urls))
	for i, u := range urls {
		link := models.CTALink{OriginalURL: StripQueryParams(u)}
		if final := StripQueryParams(finals[i]); final != link.OriginalURL {
			link.FinalURL = final
		}
		if seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
	}
	return out
}

// dropUnsubscribes asks the model about links whose text gives nothing
// away. Any failure keeps every link.
func (p *Processor) dropUnsubscribes(ctx context.Context, cands []Candidate) []Candidate {
	var idx []int
	for i, c := range cands {
		if ambiguous(c) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return cands
	}

	var sb strings.Builder
	sb.WriteString("For each email link below, answer whether it unsubscribes the reader or manages ")
	sb.WriteString("email preferences. Reply one line per link as `<number>. unsubscribe` or `<number>. keep`.\n\n")
	for n, i := range idx {
		fmt.Fprintf(&sb, "%d. text=%q url=%s\n", n+1, cands[i].Text, cands[i].URL)
	}

	reply, err := p.model.Categorize(ctx, sb.String())
	if err != nil {
		slog.Debug("unsubscribe check unavailable, keeping links", "links", len(idx), "error", err)
		return cands
	}

	drop := make(map[int]bool)
	for n, answer := range parseNumbered(reply) {
		if n >= 1 && n <= len(idx) && answer == "unsubscribe" {
			drop[idx[n-1]] = true
		}
	}
	if len(drop) == 0 {
		return cands
	}

	kept := make([]Candidate, 0, len(cands)-len(drop))
	for i, c := range cands {
		if !drop[i] {
			kept = append(kept, c)
		}
	}
	return kept
}

func candidateURLs(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.URL
	}
	return out
}
