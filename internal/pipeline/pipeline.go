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

// Package pipeline runs one scan: collect observations, detect campaigns,
// extract and classify their calls to action, attribute them and merge the
// results into the campaign store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/campaigns/internal/aggregate"
	"github.com/bcem/campaigns/internal/attribution"
	"github.com/bcem/campaigns/internal/cta"
	"github.com/bcem/campaigns/internal/detect"
	"github.com/bcem/campaigns/internal/mailbox"
	"github.com/bcem/campaigns/internal/models"
)

// Collector gathers observations from every account.
type Collector interface {
	Collect(ctx context.Context, accounts []mailbox.Account, since time.Time) []models.EmailObservation
}

// SeenFilter tracks which messages earlier runs already counted.
type SeenFilter interface {
	Seen(ctx context.Context, keys []string) (map[string]bool, error)
	Mark(ctx context.Context, keys []string) error
}

// LinkProcessor turns an HTML body into categorized CTA links.
type LinkProcessor interface {
	Process(ctx context.Context, body string, excluded []string) []models.CTALink
}

// Attributor maps a campaign to an entity.
type Attributor interface {
	Attribute(ctx context.Context, in attribution.Input) (*attribution.Assignment, error)
}

// Aggregator merges increments into stored campaigns.
type Aggregator interface {
	Merge(ctx context.Context, inc aggregate.Increment) (*aggregate.Result, error)
	Exists(ctx context.Context, key aggregate.Key) (bool, error)
}

// ReviewPublisher queues unassigned campaigns for a human.
type ReviewPublisher interface {
	PublishReview(ctx context.Context, c *models.Campaign) (string, error)
}

// Config wires a Pipeline. Seen and Review may be nil.
type Config struct {
	Accounts   []mailbox.Account
	Seeds      []string
	Collector  Collector
	Detector   *detect.Detector
	Seen       SeenFilter
	Links      LinkProcessor
	Attributor Attributor
	Aggregator Aggregator
	Review     ReviewPublisher
}

// Pipeline executes scans.
type Pipeline struct {
	cfg Config
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Detector == nil {
		cfg.Detector = detect.NewDetector(detect.Config{SeedAddresses: cfg.Seeds})
	}
	return &Pipeline{cfg: cfg}
}

// Failure records a campaign that could not be merged.
type Failure struct {
	SenderAddress string `json:"sender_address"`
	Subject       string `json:"subject"`
	Error         string `json:"error"`
}

// RunResult summarises one scan.
type RunResult struct {
	RunID        string    `json:"run_id"`
	Observations int       `json:"observations"`
	AlreadySeen  int       `json:"already_seen"`
	Candidates   int       `json:"candidates"`
	Created      int       `json:"created"`
	Updated      int       `json:"updated"`
	Assigned     int       `json:"assigned"`
	Queued       int       `json:"queued"`
	Failed       int       `json:"failed"`
	Failures     []Failure `json:"failures,omitempty"`
}

// group is every candidate of one run sharing a campaign key.
type group struct {
	inc    aggregate.Increment
	sample models.EmailObservation
	keys   []string
}

// Run scans every account for messages received since the given time.
// A failing campaign is recorded and skipped; only setup problems abort.
func (p *Pipeline) Run(ctx context.Context, since time.Time) (*RunResult, error) {
	if p.cfg.Collector == nil || p.cfg.Aggregator == nil {
		return nil, fmt.Errorf("pipeline: collector and aggregator are required")
	}

	res := &RunResult{RunID: uuid.New().String()}
	log := slog.With("run_id", res.RunID)
	start := time.Now()

	observations := p.cfg.Collector.Collect(ctx, p.cfg.Accounts, since)
	res.Observations = len(observations)

	observations = p.dropSeen(ctx, observations, res)
	candidates := p.cfg.Detector.Detect(observations)
	res.Candidates = len(candidates)

	for _, g := range groupByKey(candidates) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := p.mergeGroup(ctx, g, res); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, Failure{
				SenderAddress: g.inc.SenderAddress,
				Subject:       g.inc.Subject,
				Error:         err.Error(),
			})
			log.Warn("campaign failed",
				"sender", g.inc.SenderAddress,
				"subject", g.inc.Subject,
				"error", err,
			)
		}
	}

	log.Info("scan complete",
		"observations", res.Observations,
		"already_seen", res.AlreadySeen,
		"candidates", res.Candidates,
		"created", res.Created,
		"updated", res.Updated,
		"assigned", res.Assigned,
		"queued", res.Queued,
		"failed", res.Failed,
		"duration", time.Since(start).String(),
	)
	return res, nil
}

// dropSeen removes observations an earlier run already merged. If the
// filter is unavailable every observation is kept.
func (p *Pipeline) dropSeen(ctx context.Context, observations []models.EmailObservation, res *RunResult) []models.EmailObservation {
	if p.cfg.Seen == nil {
		return observations
	}

	var keys []string
	for _, obs := range observations {
		if k := obs.IdempotencyKey(); k != "" {
			keys = append(keys, k)
		}
	}
	seen, err := p.cfg.Seen.Seen(ctx, keys)
	if err != nil {
		slog.Warn("idempotency check failed, counting all observations", "error", err)
		return observations
	}
	if len(seen) == 0 {
		return observations
	}

	kept := observations[:0:0]
	for _, obs := range observations {
		if seen[obs.IdempotencyKey()] {
			res.AlreadySeen++
			continue
		}
		kept = append(kept, obs)
	}
	return kept
}

// groupByKey folds candidates of different days into one increment per
// campaign. Candidates arrive ordered by first sighting, so the first one
// seen for a key supplies the sample body.
func groupByKey(candidates []detect.Candidate) []*group {
	var order []*group
	byKey := make(map[aggregate.Key]*group)

	for _, c := range candidates {
		inc := aggregate.Increment{
			SenderAddress:     c.SenderAddress,
			SenderName:        c.SenderName,
			Subject:           c.Subject,
			FirstSeenAt:       c.FirstSeenAt,
			InboxCount:        c.InboxCount,
			SpamCount:         c.SpamCount,
			NotDeliveredCount: c.NotDeliveredCount,
			ClientID:          c.Sample.ClientID,
			Source:            c.Sample.Source,
			BodyHTML:          c.Sample.BodyHTML,
		}
		var keys []string
		for _, obs := range c.Observations {
			if k := obs.IdempotencyKey(); k != "" {
				keys = append(keys, k)
			}
		}

		g, ok := byKey[inc.Key()]
		if !ok {
			g = &group{inc: inc, sample: c.Sample, keys: keys}
			byKey[inc.Key()] = g
			order = append(order, g)
			continue
		}
		g.inc = aggregate.Combine(g.inc, inc)
		g.keys = append(g.keys, keys...)
	}
	return order
}

func (p *Pipeline) mergeGroup(ctx context.Context, g *group, res *RunResult) error {
	exists, err := p.cfg.Aggregator.Exists(ctx, g.inc.Key())
	if err != nil {
		return err
	}

	inc := g.inc
	if !exists {
		p.enrich(ctx, &inc, g.sample)
	}

	merged, err := p.cfg.Aggregator.Merge(ctx, inc)
	if err != nil {
		return err
	}
	if merged.Created {
		res.Created++
	} else {
		res.Updated++
	}
	if merged.Created && merged.Campaign.EntityID != "" {
		res.Assigned++
	}

	if p.cfg.Seen != nil {
		if err := p.cfg.Seen.Mark(ctx, g.keys); err != nil {
			slog.Warn("failed to mark observations as counted",
				"campaign_id", merged.Campaign.ID,
				"error", err,
			)
		}
	}

	if merged.Created && merged.Campaign.EntityID == "" && p.cfg.Review != nil {
		if _, err := p.cfg.Review.PublishReview(ctx, merged.Campaign); err != nil {
			slog.Warn("failed to queue campaign for review",
				"campaign_id", merged.Campaign.ID,
				"error", err,
			)
		} else {
			res.Queued++
		}
	}
	return nil
}

// enrich fills links, tags and attribution for a campaign seen for the
// first time. Both steps degrade to empty results.
func (p *Pipeline) enrich(ctx context.Context, inc *aggregate.Increment, sample models.EmailObservation) {
	if p.cfg.Links != nil && sample.BodyHTML != "" {
		excluded := p.cfg.Seeds
		if sample.RecipientAddress != "" {
			excluded = append(append([]string(nil), p.cfg.Seeds...), sample.RecipientAddress)
		}
		inc.CTALinks = p.cfg.Links.Process(ctx, sample.BodyHTML, excluded)
		inc.Tags = cta.Tags(inc.CTALinks)
	}

	if p.cfg.Attributor == nil {
		return
	}
	a, err := p.cfg.Attributor.Attribute(ctx, attribution.Input{
		SenderAddress: inc.SenderAddress,
		Subject:       inc.Subject,
		Body:          sample.BodyHTML,
		Links:         inc.CTALinks,
	})
	if err != nil {
		slog.Warn("attribution failed, leaving campaign unassigned",
			"sender", inc.SenderAddress,
			"error", err,
		)
		return
	}
	if a != nil {
		inc.EntityID = a.EntityID
		inc.AssignmentMethod = a.Method
	}
}
