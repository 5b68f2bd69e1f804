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

package detect

import (
	"sort"
	"strings"
	"time"

	"github.com/bcem/campaigns/internal/models"
)

// DefaultMinOccurrences is the number of observations a fingerprint needs
// before it counts as a campaign.
const DefaultMinOccurrences = 2

// Candidate is a group of observations sharing one fingerprint.
type Candidate struct {
	Fingerprint   string
	SenderAddress string
	SenderName    string
	Subject       string // sanitized
	FirstSeenAt   time.Time

	InboxCount        int
	SpamCount         int
	NotDeliveredCount int

	// Sample is the earliest observation; its body feeds CTA extraction.
	Sample       models.EmailObservation
	Observations []models.EmailObservation
}

// Occurrences is the number of distinct observations in the group.
func (c Candidate) Occurrences() int {
	return c.InboxCount + c.SpamCount + c.NotDeliveredCount
}

// Config tunes the detector.
type Config struct {
	MinOccurrences int
	SeedAddresses  []string
}

// Detector groups observations into candidates.
type Detector struct {
	minOccurrences int
	seeds          []string
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	if cfg.MinOccurrences <= 0 {
		cfg.MinOccurrences = DefaultMinOccurrences
	}
	return &Detector{
		minOccurrences: cfg.MinOccurrences,
		seeds:          cfg.SeedAddresses,
	}
}

// Detect returns candidates with at least MinOccurrences observations,
// ordered by first sighting then fingerprint. An observation repeated with
// the same mailbox and message ID counts once.
func (d *Detector) Detect(observations []models.EmailObservation) []Candidate {
	groups := make(map[string]*Candidate)
	seen := make(map[string]bool)

	for _, obs := range observations {
		if key := obs.IdempotencyKey(); key != "" {
			if seen[key] {
				continue
			}
			seen[key] = true
		}

		subject := SanitizeSubject(obs.Subject, d.excluded(obs))
		fp := Fingerprint(obs.SenderAddress, subject, obs.ReceivedAt)

		c, ok := groups[fp]
		if !ok {
			c = &Candidate{
				Fingerprint:   fp,
				SenderAddress: strings.ToLower(strings.TrimSpace(obs.SenderAddress)),
				SenderName:    obs.SenderName,
				Subject:       subject,
				FirstSeenAt:   obs.ReceivedAt,
				Sample:        obs,
			}
			groups[fp] = c
		}
		if obs.ReceivedAt.Before(c.FirstSeenAt) {
			c.FirstSeenAt = obs.ReceivedAt
			c.Sample = obs
			c.SenderName = obs.SenderName
		}

		switch {
		case obs.Placement.Delivered():
			c.InboxCount++
		case obs.Placement == models.PlacementSpam:
			c.SpamCount++
		default:
			c.NotDeliveredCount++
		}
		c.Observations = append(c.Observations, obs)
	}

	out := make([]Candidate, 0, len(groups))
	for _, c := range groups {
		if c.Occurrences() >= d.minOccurrences {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

// excluded lists the addresses hidden from this observation's subject.
func (d *Detector) excluded(obs models.EmailObservation) []string {
	if obs.RecipientAddress == "" {
		return d.seeds
	}
	return append([]string{obs.RecipientAddress}, d.seeds...)
}
