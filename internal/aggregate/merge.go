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

// Package aggregate folds detected campaign sends into persisted campaign
// records. Apply is the merge rule; stores must implement the same rule
// atomically.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/bcem/campaigns/internal/models"
)

// TagSpamHeavy marks campaigns whose spam placements outnumber inbox ones.
const TagSpamHeavy = "spam_heavy"

// Key is the natural key of a campaign.
type Key struct {
	SenderAddress string
	Subject       string
}

// Increment is what one run observed for one campaign key.
type Increment struct {
	SenderAddress string
	SenderName    string
	Subject       string
	FirstSeenAt   time.Time

	InboxCount        int
	SpamCount         int
	NotDeliveredCount int

	CTALinks         []models.CTALink
	Tags             []string
	EntityID         string
	AssignmentMethod models.AssignmentMethod
	ClientID         string
	Source           models.CampaignSource
	BodyHTML         string
}

// Key returns the campaign key the increment merges into.
func (i Increment) Key() Key {
	return Key{
		SenderAddress: strings.ToLower(strings.TrimSpace(i.SenderAddress)),
		Subject:       i.Subject,
	}
}

// Combine merges two increments for the same key so that
// Apply(Apply(c, a), b) equals Apply(c, Combine(a, b)).
func Combine(a, b Increment) Increment {
	out := a
	out.InboxCount += b.InboxCount
	out.SpamCount += b.SpamCount
	out.NotDeliveredCount += b.NotDeliveredCount
	out.FirstSeenAt = earliest(a.FirstSeenAt, b.FirstSeenAt)
	out.Tags = unionTags(a.Tags, b.Tags)

	if out.SenderName == "" {
		out.SenderName = b.SenderName
	}
	if len(out.CTALinks) == 0 {
		out.CTALinks = b.CTALinks
	}
	if out.EntityID == "" {
		out.EntityID = b.EntityID
		out.AssignmentMethod = b.AssignmentMethod
	}
	if out.ClientID == "" {
		out.ClientID = b.ClientID
	}
	if out.Source == "" {
		out.Source = b.Source
	}
	if out.BodyHTML == "" {
		out.BodyHTML = b.BodyHTML
	}
	return out
}

// Apply merges inc into existing, which may be nil for a new campaign.
// Counts add, the inbox rate is recomputed, attribution and client are set
// only when unset, stored links are kept, tags are unioned and the earliest
// sighting wins.
func Apply(existing *models.Campaign, inc Increment) models.Campaign {
	var c models.Campaign
	if existing != nil {
		c = *existing
		c.CTALinks = append([]models.CTALink(nil), existing.CTALinks...)
	} else {
		key := inc.Key()
		c = models.Campaign{
			SenderAddress: key.SenderAddress,
			Subject:       key.Subject,
			FirstSeenAt:   inc.FirstSeenAt,
		}
	}

	c.InboxCount += inc.InboxCount
	c.SpamCount += inc.SpamCount
	c.NotDeliveredCount += inc.NotDeliveredCount
	c.InboxRate = models.InboxRate(c.InboxCount, c.SpamCount, c.NotDeliveredCount)
	c.FirstSeenAt = earliest(c.FirstSeenAt, inc.FirstSeenAt)

	if c.SenderName == "" {
		c.SenderName = inc.SenderName
	}
	if len(c.CTALinks) == 0 {
		c.CTALinks = append([]models.CTALink(nil), inc.CTALinks...)
	}
	if c.EntityID == "" && inc.EntityID != "" {
		c.EntityID = inc.EntityID
		c.AssignmentMethod = inc.AssignmentMethod
	}
	if c.ClientID == "" {
		c.ClientID = inc.ClientID
	}
	if c.Source == "" {
		c.Source = inc.Source
	}
	if c.BodyHTML == "" {
		c.BodyHTML = inc.BodyHTML
	}

	c.Tags = withSpamTag(unionTags(c.Tags, inc.Tags), c.SpamCount, c.InboxCount)
	return c
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	}
	return a
}

// unionTags returns the sorted distinct tags, excluding the derived spam tag.
func unionTags(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, t := range append(append([]string(nil), a...), b...) {
		if t != "" && t != TagSpamHeavy {
			set[t] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func withSpamTag(tags []string, spam, inbox int) []string {
	if spam <= inbox {
		return tags
	}
	tags = append(tags, TagSpamHeavy)
	sort.Strings(tags)
	return tags
}
