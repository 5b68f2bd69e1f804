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

// Package reprocess re-derives stored CTA links and retries attribution one
// page of records at a time. Callers drive it with the returned cursor until
// HasMore is false.
package reprocess

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bcem/campaigns/internal/attribution"
	"github.com/bcem/campaigns/internal/cta"
	"github.com/bcem/campaigns/internal/models"
)

// PageSize is the number of records processed per source per page.
const PageSize = 10

// Store is the record access the job needs.
type Store interface {
	CampaignsAfter(ctx context.Context, cursor int64, limit int) ([]models.Campaign, error)
	SMSAfter(ctx context.Context, cursor int64, limit int) ([]models.SMSCampaign, error)
	UpdateCampaignLinks(ctx context.Context, id int64, links []models.CTALink, tags []string) error
	UpdateSMSLinks(ctx context.Context, id int64, links []models.CTALink) error
	AssignCampaign(ctx context.Context, id int64, entityID string, method models.AssignmentMethod) error
	AssignSMS(ctx context.Context, id int64, entityID string, method models.AssignmentMethod) error
}

// LinkProcessor re-derives CTA links.
type LinkProcessor interface {
	Process(ctx context.Context, body string, excluded []string) []models.CTALink
	ProcessText(ctx context.Context, text string) []models.CTALink
	Refresh(ctx context.Context, links []models.CTALink) []models.CTALink
}

// Attributor maps a record to an entity.
type Attributor interface {
	Attribute(ctx context.Context, in attribution.Input) (*attribution.Assignment, error)
}

// Cursor is the position of the last processed record per source.
type Cursor struct {
	LastEmailCursor int64 `json:"lastEmailCursor"`
	LastSMSCursor   int64 `json:"lastSmsCursor"`
}

// RecordFailure describes one record that could not be reprocessed.
type RecordFailure struct {
	Source string `json:"source"`
	ID     int64  `json:"id"`
	Error  string `json:"error"`
}

// PageResult is the outcome of one page.
type PageResult struct {
	Cursor
	HasMore   bool            `json:"hasMore"`
	Processed int             `json:"processed"`
	Assigned  int             `json:"assigned"`
	Failed    int             `json:"failed"`
	Failures  []RecordFailure `json:"failures"`
}

// Job reprocesses stored records.
type Job struct {
	store      Store
	links      LinkProcessor
	attributor Attributor
	seeds      []string
	pageSize   int
}

// NewJob creates a reprocess job. seeds are excluded when links have to be
// extracted from a stored body again.
func NewJob(store Store, links LinkProcessor, attributor Attributor, seeds []string) *Job {
	return &Job{
		store:      store,
		links:      links,
		attributor: attributor,
		seeds:      seeds,
		pageSize:   PageSize,
	}
}

// RunPage processes up to one page of email campaigns and one page of SMS
// campaigns after cur. Listing errors abort the page; per-record errors are
// collected in the result.
func (j *Job) RunPage(ctx context.Context, cur Cursor) (*PageResult, error) {
	// A fresh pass picks up registry edits made since the last one.
	if cur == (Cursor{}) {
		if inv, ok := j.attributor.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}

	campaigns, err := j.store.CampaignsAfter(ctx, cur.LastEmailCursor, j.pageSize+1)
	if err != nil {
		return nil, fmt.Errorf("load email page: %w", err)
	}
	sms, err := j.store.SMSAfter(ctx, cur.LastSMSCursor, j.pageSize+1)
	if err != nil {
		return nil, fmt.Errorf("load sms page: %w", err)
	}

	res := &PageResult{Cursor: cur, Failures: []RecordFailure{}}
	if len(campaigns) > j.pageSize {
		campaigns = campaigns[:j.pageSize]
		res.HasMore = true
	}
	if len(sms) > j.pageSize {
		sms = sms[:j.pageSize]
		res.HasMore = true
	}

	for i := range campaigns {
		c := &campaigns[i]
		assigned, err := j.campaign(ctx, c)
		j.record(res, "email", c.ID, assigned, err)
		res.LastEmailCursor = c.ID
	}
	for i := range sms {
		m := &sms[i]
		assigned, err := j.sms(ctx, m)
		j.record(res, "sms", m.ID, assigned, err)
		res.LastSMSCursor = m.ID
	}

	slog.Info("reprocess page complete",
		"last_email_cursor", res.LastEmailCursor,
		"last_sms_cursor", res.LastSMSCursor,
		"processed", res.Processed,
		"assigned", res.Assigned,
		"failed", res.Failed,
		"has_more", res.HasMore,
	)
	return res, nil
}

func (j *Job) record(res *PageResult, source string, id int64, assigned bool, err error) {
	res.Processed++
	if assigned {
		res.Assigned++
	}
	if err != nil {
		res.Failed++
		res.Failures = append(res.Failures, RecordFailure{Source: source, ID: id, Error: err.Error()})
		slog.Warn("reprocess record failed", "source", source, "id", id, "error", err)
	}
}

func (j *Job) campaign(ctx context.Context, c *models.Campaign) (bool, error) {
	// Stored links have their query strings stripped, so the body is the
	// only place the original tracking URLs survive.
	var links []models.CTALink
	if c.BodyHTML != "" {
		links = j.links.Process(ctx, c.BodyHTML, j.seeds)
	} else if len(c.CTALinks) > 0 {
		links = j.links.Refresh(ctx, c.CTALinks)
	}
	if links != nil {
		if err := j.store.UpdateCampaignLinks(ctx, c.ID, links, cta.Tags(links)); err != nil {
			return false, err
		}
		c.CTALinks = links
	}

	if c.EntityID != "" {
		return false, nil
	}
	a, err := j.attributor.Attribute(ctx, attribution.Input{
		SenderAddress: c.SenderAddress,
		Subject:       c.Subject,
		Body:          c.BodyHTML,
		Links:         c.CTALinks,
	})
	if err != nil || a == nil {
		return false, err
	}
	if err := j.store.AssignCampaign(ctx, c.ID, a.EntityID, a.Method); err != nil {
		return false, err
	}
	return true, nil
}

func (j *Job) sms(ctx context.Context, m *models.SMSCampaign) (bool, error) {
	var links []models.CTALink
	if m.Body != "" {
		links = j.links.ProcessText(ctx, m.Body)
	} else if len(m.CTALinks) > 0 {
		links = j.links.Refresh(ctx, m.CTALinks)
	}
	if links != nil {
		if err := j.store.UpdateSMSLinks(ctx, m.ID, links); err != nil {
			return false, err
		}
		m.CTALinks = links
	}

	if m.EntityID != "" {
		return false, nil
	}
	a, err := j.attributor.Attribute(ctx, attribution.Input{
		SenderPhone: m.SenderPhone,
		Body:        m.Body,
		Links:       m.CTALinks,
	})
	if err != nil || a == nil {
		return false, err
	}
	if err := j.store.AssignSMS(ctx, m.ID, a.EntityID, a.Method); err != nil {
		return false, err
	}
	return true, nil
}
