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

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bcem/campaigns/internal/aggregate"
	"github.com/bcem/campaigns/internal/models"
)

const campaignColumns = `id, sender_address, subject, sender_name, first_seen_at,
	inbox_count, spam_count, not_delivered_count, inbox_rate, cta_links::text, tags,
	COALESCE(entity_id, ''), COALESCE(assignment_method, ''), COALESCE(client_id, ''),
	source, body_html`

// MergeCampaign applies inc to its campaign in a single upsert. The update
// branch mirrors aggregate.Apply.
func (s *Store) MergeCampaign(ctx context.Context, inc aggregate.Increment) (*models.Campaign, bool, error) {
	fresh := aggregate.Apply(nil, inc)
	links, err := encodeLinks(fresh.CTALinks)
	if err != nil {
		return nil, false, err
	}
	if fresh.Tags == nil {
		fresh.Tags = []string{}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO campaigns AS c
			(sender_address, subject, sender_name, first_seen_at,
			 inbox_count, spam_count, not_delivered_count, inbox_rate,
			 cta_links, tags, entity_id, assignment_method, client_id, source, body_html)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10,
		        NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), $14, $15)
		ON CONFLICT (sender_address, subject) DO UPDATE SET
			inbox_count         = c.inbox_count + EXCLUDED.inbox_count,
			spam_count          = c.spam_count + EXCLUDED.spam_count,
			not_delivered_count = c.not_delivered_count + EXCLUDED.not_delivered_count,
			inbox_rate = CASE
				WHEN c.inbox_count + c.spam_count + c.not_delivered_count
				   + EXCLUDED.inbox_count + EXCLUDED.spam_count + EXCLUDED.not_delivered_count = 0 THEN 0
				ELSE (c.inbox_count + EXCLUDED.inbox_count)::float8
				   / (c.inbox_count + c.spam_count + c.not_delivered_count
				   + EXCLUDED.inbox_count + EXCLUDED.spam_count + EXCLUDED.not_delivered_count)
			END,
			first_seen_at     = LEAST(c.first_seen_at, EXCLUDED.first_seen_at),
			sender_name       = COALESCE(NULLIF(c.sender_name, ''), EXCLUDED.sender_name),
			cta_links         = CASE WHEN jsonb_array_length(c.cta_links) > 0 THEN c.cta_links ELSE EXCLUDED.cta_links END,
			assignment_method = CASE WHEN c.entity_id IS NULL THEN EXCLUDED.assignment_method ELSE c.assignment_method END,
			entity_id         = COALESCE(c.entity_id, EXCLUDED.entity_id),
			client_id         = COALESCE(c.client_id, EXCLUDED.client_id),
			source            = COALESCE(NULLIF(c.source, ''), EXCLUDED.source),
			body_html         = COALESCE(NULLIF(c.body_html, ''), EXCLUDED.body_html),
			tags = ARRAY(
				SELECT DISTINCT t FROM unnest(
					array_remove(c.tags || EXCLUDED.tags, 'spam_heavy')
					|| CASE WHEN c.spam_count + EXCLUDED.spam_count > c.inbox_count + EXCLUDED.inbox_count
					        THEN ARRAY['spam_heavy'] ELSE ARRAY[]::text[] END
				) AS t ORDER BY t
			),
			updated_at = NOW()
		RETURNING `+campaignColumns+`, (xmax = 0) AS created
	`,
		fresh.SenderAddress, fresh.Subject, fresh.SenderName, fresh.FirstSeenAt,
		fresh.InboxCount, fresh.SpamCount, fresh.NotDeliveredCount, fresh.InboxRate,
		links, fresh.Tags, fresh.EntityID, string(fresh.AssignmentMethod), fresh.ClientID,
		string(fresh.Source), fresh.BodyHTML,
	)

	var created bool
	c, err := scanCampaign(row, &created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert campaign: %w", err)
	}
	return c, created, nil
}

// CampaignExists reports whether a campaign with key is stored.
func (s *Store) CampaignExists(ctx context.Context, key aggregate.Key) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM campaigns WHERE sender_address = $1 AND subject = $2)
	`, key.SenderAddress, key.Subject).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check campaign exists: %w", err)
	}
	return exists, nil
}

// CampaignsAfter returns up to limit campaigns with id > cursor, by id.
func (s *Store) CampaignsAfter(ctx context.Context, cursor int64, limit int) ([]models.Campaign, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateCampaignLinks replaces the stored CTA links and tags.
func (s *Store) UpdateCampaignLinks(ctx context.Context, id int64, links []models.CTALink, tags []string) error {
	raw, err := encodeLinks(links)
	if err != nil {
		return err
	}
	if tags == nil {
		tags = []string{}
	}
	_, err = s.db.Exec(ctx, `
		UPDATE campaigns
		SET cta_links = $1::jsonb,
		    tags = ARRAY(SELECT DISTINCT t FROM unnest($2::text[] || ARRAY(SELECT x FROM unnest(tags) x WHERE x = 'spam_heavy')) AS t ORDER BY t),
		    updated_at = NOW()
		WHERE id = $3
	`, raw, tags, id)
	if err != nil {
		return fmt.Errorf("update campaign links: %w", err)
	}
	return nil
}

// AssignCampaign sets the entity of an unassigned campaign.
func (s *Store) AssignCampaign(ctx context.Context, id int64, entityID string, method models.AssignmentMethod) error {
	_, err := s.db.Exec(ctx, `
		UPDATE campaigns
		SET entity_id = $1, assignment_method = $2, updated_at = NOW()
		WHERE id = $3 AND entity_id IS NULL
	`, entityID, string(method), id)
	if err != nil {
		return fmt.Errorf("assign campaign: %w", err)
	}
	return nil
}

func scanCampaign(row pgx.Row, extra ...any) (*models.Campaign, error) {
	var (
		c                     models.Campaign
		links, method, source string
	)
	scanInto := append([]any{},
		&c.ID, &c.SenderAddress, &c.Subject, &c.SenderName, &c.FirstSeenAt,
		&c.InboxCount, &c.SpamCount, &c.NotDeliveredCount, &c.InboxRate, &links, &c.Tags,
		&c.EntityID, &method, &c.ClientID, &source, &c.BodyHTML,
	)
	scanInto = append(scanInto, extra...)

	if err := row.Scan(scanInto...); err != nil {
		return nil, err
	}
	c.AssignmentMethod = models.AssignmentMethod(method)
	c.Source = models.CampaignSource(source)

	var err error
	if c.CTALinks, err = decodeLinks(links); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeLinks(links []models.CTALink) (string, error) {
	if links == nil {
		links = []models.CTALink{}
	}
	raw, err := json.Marshal(links)
	if err != nil {
		return "", fmt.Errorf("encode cta links: %w", err)
	}
	return string(raw), nil
}

func decodeLinks(raw string) ([]models.CTALink, error) {
	links := []models.CTALink{}
	if raw == "" {
		return links, nil
	}
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, fmt.Errorf("decode cta links: %w", err)
	}
	return links, nil
}
