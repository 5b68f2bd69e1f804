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
	"fmt"

	"github.com/bcem/campaigns/internal/models"
)

// SMSAfter returns up to limit SMS campaigns with id > cursor, by id.
func (s *Store) SMSAfter(ctx context.Context, cursor int64, limit int) ([]models.SMSCampaign, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, sender_phone, body, received_at, cta_links::text,
		       COALESCE(entity_id, ''), COALESCE(assignment_method, '')
		FROM sms_campaigns
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list sms campaigns: %w", err)
	}
	defer rows.Close()

	var out []models.SMSCampaign
	for rows.Next() {
		var (
			m             models.SMSCampaign
			links, method string
		)
		if err := rows.Scan(&m.ID, &m.SenderPhone, &m.Body, &m.ReceivedAt, &links, &m.EntityID, &method); err != nil {
			return nil, err
		}
		m.AssignmentMethod = models.AssignmentMethod(method)
		if m.CTALinks, err = decodeLinks(links); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateSMSLinks replaces the stored CTA links of an SMS campaign.
func (s *Store) UpdateSMSLinks(ctx context.Context, id int64, links []models.CTALink) error {
	raw, err := encodeLinks(links)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `UPDATE sms_campaigns SET cta_links = $1::jsonb WHERE id = $2`, raw, id); err != nil {
		return fmt.Errorf("update sms links: %w", err)
	}
	return nil
}

// AssignSMS sets the entity of an unassigned SMS campaign.
func (s *Store) AssignSMS(ctx context.Context, id int64, entityID string, method models.AssignmentMethod) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sms_campaigns
		SET entity_id = $1, assignment_method = $2
		WHERE id = $3 AND entity_id IS NULL
	`, entityID, string(method), id)
	if err != nil {
		return fmt.Errorf("assign sms campaign: %w", err)
	}
	return nil
}
