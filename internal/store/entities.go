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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bcem/campaigns/internal/attribution"
	"github.com/bcem/campaigns/internal/models"
)

// Entities returns every entity. Malformed donation identifiers are logged
// and treated as empty so one bad row cannot block attribution.
func (s *Store) Entities(ctx context.Context) ([]models.Entity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, type, donation_identifiers
		FROM entities
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Entity loads one entity by id.
func (s *Store) Entity(ctx context.Context, id string) (*models.Entity, error) {
	e, err := scanEntity(s.db.QueryRow(ctx, `
		SELECT id, name, type, donation_identifiers
		FROM entities
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, attribution.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", id, err)
	}
	return e, nil
}

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var (
		e          models.Entity
		entityType string
		raw        string
	)
	if err := row.Scan(&e.ID, &e.Name, &entityType, &raw); err != nil {
		return nil, err
	}
	e.Type = models.EntityType(entityType)

	ids, err := models.ParseDonationIdentifiers([]byte(raw))
	if err != nil {
		slog.Warn("ignoring malformed donation identifiers",
			"entity_id", e.ID,
			"error", err,
		)
		ids = make(models.DonationIdentifiers)
	}
	e.DonationIdentifiers = ids
	return &e, nil
}

// MappingByEmail finds the mapping for an exact sender address.
func (s *Store) MappingByEmail(ctx context.Context, email string) (*models.EntityMapping, error) {
	return s.mappingBy(ctx, "sender_email", strings.ToLower(email))
}

// MappingByDomain finds the mapping for a sender domain.
func (s *Store) MappingByDomain(ctx context.Context, domain string) (*models.EntityMapping, error) {
	return s.mappingBy(ctx, "sender_domain", strings.ToLower(domain))
}

// MappingByPhone finds the mapping for a normalised phone number.
func (s *Store) MappingByPhone(ctx context.Context, phone string) (*models.EntityMapping, error) {
	return s.mappingBy(ctx, "sender_phone", phone)
}

// column is always one of the fixed names above.
func (s *Store) mappingBy(ctx context.Context, column, value string) (*models.EntityMapping, error) {
	var m models.EntityMapping
	err := s.db.QueryRow(ctx, `
		SELECT entity_id, COALESCE(sender_email, ''), COALESCE(sender_domain, ''), COALESCE(sender_phone, '')
		FROM entity_mappings
		WHERE `+column+` = $1
		LIMIT 1
	`, value).Scan(&m.EntityID, &m.SenderEmail, &m.SenderDomain, &m.SenderPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, attribution.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup mapping by %s: %w", column, err)
	}
	return &m, nil
}

// InsertMappingIfAbsent records a sender mapping unless one already exists
// for the same address, domain or phone.
func (s *Store) InsertMappingIfAbsent(ctx context.Context, m models.EntityMapping) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO entity_mappings (entity_id, sender_email, sender_domain, sender_phone)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT DO NOTHING
	`, m.EntityID, strings.ToLower(m.SenderEmail), strings.ToLower(m.SenderDomain), m.SenderPhone)
	if err != nil {
		return fmt.Errorf("insert entity mapping: %w", err)
	}
	return nil
}
