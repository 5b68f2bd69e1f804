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

// Package store persists campaigns, entities, sender mappings, link
// categories and SMS campaigns in Postgres.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides the pipeline's Postgres persistence.
type Store struct {
	db DB
}

// New creates a store and ensures the schema exists.
func New(ctx context.Context, db DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure campaign schema: %w", err)
	}
	slog.Info("campaign store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS campaigns (
			id                  BIGSERIAL PRIMARY KEY,
			sender_address      TEXT NOT NULL,
			subject             TEXT NOT NULL,
			sender_name         TEXT NOT NULL DEFAULT '',
			first_seen_at       TIMESTAMPTZ NOT NULL,
			inbox_count         INTEGER NOT NULL DEFAULT 0,
			spam_count          INTEGER NOT NULL DEFAULT 0,
			not_delivered_count INTEGER NOT NULL DEFAULT 0,
			inbox_rate          DOUBLE PRECISION NOT NULL DEFAULT 0,
			cta_links           JSONB NOT NULL DEFAULT '[]',
			tags                TEXT[] NOT NULL DEFAULT '{}',
			entity_id           TEXT,
			assignment_method   TEXT,
			client_id           TEXT,
			source              TEXT NOT NULL DEFAULT 'seed',
			body_html           TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ DEFAULT NOW(),
			updated_at          TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(sender_address, subject)
		);
		CREATE INDEX IF NOT EXISTS idx_campaigns_entity ON campaigns(entity_id);
		CREATE INDEX IF NOT EXISTS idx_campaigns_first_seen ON campaigns(first_seen_at);

		CREATE TABLE IF NOT EXISTS entities (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL,
			type                 TEXT NOT NULL,
			donation_identifiers TEXT NOT NULL DEFAULT '{}'
		);

		CREATE TABLE IF NOT EXISTS entity_mappings (
			id            BIGSERIAL PRIMARY KEY,
			entity_id     TEXT NOT NULL REFERENCES entities(id),
			sender_email  TEXT UNIQUE,
			sender_domain TEXT UNIQUE,
			sender_phone  TEXT UNIQUE,
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS link_categories (
			url_key    TEXT PRIMARY KEY,
			category   TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			source     TEXT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS sms_campaigns (
			id                BIGSERIAL PRIMARY KEY,
			sender_phone      TEXT NOT NULL,
			body              TEXT NOT NULL,
			received_at       TIMESTAMPTZ NOT NULL,
			cta_links         JSONB NOT NULL DEFAULT '[]',
			entity_id         TEXT,
			assignment_method TEXT,
			created_at        TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}
