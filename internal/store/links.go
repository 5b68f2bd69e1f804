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

	"github.com/jackc/pgx/v5"

	"github.com/bcem/campaigns/internal/linkcache"
	"github.com/bcem/campaigns/internal/models"
)

// LinkCategories is the durable link-category layer.
type LinkCategories struct {
	db DB
}

// LinkCategories returns the link-category cache backed by this store.
func (s *Store) LinkCategories() *LinkCategories {
	return &LinkCategories{db: s.db}
}

var _ linkcache.Cache = (*LinkCategories)(nil)

func (l *LinkCategories) Get(ctx context.Context, key string) (linkcache.Entry, bool, error) {
	var (
		e        linkcache.Entry
		category string
	)
	err := l.db.QueryRow(ctx, `
		SELECT category, confidence, source
		FROM link_categories
		WHERE url_key = $1
	`, key).Scan(&category, &e.Confidence, &e.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return linkcache.Entry{}, false, nil
	}
	if err != nil {
		return linkcache.Entry{}, false, fmt.Errorf("get link category: %w", err)
	}
	e.Category = models.Category(category)
	return e, true, nil
}

// Put stores e unless a higher-confidence entry is already present.
func (l *LinkCategories) Put(ctx context.Context, key string, e linkcache.Entry) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO link_categories (url_key, category, confidence, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url_key) DO UPDATE SET
			category   = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			source     = EXCLUDED.source,
			updated_at = NOW()
		WHERE link_categories.confidence <= EXCLUDED.confidence
	`, key, string(e.Category), e.Confidence, e.Source)
	if err != nil {
		return fmt.Errorf("put link category: %w", err)
	}
	return nil
}
