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

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bcem/campaigns/internal/models"
)

// ErrInvalidKey rejects increments without a sender or subject.
var ErrInvalidKey = errors.New("campaign key requires sender and subject")

// Store persists campaigns. MergeCampaign must apply the Apply rule
// atomically for the increment's key.
type Store interface {
	MergeCampaign(ctx context.Context, inc Increment) (c *models.Campaign, created bool, err error)
	CampaignExists(ctx context.Context, key Key) (bool, error)
}

// Result reports one merge.
type Result struct {
	Campaign *models.Campaign
	Created  bool
}

// Adapter validates increments and merges them into a Store.
type Adapter struct {
	store Store
}

// NewAdapter creates an aggregation adapter.
func NewAdapter(store Store) *Adapter {
	return &Adapter{store: store}
}

// Merge folds inc into its campaign, creating the campaign if needed.
func (a *Adapter) Merge(ctx context.Context, inc Increment) (*Result, error) {
	key := inc.Key()
	if key.SenderAddress == "" || key.Subject == "" {
		return nil, ErrInvalidKey
	}
	inc.SenderAddress = key.SenderAddress
	inc.Tags = unionTags(inc.Tags, nil)

	c, created, err := a.store.MergeCampaign(ctx, inc)
	if err != nil {
		return nil, fmt.Errorf("merge campaign %q from %s: %w", key.Subject, key.SenderAddress, err)
	}

	slog.Debug("campaign merged",
		"campaign_id", c.ID,
		"sender", key.SenderAddress,
		"created", created,
		"inbox", inc.InboxCount,
		"spam", inc.SpamCount,
		"not_delivered", inc.NotDeliveredCount,
	)
	return &Result{Campaign: c, Created: created}, nil
}

// Exists reports whether a campaign with key is already stored.
func (a *Adapter) Exists(ctx context.Context, key Key) (bool, error) {
	ok, err := a.store.CampaignExists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check campaign: %w", err)
	}
	return ok, nil
}
