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

// Package mailbox reads recent messages from the seed and personal
// mailboxes the pipeline watches.
package mailbox

import (
	"context"
	"strings"
	"time"

	"github.com/bcem/campaigns/internal/config"
	"github.com/bcem/campaigns/internal/models"
)

// Account is one mailbox to scan.
type Account struct {
	Alias    string
	Tenant   string
	Address  string
	UserID   string
	Source   models.CampaignSource
	ClientID string
}

// Source lists messages received since a point in time. Implementations
// never fail: an unreachable mailbox yields an empty slice.
type Source interface {
	FetchSince(ctx context.Context, acct Account, since time.Time, max int) []models.EmailObservation
}

// AccountsFromConfig converts configured accounts.
func AccountsFromConfig(cfg *config.Config) []Account {
	out := make([]Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		userID := a.UserID
		if userID == "" {
			userID = a.Address
		}
		out = append(out, Account{
			Alias:    a.Alias,
			Tenant:   a.Tenant,
			Address:  strings.ToLower(a.Address),
			UserID:   userID,
			Source:   models.CampaignSource(a.Source),
			ClientID: a.ClientID,
		})
	}
	return out
}
