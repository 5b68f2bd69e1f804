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
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bcem/campaigns/internal/mailbox"
	"github.com/bcem/campaigns/internal/models"
)

const defaultBatchSize = 10

// Collector reads many mailboxes in fixed-size concurrent batches.
type Collector struct {
	source        mailbox.Source
	batchSize     int
	maxPerMailbox int
}

// NewCollector creates a collector over source.
func NewCollector(source mailbox.Source, batchSize, maxPerMailbox int) *Collector {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Collector{
		source:        source,
		batchSize:     batchSize,
		maxPerMailbox: maxPerMailbox,
	}
}

// Collect fetches every account. Each batch finishes before the next one
// starts; results keep account order.
func (c *Collector) Collect(ctx context.Context, accounts []mailbox.Account, since time.Time) []models.EmailObservation {
	perAccount := make([][]models.EmailObservation, len(accounts))

	for start := 0; start < len(accounts); start += c.batchSize {
		end := min(start+c.batchSize, len(accounts))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				perAccount[i] = c.source.FetchSince(ctx, accounts[i], since, c.maxPerMailbox)
				return nil
			})
		}
		_ = g.Wait()

		slog.Debug("mailbox batch collected", "from", start, "to", end)
	}

	var out []models.EmailObservation
	for i, obs := range perAccount {
		slog.Debug("mailbox collected", "mailbox", accounts[i].Address, "messages", len(obs))
		out = append(out, obs...)
	}
	return out
}
