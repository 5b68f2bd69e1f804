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

// Package queue publishes review tasks for campaigns that could not be
// attributed automatically.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/campaigns/internal/models"
)

// DefaultQueue is the list review workers consume from.
const DefaultQueue = "campaigns:review"

// ReviewTask asks a human to attribute a campaign.
type ReviewTask struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	CampaignID    int64     `json:"campaign_id"`
	SenderAddress string    `json:"sender_address"`
	Subject       string    `json:"subject"`
	Tags          []string  `json:"tags"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Publisher pushes review tasks onto a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting queueName.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Publisher{rdb: rdb, queueName: queueName}
}

// PublishReview enqueues an attribution review for c.
func (p *Publisher) PublishReview(ctx context.Context, c *models.Campaign) (string, error) {
	task := ReviewTask{
		ID:            uuid.New().String(),
		Kind:          "attribution_review",
		CampaignID:    c.ID,
		SenderAddress: c.SenderAddress,
		Subject:       c.Subject,
		Tags:          c.Tags,
		EnqueuedAt:    time.Now().UTC(),
	}

	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal review task: %w", err)
	}
	// Workers BRPOP, so LPUSH keeps FIFO order.
	if err := p.rdb.LPush(ctx, p.queueName, body).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("queued campaign for review",
		"task_id", task.ID,
		"campaign_id", c.ID,
		"sender", c.SenderAddress,
		"queue", p.queueName,
	)
	return task.ID, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
