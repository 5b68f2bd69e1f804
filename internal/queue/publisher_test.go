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

package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/campaigns/internal/models"
)

func TestPublishReview(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewPublisher(rdb, "")
	ctx := context.Background()

	require.NoError(t, p.Ping(ctx))

	id, err := p.PublishReview(ctx, &models.Campaign{
		ID:            42,
		SenderAddress: "news@unknown.org",
		Subject:       "Chip in",
		Tags:          []string{"donation"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	items, err := mr.List(DefaultQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var task ReviewTask
	require.NoError(t, json.Unmarshal([]byte(items[0]), &task))
	assert.Equal(t, id, task.ID)
	assert.Equal(t, int64(42), task.CampaignID)
	assert.Equal(t, "attribution_review", task.Kind)
	assert.Equal(t, []string{"donation"}, task.Tags)
}

func TestPublishReview_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	p := NewPublisher(rdb, "q")
	mr.Close()

	_, err := p.PublishReview(context.Background(), &models.Campaign{ID: 1})
	assert.ErrorContains(t, err, "redis LPUSH")
}
