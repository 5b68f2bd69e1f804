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

package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/campaigns/internal/aggregate"
	"github.com/bcem/campaigns/internal/attribution"
	"github.com/bcem/campaigns/internal/cta"
	"github.com/bcem/campaigns/internal/dedup"
	"github.com/bcem/campaigns/internal/mailbox"
	"github.com/bcem/campaigns/internal/models"
	"github.com/bcem/campaigns/internal/redirect"
)

type fakeCollector struct {
	observations []models.EmailObservation
}

func (f *fakeCollector) Collect(context.Context, []mailbox.Account, time.Time) []models.EmailObservation {
	return f.observations
}

type fakeLinks struct {
	mu       sync.Mutex
	calls    int
	excluded []string
	links    []models.CTALink
}

func (f *fakeLinks) Process(_ context.Context, _ string, excluded []string) []models.CTALink {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.excluded = excluded
	return f.links
}

type fakeAttributor struct {
	assignment *attribution.Assignment
	err        error
	inputs     []attribution.Input
}

func (f *fakeAttributor) Attribute(_ context.Context, in attribution.Input) (*attribution.Assignment, error) {
	f.inputs = append(f.inputs, in)
	return f.assignment, f.err
}

type fakeReview struct {
	queued []int64
}

func (f *fakeReview) PublishReview(_ context.Context, c *models.Campaign) (string, error) {
	f.queued = append(f.queued, c.ID)
	return "task", nil
}

type failingStore struct {
	*aggregate.MemoryStore
	failSender string
}

func (f *failingStore) MergeCampaign(ctx context.Context, inc aggregate.Increment) (*models.Campaign, bool, error) {
	if inc.SenderAddress == f.failSender {
		return nil, false, errors.New("deadlock detected")
	}
	return f.MemoryStore.MergeCampaign(ctx, inc)
}

var day = time.Date(2026, 9, 14, 15, 0, 0, 0, time.UTC)

func observation(mailboxAddr, msgID string, placement models.Placement, at time.Time) models.EmailObservation {
	return models.EmailObservation{
		SenderName:       "Jane for Senate",
		SenderAddress:    "Team@JaneForSenate.com",
		Subject:          "Re: Can we count on you?",
		ReceivedAt:       at,
		BodyHTML:         `<a href="https://secure.winred.com/jane/donate">Donate</a>`,
		Placement:        placement,
		SourceMailbox:    mailboxAddr,
		RecipientAddress: mailboxAddr,
		MessageID:        msgID,
		Source:           models.SourceSeed,
	}
}

func threeMailboxes() []models.EmailObservation {
	return []models.EmailObservation{
		observation("seed1@example.org", "<a@mail>", models.PlacementInbox, day),
		observation("seed2@example.org", "<a@mail>", models.PlacementInbox, day.Add(time.Minute)),
		observation("seed3@example.org", "<a@mail>", models.PlacementSpam, day.Add(2*time.Minute)),
	}
}

func newSeenFilter(t *testing.T) *dedup.Filter {
	t.Helper()
	mr := miniredis.RunT(t)
	return dedup.NewFilter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
}

func TestRun_ThreeMailboxScenario(t *testing.T) {
	store := aggregate.NewMemoryStore()
	links := &fakeLinks{links: []models.CTALink{{
		OriginalURL: "https://secure.winred.com/jane/donate",
		Category:    models.CategoryDonation,
	}}}
	review := &fakeReview{}

	p := New(Config{
		Seeds:      []string{"seed1@example.org", "seed2@example.org", "seed3@example.org"},
		Collector:  &fakeCollector{observations: threeMailboxes()},
		Seen:       newSeenFilter(t),
		Links:      links,
		Attributor: &fakeAttributor{},
		Aggregator: aggregate.NewAdapter(store),
		Review:     review,
	})

	res, err := p.Run(context.Background(), day.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Observations)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Queued)
	assert.Zero(t, res.Failed)

	campaigns := store.Campaigns()
	require.Len(t, campaigns, 1)
	c := campaigns[0]
	assert.Equal(t, "team@janeforsenate.com", c.SenderAddress)
	assert.Equal(t, 2, c.InboxCount)
	assert.Equal(t, 1, c.SpamCount)
	assert.InDelta(t, 2.0/3.0, c.InboxRate, 1e-9)
	assert.Equal(t, []string{"donation"}, c.Tags)
	assert.Equal(t, models.SourceSeed, c.Source)
	assert.Equal(t, []int64{c.ID}, review.queued)
	assert.Contains(t, links.excluded, "seed1@example.org")
}

func TestRun_RerunDoesNotDoubleCount(t *testing.T) {
	store := aggregate.NewMemoryStore()
	links := &fakeLinks{}
	p := New(Config{
		Collector:  &fakeCollector{observations: threeMailboxes()},
		Seen:       newSeenFilter(t),
		Links:      links,
		Aggregator: aggregate.NewAdapter(store),
	})
	ctx := context.Background()

	_, err := p.Run(ctx, day)
	require.NoError(t, err)
	res, err := p.Run(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, 3, res.AlreadySeen)
	assert.Zero(t, res.Candidates)
	require.Len(t, store.Campaigns(), 1)
	assert.Equal(t, 3, store.Campaigns()[0].InboxCount+store.Campaigns()[0].SpamCount)
	assert.Equal(t, 1, links.calls)
}

func TestRun_ExistingCampaignAddsCountsOnly(t *testing.T) {
	store := aggregate.NewMemoryStore()
	links := &fakeLinks{}
	attributor := &fakeAttributor{assignment: &attribution.Assignment{
		EntityID: "ent-1",
		Method:   models.MethodSenderDomain,
	}}
	collector := &fakeCollector{observations: threeMailboxes()}
	p := New(Config{
		Collector:  collector,
		Links:      links,
		Attributor: attributor,
		Aggregator: aggregate.NewAdapter(store),
	})
	ctx := context.Background()

	res, err := p.Run(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Assigned)

	next := day.Add(24 * time.Hour)
	collector.observations = []models.EmailObservation{
		observation("seed1@example.org", "<b@mail>", models.PlacementSpam, next),
		observation("seed2@example.org", "<b@mail>", models.PlacementSpam, next),
	}
	res, err = p.Run(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	c := store.Campaigns()[0]
	assert.Equal(t, 2, c.InboxCount)
	assert.Equal(t, 3, c.SpamCount)
	assert.Contains(t, c.Tags, aggregate.TagSpamHeavy)
	assert.Equal(t, "ent-1", c.EntityID)
	assert.Equal(t, day, c.FirstSeenAt)
	assert.Equal(t, 1, links.calls)
	assert.Len(t, attributor.inputs, 1)
}

func TestRun_DaysOfOneCampaignMergeOnce(t *testing.T) {
	store := aggregate.NewMemoryStore()
	obs := threeMailboxes()
	next := day.Add(24 * time.Hour)
	obs = append(obs,
		observation("seed1@example.org", "<b@mail>", models.PlacementInbox, next),
		observation("seed2@example.org", "<b@mail>", models.PlacementInbox, next),
	)

	p := New(Config{
		Collector:  &fakeCollector{observations: obs},
		Aggregator: aggregate.NewAdapter(store),
	})
	res, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Updated)

	c := store.Campaigns()[0]
	assert.Equal(t, 4, c.InboxCount)
	assert.Equal(t, day, c.FirstSeenAt)
}

func TestRun_FailureIsIsolated(t *testing.T) {
	store := &failingStore{MemoryStore: aggregate.NewMemoryStore(), failSender: "team@janeforsenate.com"}
	obs := threeMailboxes()
	for _, id := range []string{"<c@mail>", "<d@mail>"} {
		o := observation("seed1@example.org", id, models.PlacementInbox, day)
		o.SenderAddress = "news@otherpac.org"
		o.SourceMailbox = "seed" + id + "@example.org"
		obs = append(obs, o)
	}
	seen := newSeenFilter(t)

	p := New(Config{
		Collector:  &fakeCollector{observations: obs},
		Seen:       seen,
		Aggregator: aggregate.NewAdapter(store),
	})
	res, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "team@janeforsenate.com", res.Failures[0].SenderAddress)
	assert.Contains(t, res.Failures[0].Error, "deadlock")

	// The failed campaign's messages stay unmarked so the next run retries them.
	marked, err := seen.Seen(context.Background(), []string{"seed1@example.org:<a@mail>"})
	require.NoError(t, err)
	assert.False(t, marked["seed1@example.org:<a@mail>"])
}

func TestRun_AttributionErrorLeavesUnassigned(t *testing.T) {
	store := aggregate.NewMemoryStore()
	review := &fakeReview{}
	p := New(Config{
		Collector:  &fakeCollector{observations: threeMailboxes()},
		Attributor: &fakeAttributor{err: errors.New("registry down")},
		Aggregator: aggregate.NewAdapter(store),
		Review:     review,
	})

	res, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Assigned)
	assert.Len(t, review.queued, 1)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// stalledTransport fails every request the way an unresponsive host does.
type stalledTransport struct {
	calls atomic.Int32
}

func (s *stalledTransport) RoundTrip(*http.Request) (*http.Response, error) {
	s.calls.Add(1)
	return nil, timeoutError{}
}

func TestRun_UnreachableTrackerStillRecordsCampaign(t *testing.T) {
	store := aggregate.NewMemoryStore()
	verified, insecure := &stalledTransport{}, &stalledTransport{}
	links := cta.NewProcessor(cta.ProcessorConfig{
		Resolver: redirect.NewResolver(redirect.Config{
			Transport:         verified,
			InsecureTransport: insecure,
			Timeout:           time.Second,
		}),
	})

	obs := threeMailboxes()
	for i := range obs {
		obs[i].BodyHTML = `<p>Chip in today</p><a href="https://click.janeforsenate.com/r/abc?u=1&id=9">Donate now</a>`
	}
	p := New(Config{
		Seeds:      []string{"seed1@example.org", "seed2@example.org", "seed3@example.org"},
		Collector:  &fakeCollector{observations: obs},
		Links:      links,
		Aggregator: aggregate.NewAdapter(store),
	})

	res, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Failed)

	campaigns := store.Campaigns()
	require.Len(t, campaigns, 1)
	require.Len(t, campaigns[0].CTALinks, 1)
	link := campaigns[0].CTALinks[0]
	assert.Equal(t, "https://click.janeforsenate.com/r/abc", link.OriginalURL)
	assert.Empty(t, link.FinalURL)
	assert.NotEmpty(t, link.Category)

	assert.Positive(t, verified.calls.Load())
	assert.Positive(t, insecure.calls.Load())
}
