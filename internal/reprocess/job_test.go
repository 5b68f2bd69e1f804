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

package reprocess

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/campaigns/internal/attribution"
	"github.com/bcem/campaigns/internal/models"
)

type fakeStore struct {
	campaigns []models.Campaign
	sms       []models.SMSCampaign

	linkUpdates map[int64][]models.CTALink
	tagUpdates  map[int64][]string
	assigned    map[string]string
	failLinksOn int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		linkUpdates: make(map[int64][]models.CTALink),
		tagUpdates:  make(map[int64][]string),
		assigned:    make(map[string]string),
	}
}

func (f *fakeStore) CampaignsAfter(_ context.Context, cursor int64, limit int) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, c := range f.campaigns {
		if c.ID > cursor && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) SMSAfter(_ context.Context, cursor int64, limit int) ([]models.SMSCampaign, error) {
	var out []models.SMSCampaign
	for _, m := range f.sms {
		if m.ID > cursor && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateCampaignLinks(_ context.Context, id int64, links []models.CTALink, tags []string) error {
	if id == f.failLinksOn {
		return errors.New("update failed")
	}
	f.linkUpdates[id] = links
	f.tagUpdates[id] = tags
	return nil
}

func (f *fakeStore) UpdateSMSLinks(_ context.Context, id int64, links []models.CTALink) error {
	f.linkUpdates[-id] = links
	return nil
}

func (f *fakeStore) AssignCampaign(_ context.Context, id int64, entityID string, _ models.AssignmentMethod) error {
	f.assigned[fmt.Sprintf("email%d", id)] = entityID
	return nil
}

func (f *fakeStore) AssignSMS(_ context.Context, id int64, entityID string, _ models.AssignmentMethod) error {
	f.assigned[fmt.Sprintf("sms%d", id)] = entityID
	return nil
}

type fakeLinks struct {
	refreshed int
	extracted int
	texts     int
}

var resolved = []models.CTALink{{
	OriginalURL: "https://bit.ly/give",
	FinalURL:    "https://secure.winred.com/jane",
	Category:    models.CategoryDonation,
}}

func (f *fakeLinks) Process(context.Context, string, []string) []models.CTALink {
	f.extracted++
	return resolved
}

func (f *fakeLinks) ProcessText(context.Context, string) []models.CTALink {
	f.texts++
	return resolved
}

func (f *fakeLinks) Refresh(context.Context, []models.CTALink) []models.CTALink {
	f.refreshed++
	return resolved
}

type fakeAttributor struct {
	inputs []attribution.Input
}

func (f *fakeAttributor) Attribute(_ context.Context, in attribution.Input) (*attribution.Assignment, error) {
	f.inputs = append(f.inputs, in)
	if in.SenderPhone == "+15550000000" {
		return nil, errors.New("registry timeout")
	}
	return &attribution.Assignment{EntityID: "ent-jane", Method: models.AutoMethod(models.PlatformWinRed)}, nil
}

func campaigns(n int) []models.Campaign {
	out := make([]models.Campaign, n)
	for i := range out {
		out[i] = models.Campaign{
			ID:            int64(i + 1),
			SenderAddress: "team@jane.com",
			Subject:       "Subject",
			CTALinks:      []models.CTALink{{OriginalURL: "https://bit.ly/give"}},
		}
	}
	return out
}

func TestRunPage_Pagination(t *testing.T) {
	store := newFakeStore()
	store.campaigns = campaigns(12)
	job := NewJob(store, &fakeLinks{}, &fakeAttributor{}, nil)
	ctx := context.Background()

	res, err := job.RunPage(ctx, Cursor{})
	require.NoError(t, err)
	assert.True(t, res.HasMore)
	assert.Equal(t, 10, res.Processed)
	assert.Equal(t, int64(10), res.LastEmailCursor)
	assert.Zero(t, res.LastSMSCursor)

	res, err = job.RunPage(ctx, res.Cursor)
	require.NoError(t, err)
	assert.False(t, res.HasMore)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, int64(12), res.LastEmailCursor)

	res, err = job.RunPage(ctx, res.Cursor)
	require.NoError(t, err)
	assert.False(t, res.HasMore)
	assert.Zero(t, res.Processed)
	assert.Equal(t, int64(12), res.LastEmailCursor)
	assert.NotNil(t, res.Failures)
}

func TestRunPage_RefreshesAndAttributes(t *testing.T) {
	store := newFakeStore()
	store.campaigns = []models.Campaign{
		{ID: 1, SenderAddress: "a@jane.com", CTALinks: []models.CTALink{{OriginalURL: "https://bit.ly/give"}}},
		{ID: 2, SenderAddress: "b@jane.com", BodyHTML: "<a href='x'>x</a>"},
		{ID: 3, SenderAddress: "c@jane.com", EntityID: "already", CTALinks: resolved},
	}
	store.sms = []models.SMSCampaign{
		{ID: 1, SenderPhone: "+15551112222", Body: "Give now https://bit.ly/give"},
	}
	links := &fakeLinks{}
	attributor := &fakeAttributor{}
	job := NewJob(store, links, attributor, []string{"seed@example.org"})

	res, err := job.RunPage(context.Background(), Cursor{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 3, res.Assigned)
	assert.Zero(t, res.Failed)

	assert.Equal(t, 2, links.refreshed)
	assert.Equal(t, 1, links.extracted)
	assert.Equal(t, 1, links.texts)
	assert.Equal(t, []string{"donation"}, store.tagUpdates[1])
	assert.Len(t, attributor.inputs, 3)
	assert.Equal(t, "ent-jane", store.assigned["sms1"])
	assert.NotContains(t, store.assigned, "email3")
	assert.Equal(t, resolved, attributor.inputs[0].Links)
}

func TestRunPage_FailuresDoNotAbort(t *testing.T) {
	store := newFakeStore()
	store.campaigns = campaigns(3)
	store.failLinksOn = 2
	store.sms = []models.SMSCampaign{
		{ID: 1, SenderPhone: "+15550000000", CTALinks: resolved},
		{ID: 2, SenderPhone: "+15551112222", CTALinks: resolved},
	}
	job := NewJob(store, &fakeLinks{}, &fakeAttributor{}, nil)

	res, err := job.RunPage(context.Background(), Cursor{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, RecordFailure{Source: "email", ID: 2, Error: "update failed"}, res.Failures[0])
	assert.Equal(t, "sms", res.Failures[1].Source)
	assert.Equal(t, int64(3), res.LastEmailCursor)
	assert.Equal(t, int64(2), res.LastSMSCursor)
}

type invalidatingAttributor struct {
	fakeAttributor
	invalidations int
}

func (f *invalidatingAttributor) Invalidate() { f.invalidations++ }

func TestRunPage_FreshPassReloadsRegistry(t *testing.T) {
	store := newFakeStore()
	store.campaigns = campaigns(12)
	attributor := &invalidatingAttributor{}
	job := NewJob(store, &fakeLinks{}, attributor, nil)

	res, err := job.RunPage(context.Background(), Cursor{})
	require.NoError(t, err)
	_, err = job.RunPage(context.Background(), res.Cursor)
	require.NoError(t, err)

	assert.Equal(t, 1, attributor.invalidations)
}

func TestRunPage_StoredBodyPreferredOverStrippedLinks(t *testing.T) {
	store := newFakeStore()
	store.campaigns = []models.Campaign{{
		ID:            1,
		SenderAddress: "a@jane.com",
		BodyHTML:      `<a href="https://trk.example.com/c?id=42">Give</a>`,
		CTALinks:      []models.CTALink{{OriginalURL: "https://trk.example.com/c"}},
	}}
	store.sms = []models.SMSCampaign{{
		ID:          1,
		SenderPhone: "+15551112222",
		Body:        "Give now https://trk.example.com/c?id=7",
		CTALinks:    []models.CTALink{{OriginalURL: "https://trk.example.com/c"}},
	}}
	links := &fakeLinks{}
	job := NewJob(store, links, &fakeAttributor{}, nil)

	res, err := job.RunPage(context.Background(), Cursor{})
	require.NoError(t, err)
	assert.Zero(t, res.Failed)

	assert.Zero(t, links.refreshed)
	assert.Equal(t, 1, links.extracted)
	assert.Equal(t, 1, links.texts)
	assert.Equal(t, resolved, store.linkUpdates[1])
	assert.Equal(t, resolved, store.linkUpdates[-1])
}
