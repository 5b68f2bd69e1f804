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

package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/campaigns/internal/config"
	"github.com/bcem/campaigns/internal/models"
)

func message(id, from, subject, received string) map[string]any {
	return map[string]any{
		"id":                id,
		"internetMessageId": "<" + id + "@mail.example.com>",
		"subject":           subject,
		"from":              map[string]any{"emailAddress": map[string]string{"address": from, "name": "Team"}},
		"toRecipients": []any{
			map[string]any{"emailAddress": map[string]string{"address": "Seed1@Example.com"}},
		},
		"receivedDateTime":        received,
		"inferenceClassification": "focused",
		"body":                    map[string]string{"contentType": "html", "content": "<p>" + subject + "</p>"},
	}
}

func newGraphServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.Contains(r.URL.Path, "/mailFolders/inbox/") && r.URL.Query().Get("page") == "":
			assert.Contains(t, r.URL.Query().Get("$filter"), "receivedDateTime ge 2026-01-01T00:00:00Z")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []any{
					message("m1", "News@Campaign.org", "Deadline", "2026-01-02T10:00:00Z"),
					message("m2", "news@campaign.org", "Deadline", "2026-01-02T11:00:00Z"),
				},
				"@odata.nextLink": srv.URL + r.URL.Path + "?page=2",
			})
		case strings.Contains(r.URL.Path, "/mailFolders/inbox/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []any{message("m3", "news@campaign.org", "Match", "2026-01-02T12:00:00Z")},
			})
		case strings.Contains(r.URL.Path, "/mailFolders/junkemail/"):
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"code":"ServiceUnavailable"}}`)
		case strings.Contains(r.URL.Path, "/mailFolders/clutter/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []any{message("m4", "promo@brand.com", "Sale", "2026-01-02T13:00:00Z")},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

var seedAccount = Account{
	Alias:    "seed1",
	Tenant:   "t1",
	Address:  "seed1@example.com",
	UserID:   "seed1@example.com",
	Source:   models.SourceSeed,
	ClientID: "client-9",
}

func TestGraph_FetchSince(t *testing.T) {
	var requests atomic.Int32
	srv := newGraphServer(t, &requests)
	g := NewGraph(GraphConfig{BaseURL: srv.URL, Clients: map[string]*http.Client{"t1": srv.Client()}})

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := g.FetchSince(context.Background(), seedAccount, since, 0)

	require.Len(t, got, 4)
	assert.Equal(t, "news@campaign.org", got[0].SenderAddress)
	assert.Equal(t, "<m1@mail.example.com>", got[0].MessageID)
	assert.Equal(t, models.PlacementInbox, got[0].Placement)
	assert.Equal(t, "seed1@example.com", got[0].RecipientAddress)
	assert.Equal(t, "seed1@example.com", got[0].SourceMailbox)
	assert.Equal(t, models.SourceSeed, got[0].Source)
	assert.Equal(t, "client-9", got[0].ClientID)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), got[0].ReceivedAt)
	assert.Equal(t, "Match", got[2].Subject)
	assert.Equal(t, models.PlacementPromotions, got[3].Placement)
}

func TestGraph_FetchSinceRespectsMax(t *testing.T) {
	var requests atomic.Int32
	srv := newGraphServer(t, &requests)
	g := NewGraph(GraphConfig{BaseURL: srv.URL, Clients: map[string]*http.Client{"t1": srv.Client()}})

	got := g.FetchSince(context.Background(), seedAccount, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 2)

	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), requests.Load())
}

func TestGraph_UnknownTenantReturnsEmpty(t *testing.T) {
	g := NewGraph(GraphConfig{Clients: map[string]*http.Client{}})

	got := g.FetchSince(context.Background(), seedAccount, time.Now(), 10)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGraphMessage_FocusedOtherIsPromotions(t *testing.T) {
	var m graphMessage
	m.ID = "x"
	m.InferenceClassification = "other"
	m.ReceivedDateTime = "2026-01-02T10:00:00Z"

	obs := m.observation(seedAccount, models.PlacementInbox)
	assert.Equal(t, models.PlacementPromotions, obs.Placement)
	assert.Equal(t, "x", obs.MessageID)
}

func TestAccountsFromConfig(t *testing.T) {
	cfg := &config.Config{Accounts: []config.AccountConfig{
		{Alias: "a", Tenant: "t1", Address: "A@Example.com", Source: "personal"},
		{Alias: "b", Tenant: "t1", Address: "b@example.com", UserID: "guid-b", Source: "seed"},
	}}

	got := AccountsFromConfig(cfg)

	require.Len(t, got, 2)
	assert.Equal(t, "a@example.com", got[0].Address)
	assert.Equal(t, "A@Example.com", got[0].UserID)
	assert.Equal(t, models.SourcePersonal, got[0].Source)
	assert.Equal(t, "guid-b", got[1].UserID)
}
