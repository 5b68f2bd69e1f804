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
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/campaigns/internal/config"
	"github.com/bcem/campaigns/internal/models"
)

const (
	// DefaultGraphBaseURL is the Microsoft Graph v1.0 endpoint.
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

	defaultPageSize    = 50
	defaultPageTimeout = 45 * time.Second

	messageFields = "id,internetMessageId,subject,from,toRecipients,receivedDateTime,body,inferenceClassification"
)

// folder is a well-known Graph folder and the placement it implies.
type folder struct {
	name      string
	placement models.Placement
}

// Folders are scanned in priority order.
var folders = []folder{
	{name: "inbox", placement: models.PlacementInbox},
	{name: "junkemail", placement: models.PlacementSpam},
	{name: "clutter", placement: models.PlacementPromotions},
}

// GraphConfig holds dependencies for the Graph source.
type GraphConfig struct {
	BaseURL     string
	Clients     map[string]*http.Client // keyed by tenant alias
	PageSize    int
	PageTimeout time.Duration
}

// Graph reads mailboxes through Microsoft Graph.
type Graph struct {
	baseURL     string
	clients     map[string]*http.Client
	pageSize    int
	pageTimeout time.Duration
}

// NewGraph creates a Graph mailbox source.
func NewGraph(cfg GraphConfig) *Graph {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	return &Graph{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		clients:     cfg.Clients,
		pageSize:    cfg.PageSize,
		pageTimeout: cfg.PageTimeout,
	}
}

// TenantClients builds an app-only OAuth2 client per tenant. Token refresh
// is handled by the oauth2 transport.
func TenantClients(ctx context.Context, tenants []config.TenantConfig) map[string]*http.Client {
	clients := make(map[string]*http.Client, len(tenants))
	for _, t := range tenants {
		creds := &clientcredentials.Config{
			ClientID:     t.ClientID,
			ClientSecret: t.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", t.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		clients[t.Alias] = creds.Client(ctx)
	}
	return clients
}

// FetchSince returns up to max messages received since the given time,
// walking folders in priority order. A failing folder is skipped.
func (g *Graph) FetchSince(ctx context.Context, acct Account, since time.Time, max int) []models.EmailObservation {
	out := []models.EmailObservation{}

	client, ok := g.clients[acct.Tenant]
	if !ok {
		slog.Warn("no graph client for mailbox tenant",
			"mailbox", acct.Address,
			"tenant", acct.Tenant,
		)
		return out
	}

	for _, f := range folders {
		if max > 0 && len(out) >= max {
			break
		}
		remaining := 0
		if max > 0 {
			remaining = max - len(out)
		}

		got, err := g.fetchFolder(ctx, client, acct, f, since, remaining)
		out = append(out, got...)
		if err != nil {
			slog.Warn("mailbox folder scan failed",
				"mailbox", acct.Address,
				"folder", f.name,
				"error", err,
			)
			continue
		}
		slog.Debug("mailbox folder scanned",
			"mailbox", acct.Address,
			"folder", f.name,
			"messages", len(got),
		)
	}
	return out
}

// fetchFolder pages through one folder. Messages read before a failure are
// still returned.
func (g *Graph) fetchFolder(ctx context.Context, client *http.Client, acct Account, f folder, since time.Time, limit int) ([]models.EmailObservation, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	params.Set("$select", messageFields)
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$top", fmt.Sprint(g.pageSize))

	listURL := fmt.Sprintf("%s/users/%s/mailFolders/%s/messages?%s",
		g.baseURL, url.PathEscape(acct.UserID), f.name, params.Encode())

	var out []models.EmailObservation
	pageCount := 0
	for nextURL := listURL; nextURL != ""; {
		page, err := g.fetchPage(ctx, client, nextURL)
		if err != nil {
			return out, fmt.Errorf("fetch page %d: %w", pageCount, err)
		}
		pageCount++

		for _, msg := range page.Value {
			out = append(out, msg.observation(acct, f.placement))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		nextURL = page.NextLink
	}
	return out, nil
}

func (g *Graph) fetchPage(ctx context.Context, client *http.Client, pageURL string) (*messagesResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.pageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.body-content-type="html"`)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("messages list returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}
	return &page, nil
}
