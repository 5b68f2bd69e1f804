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

// Package attribution decides which political entity sent a campaign.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/bcem/campaigns/internal/ai"
	"github.com/bcem/campaigns/internal/models"
)

const (
	// BrokerConfidence is the minimum model confidence for a newsletter
	// verdict on a data-broker sender.
	BrokerConfidence = 0.7

	defaultIndexTTL = 5 * time.Minute
	maxPromptBody   = 4000
)

// ErrNotFound is returned by a Directory when nothing matches.
var ErrNotFound = errors.New("not found")

var brokerSchema = ai.Schema{
	Name:   "data_broker_content",
	Labels: []string{"newsletter", "sponsored_campaign"},
}

// Directory is the entity registry.
type Directory interface {
	// Entities returns every entity with parsed donation identifiers.
	// Entities whose identifiers could not be parsed have none.
	Entities(ctx context.Context) ([]models.Entity, error)
	Entity(ctx context.Context, id string) (*models.Entity, error)
	MappingByEmail(ctx context.Context, email string) (*models.EntityMapping, error)
	MappingByDomain(ctx context.Context, domain string) (*models.EntityMapping, error)
	MappingByPhone(ctx context.Context, phone string) (*models.EntityMapping, error)
	InsertMappingIfAbsent(ctx context.Context, m models.EntityMapping) error
}

// Input describes the campaign being attributed.
type Input struct {
	SenderAddress string
	SenderPhone   string
	Subject       string
	Body          string
	Links         []models.CTALink
}

// Assignment is a successful attribution.
type Assignment struct {
	EntityID string
	Method   models.AssignmentMethod
}

// Resolver applies the attribution precedence chain.
type Resolver struct {
	dir      Directory
	model    ai.Classifier
	indexTTL time.Duration

	mu       sync.Mutex
	index    map[Identifier]string
	loadedAt time.Time
}

// NewResolver creates an attribution resolver.
func NewResolver(dir Directory, model ai.Classifier) *Resolver {
	if model == nil {
		model = ai.Disabled{}
	}
	return &Resolver{dir: dir, model: model, indexTTL: defaultIndexTTL}
}

// Attribute returns the entity for in, or nil when the campaign stays
// unassigned. Errors are registry failures; a missing match is not an error.
//
// Precedence: donation identifier, sender email, sender domain (then parent
// domains), sender phone. A data-broker mapping only sticks when the model
// calls the content the broker's own newsletter.
func (r *Resolver) Attribute(ctx context.Context, in Input) (*Assignment, error) {
	if a, err := r.byDonation(ctx, in); err != nil || a != nil {
		return a, err
	}

	m, method, err := r.byMapping(ctx, in)
	if err != nil || m == nil {
		return nil, err
	}

	entity, err := r.dir.Entity(ctx, m.EntityID)
	if errors.Is(err, ErrNotFound) {
		slog.Warn("mapping points at missing entity", "entity_id", m.EntityID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", m.EntityID, err)
	}

	if !entity.IsDataBroker() {
		return &Assignment{EntityID: entity.ID, Method: method}, nil
	}
	return r.byBrokerContent(ctx, entity, in), nil
}

func (r *Resolver) byDonation(ctx context.Context, in Input) (*Assignment, error) {
	ids := ExtractIdentifiers(in.Links)
	if len(ids) == 0 {
		return nil, nil
	}

	index, err := r.donationIndex(ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		entityID, ok := index[id]
		if !ok {
			continue
		}
		r.rememberSender(ctx, entityID, in.SenderAddress)
		return &Assignment{EntityID: entityID, Method: models.AutoMethod(id.Platform)}, nil
	}
	return nil, nil
}

// rememberSender records the sender email as a shortcut for next time. A
// sender that already maps somewhere, such as a broker renting out its list,
// keeps that mapping so its later sends still go through the broker check.
func (r *Resolver) rememberSender(ctx context.Context, entityID, sender string) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return
	}
	existing, _, err := r.byMapping(ctx, Input{SenderAddress: sender})
	if err != nil {
		slog.Warn("sender mapping lookup failed, not recording shortcut", "sender", sender, "error", err)
		return
	}
	if existing != nil {
		slog.Debug("sender already mapped, not recording shortcut",
			"sender", sender,
			"entity_id", entityID,
			"mapped_entity_id", existing.EntityID,
		)
		return
	}
	err = r.dir.InsertMappingIfAbsent(ctx, models.EntityMapping{EntityID: entityID, SenderEmail: sender})
	if err != nil {
		slog.Warn("record sender mapping failed", "sender", sender, "entity_id", entityID, "error", err)
	}
}

func (r *Resolver) byMapping(ctx context.Context, in Input) (*models.EntityMapping, models.AssignmentMethod, error) {
	email := strings.ToLower(strings.TrimSpace(in.SenderAddress))
	if email != "" {
		m, err := found(r.dir.MappingByEmail(ctx, email))
		if err != nil || m != nil {
			return m, models.MethodSenderEmail, err
		}

		for _, domain := range domainCandidates(email) {
			m, err := found(r.dir.MappingByDomain(ctx, domain))
			if err != nil || m != nil {
				return m, models.MethodSenderDomain, err
			}
		}
	}

	if phone := NormalizePhone(in.SenderPhone); phone != "" {
		m, err := found(r.dir.MappingByPhone(ctx, phone))
		if err != nil || m != nil {
			return m, models.MethodSenderPhone, err
		}
	}
	return nil, "", nil
}

// byBrokerContent asks the model whether a broker is mailing its own
// newsletter. Sponsored sends need a donation match, which has already
// failed by the time this runs.
func (r *Resolver) byBrokerContent(ctx context.Context, broker *models.Entity, in Input) *Assignment {
	prompt := fmt.Sprintf(
		"The sender below is a data broker that rents its list to political campaigns.\n"+
			"Decide whether this email is the broker's own newsletter or a sponsored campaign for someone else.\n\n"+
			"Subject: %s\n\nBody:\n%s", in.Subject, plainText(in.Body))

	c, err := r.model.Classify(ctx, prompt, brokerSchema)
	if err != nil {
		slog.Debug("broker content classification unavailable", "entity_id", broker.ID, "error", err)
		return nil
	}
	if c.Type != "newsletter" || c.Confidence < BrokerConfidence {
		slog.Debug("broker send left unassigned",
			"entity_id", broker.ID,
			"type", c.Type,
			"confidence", c.Confidence,
		)
		return nil
	}
	return &Assignment{EntityID: broker.ID, Method: models.MethodDataBrokerNewsletter}
}

// donationIndex maps identifiers to entity IDs, reloading after indexTTL.
func (r *Resolver) donationIndex(ctx context.Context) (map[Identifier]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index != nil && time.Since(r.loadedAt) < r.indexTTL {
		return r.index, nil
	}

	entities, err := r.dir.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	index := make(map[Identifier]string)
	for _, e := range entities {
		for _, p := range models.Platforms {
			for _, id := range e.DonationIdentifiers.List(p) {
				key := Identifier{Platform: p, ID: id}
				if prev, dup := index[key]; dup && prev != e.ID {
					slog.Warn("donation identifier registered twice",
						"platform", p,
						"identifier", id,
						"entity_id", prev,
						"other_entity_id", e.ID,
					)
					continue
				}
				index[key] = e.ID
			}
		}
	}
	r.index = index
	r.loadedAt = time.Now()
	return index, nil
}

// Invalidate forces the donation index to reload on next use.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.index = nil
	r.mu.Unlock()
}

func found(m *models.EntityMapping, err error) (*models.EntityMapping, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// domainCandidates returns the sender domain followed by its parents,
// stopping at the registrable domain.
func domainCandidates(email string) []string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return nil
	}
	domain := email[at+1:]
	out := []string{domain}

	root, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil || !strings.HasSuffix(domain, "."+root) {
		return out
	}
	for domain != root {
		domain = domain[strings.Index(domain, ".")+1:]
		out = append(out, domain)
	}
	return out
}

// NormalizePhone keeps digits and drops a leading US country code.
func NormalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	return digits
}

func plainText(body string) string {
	text := body
	if strings.Contains(body, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
			doc.Find("script, style").Remove()
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxPromptBody {
		cut := maxPromptBody
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
