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

package models

import "time"

// Category is the purpose of a call-to-action link.
type Category string

const (
	CategoryDonation  Category = "donation"
	CategoryPetition  Category = "petition"
	CategoryEvent     Category = "event"
	CategoryVolunteer Category = "volunteer"
	CategoryOther     Category = "other"
)

// ParseCategory maps free text onto a known category.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryDonation, CategoryPetition, CategoryEvent, CategoryVolunteer, CategoryOther:
		return Category(s), true
	}
	return "", false
}

// CTALink is an outbound call-to-action link found in a campaign body.
// FinalURL is only set when resolution reached a different destination.
type CTALink struct {
	OriginalURL string   `json:"originalUrl"`
	FinalURL    string   `json:"finalUrl,omitempty"`
	Category    Category `json:"category"`
}

// EffectiveURL is the destination a reader ends up on.
func (l CTALink) EffectiveURL() string {
	if l.FinalURL != "" {
		return l.FinalURL
	}
	return l.OriginalURL
}

// AssignmentMethod records how a campaign got its entity.
type AssignmentMethod string

const (
	MethodSenderEmail          AssignmentMethod = "sender_email"
	MethodSenderDomain         AssignmentMethod = "sender_domain"
	MethodSenderPhone          AssignmentMethod = "sender_phone"
	MethodDataBrokerNewsletter AssignmentMethod = "data_broker_newsletter"
	MethodManual               AssignmentMethod = "manual"
)

// AutoMethod is the assignment method for a donation identifier match.
func AutoMethod(p Platform) AssignmentMethod {
	return AssignmentMethod("auto_" + string(p))
}

// Campaign is the canonical record for one sender + sanitized subject,
// aggregated over every mailbox and day it was seen.
type Campaign struct {
	ID                int64            `json:"id"`
	SenderAddress     string           `json:"sender_address"`
	SenderName        string           `json:"sender_name"`
	Subject           string           `json:"subject"`
	FirstSeenAt       time.Time        `json:"first_seen_at"`
	InboxCount        int              `json:"inbox_count"`
	SpamCount         int              `json:"spam_count"`
	NotDeliveredCount int              `json:"not_delivered_count"`
	InboxRate         float64          `json:"inbox_rate"`
	CTALinks          []CTALink        `json:"cta_links"`
	Tags              []string         `json:"tags"`
	EntityID          string           `json:"entity_id,omitempty"`
	AssignmentMethod  AssignmentMethod `json:"assignment_method,omitempty"`
	ClientID          string           `json:"client_id,omitempty"`
	Source            CampaignSource   `json:"source"`
	BodyHTML          string           `json:"-"`
}

// InboxRate is inbox / (inbox + spam + not delivered), zero when empty.
func InboxRate(inbox, spam, notDelivered int) float64 {
	total := inbox + spam + notDelivered
	if total == 0 {
		return 0
	}
	return float64(inbox) / float64(total)
}

// SMSCampaign is a text-message campaign. It shares CTA and attribution
// handling with email campaigns but is keyed by the sender phone.
type SMSCampaign struct {
	ID               int64            `json:"id"`
	SenderPhone      string           `json:"sender_phone"`
	Body             string           `json:"body"`
	ReceivedAt       time.Time        `json:"received_at"`
	CTALinks         []CTALink        `json:"cta_links"`
	EntityID         string           `json:"entity_id,omitempty"`
	AssignmentMethod AssignmentMethod `json:"assignment_method,omitempty"`
}
