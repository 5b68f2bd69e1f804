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

// Package models defines the data structures shared across the campaign pipeline.
package models

import "time"

// Placement is the folder class a message was found in.
type Placement string

const (
	PlacementInbox      Placement = "inbox"
	PlacementSpam       Placement = "spam"
	PlacementSocial     Placement = "social"
	PlacementPromotions Placement = "promotions"
	PlacementOther      Placement = "other"
)

// Delivered reports whether the placement counts towards the inbox total.
// Gmail-style tabs are still inbox delivery.
func (p Placement) Delivered() bool {
	switch p {
	case PlacementInbox, PlacementSocial, PlacementPromotions:
		return true
	}
	return false
}

// CampaignSource distinguishes monitored seed mailboxes from client-owned ones.
type CampaignSource string

const (
	SourceSeed     CampaignSource = "seed"
	SourcePersonal CampaignSource = "personal"
)

// EmailObservation is one message seen in one mailbox. It is produced by a
// mailbox source and never modified afterwards.
type EmailObservation struct {
	SenderName       string    `json:"sender_name"`
	SenderAddress    string    `json:"sender_address"`
	Subject          string    `json:"subject"`
	ReceivedAt       time.Time `json:"received_at"`
	BodyHTML         string    `json:"body_html,omitempty"`
	Placement        Placement `json:"placement"`
	SourceMailbox    string    `json:"source_mailbox"`
	RecipientAddress string    `json:"recipient_address,omitempty"`
	MessageID        string    `json:"message_id,omitempty"`

	// Copied from the scanned account.
	Source   CampaignSource `json:"source"`
	ClientID string         `json:"client_id,omitempty"`
}

// IdempotencyKey identifies the physical message across runs. Empty when
// the source did not report a message ID.
func (o EmailObservation) IdempotencyKey() string {
	if o.MessageID == "" {
		return ""
	}
	return o.SourceMailbox + ":" + o.MessageID
}
