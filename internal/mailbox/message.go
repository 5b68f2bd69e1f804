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
	"strings"
	"time"

	"github.com/bcem/campaigns/internal/models"
)

// messagesResponse is a page of the folder message list.
type messagesResponse struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type emailAddress struct {
	EmailAddress struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	} `json:"emailAddress"`
}

// graphMessage holds the fields we select from a Graph message.
type graphMessage struct {
	ID                      string         `json:"id"`
	InternetMessageID       string         `json:"internetMessageId"`
	Subject                 string         `json:"subject"`
	From                    emailAddress   `json:"from"`
	ToRecipients            []emailAddress `json:"toRecipients"`
	ReceivedDateTime        string         `json:"receivedDateTime"`
	InferenceClassification string         `json:"inferenceClassification"`
	Body                    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

func (m graphMessage) observation(acct Account, placement models.Placement) models.EmailObservation {
	received, err := time.Parse(time.RFC3339, m.ReceivedDateTime)
	if err != nil {
		received = time.Now().UTC()
	}

	// The internet message ID survives folder moves; the Graph ID does not.
	msgID := m.InternetMessageID
	if msgID == "" {
		msgID = m.ID
	}

	// Focused Inbox "Other" is delivered but not prominent.
	if placement == models.PlacementInbox && strings.EqualFold(m.InferenceClassification, "other") {
		placement = models.PlacementPromotions
	}

	recipient := acct.Address
	for _, r := range m.ToRecipients {
		if strings.EqualFold(r.EmailAddress.Address, acct.Address) {
			recipient = strings.ToLower(r.EmailAddress.Address)
			break
		}
	}

	return models.EmailObservation{
		SenderName:       m.From.EmailAddress.Name,
		SenderAddress:    strings.ToLower(strings.TrimSpace(m.From.EmailAddress.Address)),
		Subject:          m.Subject,
		ReceivedAt:       received.UTC(),
		BodyHTML:         m.Body.Content,
		Placement:        placement,
		SourceMailbox:    acct.Address,
		RecipientAddress: recipient,
		MessageID:        msgID,
		Source:           acct.Source,
		ClientID:         acct.ClientID,
	}
}
