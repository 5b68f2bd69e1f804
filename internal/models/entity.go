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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EntityType classifies a political actor.
type EntityType string

const (
	EntityCandidate    EntityType = "candidate"
	EntityParty        EntityType = "party"
	EntityPAC          EntityType = "pac"
	EntityDataBroker   EntityType = "data_broker"
	EntityOrganization EntityType = "organization"
)

// Platform is a donation processor whose links carry an entity identifier.
type Platform string

const (
	PlatformWinRed    Platform = "winred"
	PlatformAnedot    Platform = "anedot"
	PlatformActBlue   Platform = "actblue"
	PlatformPSQImpact Platform = "psqimpact"
	PlatformNGPVAN    Platform = "ngpvan"
)

// Platforms lists every supported donation platform.
var Platforms = []Platform{PlatformWinRed, PlatformAnedot, PlatformActBlue, PlatformPSQImpact, PlatformNGPVAN}

// ParsePlatform maps a stored key onto a Platform.
func ParsePlatform(s string) (Platform, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Platforms {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// DonationIdentifiers holds normalized identifiers per platform.
type DonationIdentifiers map[Platform]map[string]struct{}

// NormalizeIdentifier is the case-folded form identifiers are compared in.
func NormalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Add registers an identifier for a platform. Blank identifiers are ignored.
func (d DonationIdentifiers) Add(p Platform, id string) {
	id = NormalizeIdentifier(id)
	if id == "" {
		return
	}
	set, ok := d[p]
	if !ok {
		set = make(map[string]struct{})
		d[p] = set
	}
	set[id] = struct{}{}
}

// Has reports whether the identifier is registered for the platform.
func (d DonationIdentifiers) Has(p Platform, id string) bool {
	_, ok := d[p][NormalizeIdentifier(id)]
	return ok
}

// List returns the sorted identifiers for a platform.
func (d DonationIdentifiers) List(p Platform) []string {
	out := make([]string, 0, len(d[p]))
	for id := range d[p] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON writes the canonical {"platform": ["id", ...]} form.
func (d DonationIdentifiers) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, len(d))
	for p := range d {
		if ids := d.List(p); len(ids) > 0 {
			out[string(p)] = ids
		}
	}
	return json.Marshal(out)
}

// ParseDonationIdentifiers decodes a stored identifier blob. It accepts a
// JSON object, the same object stored as a JSON string, and values given as
// arrays, single strings or comma separated strings. Unknown platform keys
// are ignored.
func ParseDonationIdentifiers(raw []byte) (DonationIdentifiers, error) {
	return parseDonationIdentifiers(raw, 0)
}

func parseDonationIdentifiers(raw []byte, depth int) (DonationIdentifiers, error) {
	ids := make(DonationIdentifiers)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ids, nil
	}

	if raw[0] == '"' {
		if depth > 1 {
			return nil, fmt.Errorf("donation identifiers nested too deeply")
		}
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode stringified identifiers: %w", err)
		}
		return parseDonationIdentifiers([]byte(inner), depth+1)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode identifiers object: %w", err)
	}

	for key, value := range fields {
		p, ok := ParsePlatform(key)
		if !ok {
			continue
		}
		values, err := identifierValues(value)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", p, err)
		}
		for _, v := range values {
			ids.Add(p, v)
		}
	}
	return ids, nil
}

func identifierValues(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var items []any
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			switch v := item.(type) {
			case string:
				out = append(out, v)
			case float64:
				out = append(out, fmt.Sprintf("%.0f", v))
			}
		}
		return out, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if strings.HasPrefix(strings.TrimSpace(s), "[") {
			return identifierValues(json.RawMessage(s))
		}
		return strings.Split(s, ","), nil
	default:
		return nil, fmt.Errorf("unsupported identifier value %s", string(raw))
	}
}

// Entity is a political actor campaigns are attributed to.
type Entity struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	Type                EntityType          `json:"type"`
	DonationIdentifiers DonationIdentifiers `json:"donation_identifiers"`
}

// IsDataBroker reports whether the entity sends sponsored mail for others.
func (e Entity) IsDataBroker() bool {
	return e.Type == EntityDataBroker
}

// EntityMapping is a precomputed sender → entity shortcut. Exactly one of
// the sender fields is set.
type EntityMapping struct {
	EntityID     string `json:"entity_id"`
	SenderEmail  string `json:"sender_email,omitempty"`
	SenderDomain string `json:"sender_domain,omitempty"`
	SenderPhone  string `json:"sender_phone,omitempty"`
}
