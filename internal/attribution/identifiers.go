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

package attribution

import (
	"net/url"
	"strings"

	"github.com/bcem/campaigns/internal/models"
)

// Identifier is a donation page identifier found in a link.
type Identifier struct {
	Platform models.Platform
	ID       string
}

var platformDomains = map[models.Platform]string{
	models.PlatformWinRed:    "winred.com",
	models.PlatformAnedot:    "anedot.com",
	models.PlatformActBlue:   "actblue.com",
	models.PlatformPSQImpact: "psqimpact.com",
	models.PlatformNGPVAN:    "ngpvan.com",
}

// ExtractIdentifiers returns the donation identifiers in links, in link
// order, checking the final URL before the original one.
func ExtractIdentifiers(links []models.CTALink) []Identifier {
	var out []Identifier
	seen := make(map[Identifier]bool)
	for _, l := range links {
		for _, raw := range []string{l.FinalURL, l.OriginalURL} {
			if raw == "" {
				continue
			}
			id, ok := IdentifierFromURL(raw)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// IdentifierFromURL parses the platform-specific path layout of a donation
// page URL.
func IdentifierFromURL(raw string) (Identifier, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return Identifier{}, false
	}
	p, ok := platformFor(strings.ToLower(u.Hostname()))
	if !ok {
		return Identifier{}, false
	}

	segs := pathSegments(u.Path)
	if len(segs) == 0 {
		return Identifier{}, false
	}

	var id string
	switch p {
	case models.PlatformWinRed, models.PlatformAnedot, models.PlatformNGPVAN:
		id = segs[0]
	case models.PlatformActBlue:
		id = actBlueID(segs)
	case models.PlatformPSQImpact:
		for _, s := range segs {
			if s != "donate" && s != "give" {
				id = s
				break
			}
		}
	}

	id = models.NormalizeIdentifier(id)
	if id == "" {
		return Identifier{}, false
	}
	return Identifier{Platform: p, ID: id}, true
}

// actBlueID handles /donate/<id> and /contribute/page/<id>.
func actBlueID(segs []string) string {
	for i, s := range segs {
		if s == "donate" && i+1 < len(segs) {
			return segs[i+1]
		}
	}
	for _, s := range segs {
		if s == "contribute" || s == "page" {
			return segs[len(segs)-1]
		}
	}
	return ""
}

func platformFor(host string) (models.Platform, bool) {
	for p, d := range platformDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return p, true
		}
	}
	return "", false
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}
