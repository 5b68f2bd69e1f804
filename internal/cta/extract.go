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

// Package cta extracts call-to-action links from email bodies, resolves
// them through click trackers and classifies their purpose.
package cta

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxLinks caps the links kept per body.
const DefaultMaxLinks = 15

// Candidate is a link that survived filtering.
type Candidate struct {
	URL     string
	Text    string
	Keyword bool // text or URL carries a call-to-action keyword
}

var (
	ctaKeywordPattern = regexp.MustCompile(`(?i)donat|contribut|chip[- ]?in|\bgive\b|rush|match|petition|\bsign\b|pledge|volunteer|rsvp|event|register|attend|ticket|survey|\bpoll\b|take action|act now|join`)

	unsubscribeURLPattern  = regexp.MustCompile(`(?i)unsub|opt[-_]?out|manage[-_]?(?:your[-_]?)?(?:email[-_]?)?(?:preferences|subscription)|email[-_]?preferences|subscription[-_]?(?:center|centre|preferences)|remove[-_]?me|/preferences(?:/|$|\?)`)
	unsubscribeTextPattern = regexp.MustCompile(`(?i)unsubscribe|opt[- ]?out|manage (?:your )?(?:email |subscription )?preferences|update (?:your )?preferences|stop receiving|remove me|email settings|fewer emails`)

	pixelPattern = regexp.MustCompile(`(?i)/(?:open|pixel|beacon|track/open|wf/open|o)(?:/|\.gif|$)|\.gif(?:\?|$)`)

	assetExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
		".webp": true, ".ico": true, ".bmp": true, ".css": true, ".js": true,
		".woff": true, ".woff2": true, ".ttf": true,
	}

	ignoredDomains = []string{
		"google-analytics.com",
		"googletagmanager.com",
		"doubleclick.net",
		"fonts.googleapis.com",
		"fonts.gstatic.com",
		"gravatar.com",
		"w3.org",
		"schemas.microsoft.com",
		"mcusercontent.com",
		"mailchimp.com",
		"constantcontact.com",
		"apple.com",
		"play.google.com",
	}

	unsubscribeDomains = []string{
		"unsubscribe.",
		"optout.",
		"manage.kmail-lists.com",
		"preferences.",
		"email-preferences.",
	}

	socialDomains = []string{
		"facebook.com",
		"twitter.com",
		"x.com",
		"instagram.com",
		"youtube.com",
		"tiktok.com",
		"linkedin.com",
		"threads.net",
		"truthsocial.com",
		"rumble.com",
		"gettr.com",
		"parler.com",
	}

	genericTexts = map[string]bool{
		"": true, "here": true, "click here": true, "this link": true, "link": true,
		"learn more": true, "read more": true, "more": true, "view": true, "open": true,
		"view online": true, "view in browser": true,
	}
)

// Extract returns the outbound call-to-action links in body. Links pointing
// at an excluded address (plain or URL-encoded) are dropped, as are assets,
// analytics, social profiles, pixels and unsubscribe links. The result is
// deduplicated and capped at maxLinks with keyword links first.
func Extract(body string, excluded []string, maxLinks int) []Candidate {
	if maxLinks <= 0 || maxLinks > DefaultMaxLinks {
		maxLinks = DefaultMaxLinks
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	excl := excludedNeedles(excluded)
	seen := make(map[string]bool)
	var out []Candidate

	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			text = strings.TrimSpace(s.AttrOr("title", s.Find("img").AttrOr("alt", "")))
		}

		u, ok := keepLink(href, text, excl)
		if !ok || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, Candidate{
			URL:     u,
			Text:    text,
			Keyword: ctaKeywordPattern.MatchString(text) || ctaKeywordPattern.MatchString(u),
		})
	})

	return prioritize(out, maxLinks)
}

// prioritize moves keyword links first, keeping document order otherwise.
func prioritize(links []Candidate, limit int) []Candidate {
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].Keyword && !links[j].Keyword
	})
	if len(links) > limit {
		links = links[:limit]
	}
	return links
}

// keepLink normalizes href and applies every filter.
func keepLink(href, text string, excluded []string) (string, bool) {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	raw := u.String()
	lower := strings.ToLower(raw)
	host := strings.ToLower(u.Hostname())

	switch {
	case assetExtensions[strings.ToLower(path.Ext(u.Path))]:
		return "", false
	case matchesDomain(host, ignoredDomains):
		return "", false
	case isSocialProfile(host, u.Path):
		return "", false
	case pixelPattern.MatchString(u.Path):
		return "", false
	case isUnsubscribe(host, lower, text):
		return "", false
	case containsAny(lower, excluded):
		return "", false
	}
	return raw, true
}

func isUnsubscribe(host, lowerURL, text string) bool {
	if unsubscribeURLPattern.MatchString(lowerURL) || unsubscribeTextPattern.MatchString(text) {
		return true
	}
	for _, prefix := range unsubscribeDomains {
		if strings.HasPrefix(host, prefix) || host == strings.TrimSuffix(prefix, ".") {
			return true
		}
	}
	return false
}

// isSocialProfile matches social homepages and profile pages, which never
// carry the campaign's ask.
func isSocialProfile(host, p string) bool {
	if !matchesDomain(host, socialDomains) {
		return false
	}
	segments := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	return len(segments) <= 1
}

func matchesDomain(host string, domains []string) bool {
	host = strings.TrimPrefix(host, "www.")
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func excludedNeedles(addresses []string) []string {
	var out []string
	for _, a := range addresses {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		out = append(out, a, strings.ToLower(url.QueryEscape(a)))
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// ambiguous reports whether a link could plausibly be an unsubscribe link
// that the patterns missed.
func ambiguous(c Candidate) bool {
	return !c.Keyword && genericTexts[strings.ToLower(strings.TrimSpace(c.Text))]
}
