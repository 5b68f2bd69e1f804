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

package redirect

import (
	"net/url"
	"regexp"
	"strings"
)

// vendorParam names the query parameter a wrapping service stores the
// real destination in.
type vendorParam struct {
	host       string // exact host or parent domain
	pathPrefix string
	params     []string
}

var vendorParams = []vendorParam{
	{host: "safelinks.protection.outlook.com", params: []string{"url"}},
	{host: "l.facebook.com", params: []string{"u"}},
	{host: "lm.facebook.com", params: []string{"u"}},
	{host: "google.com", pathPrefix: "/url", params: []string{"q", "url"}},
	{host: "www.google.com", pathPrefix: "/url", params: []string{"q", "url"}},
	{host: "out.reddit.com", params: []string{"url"}},
	{host: "t.umblr.com", params: []string{"z"}},
	{host: "urldefense.com", params: []string{"u", "url"}},
	{host: "link.mail.beehiiv.com", params: []string{"url"}},
}

// Parameter names that commonly carry a destination on tracker hosts.
var genericDestinationParams = []string{
	"url", "u", "redirect", "redirect_url", "redirect_uri", "redir",
	"target", "dest", "destination", "goto", "to", "link", "r",
}

var (
	trackerHostPattern = regexp.MustCompile(`^(?:click|clicks|clk|link|links|lnk|trk|track|tracking|email|emails|em|eml|e|go|r|t|l|u|url|mail|send|ablink|post|mkt|news)\d*\.`)
	trackerPathPattern = regexp.MustCompile(`(?i)/(?:track/click|ls/click|wf/click|c/|cl/|click|r/|redir|redirect|trk/|ss/c/)`)
)

var trackerDomains = []string{
	"list-manage.com",
	"sendgrid.net",
	"mailchi.mp",
	"mandrillapp.com",
	"mailgun.org",
	"sparkpostmail.com",
	"exct.net",
	"rs6.net",
	"hubspotlinks.com",
	"convertkit-mail.com",
	"convertkit-mail2.com",
	"klclick.com",
	"klclick1.com",
	"klaviyomail.com",
	"createsend.com",
	"cmail19.com",
	"cmail20.com",
	"emlnk.com",
	"bit.ly",
	"tinyurl.com",
	"ow.ly",
	"t.co",
	"lnkd.in",
	"rebrand.ly",
	"safelinks.protection.outlook.com",
	"urldefense.com",
	"urldefense.proofpoint.com",
	"l.facebook.com",
}

// LooksLikeTracker reports whether raw has the shape of a click tracker,
// link shortener or link-wrapping service.
func LooksLikeTracker(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if trackerHostPattern.MatchString(host) {
		return true
	}
	for _, d := range trackerDomains {
		if hostMatches(host, d) {
			return true
		}
	}
	return trackerPathPattern.MatchString(u.EscapedPath())
}

// queryParamTarget extracts a destination URL a wrapping service stored in
// a query parameter of current.
func queryParamTarget(current *url.URL) *url.URL {
	host := strings.ToLower(current.Hostname())
	q := current.Query()

	for _, v := range vendorParams {
		if !hostMatches(host, v.host) || !strings.HasPrefix(current.Path, v.pathPrefix) {
			continue
		}
		if next := firstURLParam(current, q, v.params, false); next != nil {
			return next
		}
	}

	if LooksLikeTracker(current.String()) {
		return firstURLParam(current, q, genericDestinationParams, true)
	}
	return nil
}

func firstURLParam(current *url.URL, q url.Values, names []string, otherHostOnly bool) *url.URL {
	for _, name := range names {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		next, err := parseHTTPURL(raw)
		if err != nil {
			continue
		}
		if otherHostOnly && strings.EqualFold(next.Hostname(), current.Hostname()) {
			continue
		}
		if sameResource(current, next) {
			continue
		}
		return next
	}
	return nil
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
