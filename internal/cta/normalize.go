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

package cta

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are dropped by NormalizeURL. Entries ending in "_" match
// as prefixes.
var trackingParams = []string{
	"utm_", "fbclid", "gclid", "dclid", "msclkid", "mc_cid", "mc_eid",
	"_hsenc", "_hsmi", "mkt_tok", "refcode", "refcode2", "ref", "src", "sc",
	"amount", "recurring", "email", "em", "e", "emailaddress",
}

// StripQueryParams removes the query string and fragment. It is idempotent.
func StripQueryParams(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// NormalizeURL is the cache key for a link: lowercase host and path
// without www, scheme, trailing slash, fragment or tracking parameters.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	p := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if isTrackingParam(strings.ToLower(k)) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(host)
	sb.WriteString(p)
	for i, k := range keys {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		vals := q[k]
		sort.Strings(vals)
		sb.WriteString(strings.ToLower(url.QueryEscape(k)))
		sb.WriteByte('=')
		sb.WriteString(strings.ToLower(url.QueryEscape(strings.Join(vals, ","))))
	}
	return sb.String()
}

func isTrackingParam(k string) bool {
	for _, p := range trackingParams {
		if strings.HasSuffix(p, "_") {
			if strings.HasPrefix(k, p) {
				return true
			}
			continue
		}
		if k == p {
			return true
		}
	}
	return false
}
