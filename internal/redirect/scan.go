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
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// Platform redirect pages that assign the destination to a variable.
	scriptVarPattern = regexp.MustCompile(`(?i)(?:var|let|const)\s+(?:redirect_?url|redirect_?to|target_?url|dest(?:ination)?_?url|final_?url|link_?url)\s*=\s*["']([^"']+)["']`)

	refreshContentPattern = regexp.MustCompile(`(?i)^\s*\d*(?:\.\d+)?\s*[;,]?\s*(?:url\s*=\s*)?['"]?([^'"]+?)['"]?\s*$`)

	locationAssignPattern = regexp.MustCompile(`(?i)(?:window\.|document\.|top\.|self\.)?location(?:\.href)?\s*=\s*["']([^"']+)["']`)
	locationCallPattern   = regexp.MustCompile(`(?i)location\.(?:replace|assign)\(\s*["']([^"']+)["']\s*\)`)
)

// bodyScanners run in priority order over a fetched page.
var bodyScanners = []func(string) string{
	scanScriptVariable,
	scanMetaRefresh,
	scanWindowLocation,
}

// nextFromBody looks for a client-side redirect in body, then for a
// vendor query parameter on current. Nil means current is final.
func nextFromBody(current *url.URL, body string) *url.URL {
	for _, scan := range bodyScanners {
		if raw := scan(body); raw != "" {
			if next := acceptHop(current, raw); next != nil {
				return next
			}
		}
	}
	return queryParamTarget(current)
}

func scanScriptVariable(body string) string {
	m := scriptVarPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return unescapeJS(m[1])
}

func scanMetaRefresh(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var target string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("http-equiv", "")), "refresh") {
			return true
		}
		target = refreshTarget(s.AttrOr("content", ""))
		return target == ""
	})
	return target
}

// refreshTarget extracts the URL from a refresh value like "0; url='x'".
func refreshTarget(content string) string {
	m := refreshContentPattern.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	target := strings.TrimSpace(m[1])
	// A bare delay ("5") carries no destination.
	if strings.Trim(target, "0123456789.;, ") == "" {
		return ""
	}
	return target
}

func scanWindowLocation(body string) string {
	if m := locationCallPattern.FindStringSubmatch(body); m != nil {
		return unescapeJS(m[1])
	}
	if m := locationAssignPattern.FindStringSubmatch(body); m != nil {
		return unescapeJS(m[1])
	}
	return ""
}

func unescapeJS(s string) string {
	s = strings.ReplaceAll(s, `\/`, "/")
	return html.UnescapeString(s)
}

// acceptHop resolves raw against current and rejects self references.
func acceptHop(current *url.URL, raw string) *url.URL {
	next := resolveReference(current, raw)
	if next == nil {
		return nil
	}
	if sameResource(current, next) {
		return nil
	}
	return next
}

func sameResource(a, b *url.URL) bool {
	ac, bc := *a, *b
	ac.Fragment, bc.Fragment = "", ""
	ac.RawFragment, bc.RawFragment = "", ""
	return ac.String() == bc.String()
}
