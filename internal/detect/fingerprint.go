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

// Package detect groups raw mailbox observations into campaign candidates
// by content fingerprint.
package detect

import (
	"regexp"
	"strings"
	"time"
)

// RecipientPlaceholder replaces seed addresses in subjects.
const RecipientPlaceholder = "[recipient]"

var (
	replyPrefixPattern = regexp.MustCompile(`(?i)^\s*(?:re|fwd?)\s*:\s*`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// SanitizeSubject replaces every occurrence of a seed address with the
// recipient placeholder, case-insensitively.
func SanitizeSubject(subject string, seeds []string) string {
	for _, s := range seeds {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(s))
		subject = re.ReplaceAllLiteralString(subject, RecipientPlaceholder)
	}
	return strings.TrimSpace(subject)
}

// NormalizeSubject strips leading reply and forward markers, collapses
// whitespace and lowercases.
func NormalizeSubject(subject string) string {
	s := subject
	for {
		stripped := replyPrefixPattern.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = whitespacePattern.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToLower(s)
}

// Fingerprint identifies a campaign send: sender, normalized subject and
// UTC day. subject must already be sanitized.
func Fingerprint(senderAddress, subject string, receivedAt time.Time) string {
	return strings.ToLower(strings.TrimSpace(senderAddress)) + "|" +
		NormalizeSubject(subject) + "|" +
		receivedAt.UTC().Format("2006-01-02")
}
