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
	"regexp"
	"strings"

	"github.com/bcem/campaigns/internal/models"
)

// RuleConfidence is the confidence recorded for deterministic matches.
const RuleConfidence = 0.95

// hostRules map fundraising and organizing platforms to a category.
var hostRules = []struct {
	domain   string
	category models.Category
}{
	{"winred.com", models.CategoryDonation},
	{"actblue.com", models.CategoryDonation},
	{"anedot.com", models.CategoryDonation},
	{"psqimpact.com", models.CategoryDonation},
	{"ngpvan.com", models.CategoryDonation},
	{"donorbox.org", models.CategoryDonation},
	{"givesendgo.com", models.CategoryDonation},
	{"revv.co", models.CategoryDonation},
	{"numero.ai", models.CategoryDonation},
	{"change.org", models.CategoryPetition},
	{"sign.moveon.org", models.CategoryPetition},
	{"eventbrite.com", models.CategoryEvent},
	{"mobilize.us", models.CategoryEvent},
	{"lu.ma", models.CategoryEvent},
}

var pathRules = []struct {
	pattern  *regexp.Regexp
	category models.Category
}{
	{regexp.MustCompile(`donat|contribut|chip-?in|/give(?:/|$)|/fund(?:/|$)`), models.CategoryDonation},
	{regexp.MustCompile(`petition|pledge|/sign(?:/|$)|/sign-(?:now|here|the|our|your)`), models.CategoryPetition},
	{regexp.MustCompile(`volunteer|canvass|phone-?bank|text-?bank|get-?involved`), models.CategoryVolunteer},
	{regexp.MustCompile(`event|rsvp|ticket|town-?hall|rally|webinar`), models.CategoryEvent},
}

// ruleCategory classifies raw deterministically. The second value is false
// when no rule applies.
func ruleCategory(raw string) (models.Category, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, r := range hostRules {
		if host == r.domain || strings.HasSuffix(host, "."+r.domain) {
			return r.category, true
		}
	}

	p := strings.ToLower(u.Path)
	for _, r := range pathRules {
		if r.pattern.MatchString(p) {
			return r.category, true
		}
	}
	return "", false
}
