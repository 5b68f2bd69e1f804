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
	"sort"

	"github.com/bcem/campaigns/internal/models"
)

// Tags lists the distinct link categories other than "other", sorted.
func Tags(links []models.CTALink) []string {
	seen := make(map[models.Category]bool)
	var tags []string
	for _, l := range links {
		if l.Category == "" || l.Category == models.CategoryOther || seen[l.Category] {
			continue
		}
		seen[l.Category] = true
		tags = append(tags, string(l.Category))
	}
	sort.Strings(tags)
	return tags
}
