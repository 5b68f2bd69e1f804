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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBody = `<html><body>
<p>Friend, the deadline is midnight.</p>
<a href="https://trk.example.com/abc?u=1">DONATE NOW</a>
<a href="https://secure.winred.com/candidate/donate?amount=25">Chip in $25</a>
<a href="https://secure.winred.com/candidate/donate?amount=25">Chip in $25 again</a>
<a href="https://www.facebook.com/CandidateName">Like us</a>
<a href="https://www.facebook.com/CandidateName/posts/123">Watch the speech</a>
<a href="https://example.org/u/unsubscribe?e=seed1%40example.com">Unsubscribe</a>
<a href="https://example.org/prefs">Manage your email preferences</a>
<a href="https://example.org/survey?email=seed1@example.com">Take the survey</a>
<a href="mailto:info@example.org">Email us</a>
<a href="https://example.org/logo.png">logo</a>
<a href="https://www.google-analytics.com/collect?x=1">x</a>
<a href="#top">top</a>
<a href="https://example.org/about">About</a>
</body></html>`

func extractedURLs(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.URL
	}
	return out
}

func TestExtract_Filters(t *testing.T) {
	got := extractedURLs(Extract(sampleBody, []string{"Seed1@Example.com"}, 0))

	assert.Equal(t, []string{
		"https://trk.example.com/abc?u=1",
		"https://secure.winred.com/candidate/donate?amount=25",
		"https://www.facebook.com/CandidateName/posts/123",
		"https://example.org/about",
	}, got)
}

func TestExtract_ExcludesEncodedAddress(t *testing.T) {
	body := `<a href="https://act.example.org/sign?who=seed2%40example.com">Sign</a>
	<a href="https://act.example.org/sign?x=1">Sign the petition</a>`

	got := extractedURLs(Extract(body, []string{"seed2@example.com"}, 0))
	assert.Equal(t, []string{"https://act.example.org/sign?x=1"}, got)
}

func TestExtract_CapKeepsKeywordLinksFirst(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, `<a href="https://example.org/story/%d">Story %d</a>`, i, i)
	}
	sb.WriteString(`<a href="https://example.org/x">Donate today</a>`)

	got := Extract(sb.String(), nil, 50)
	require.Len(t, got, DefaultMaxLinks)
	assert.Equal(t, "https://example.org/x", got[0].URL)
	assert.True(t, got[0].Keyword)
}

func TestStripQueryParams_Idempotent(t *testing.T) {
	inputs := []string{
		"https://secure.winred.com/x/donate?amount=5&utm_source=em#top",
		"https://example.org/",
		"https://example.org/path?",
		"not a url?x=1",
		"",
	}
	for _, in := range inputs {
		once := StripQueryParams(in)
		assert.Equal(t, once, StripQueryParams(once), in)
		assert.NotContains(t, once, "?")
	}
	assert.Equal(t, "https://secure.winred.com/x/donate", StripQueryParams(inputs[0]))
}

func TestNormalizeURL(t *testing.T) {
	a := NormalizeURL("https://WWW.Example.org/Page/?utm_source=x&b=2&a=1#frag")
	b := NormalizeURL("http://example.org/page?a=1&b=2&fbclid=abc")
	assert.Equal(t, "example.org/page?a=1&b=2", a)
	assert.Equal(t, a, b)
}

func TestTags(t *testing.T) {
	assert.Equal(t, []string{"donation", "event"}, Tags(sampleLinks()))
	assert.Empty(t, Tags(nil))
}
