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

// Package redirect follows marketing and tracking links to their final
// destination. It understands HTTP redirects, meta refresh, script based
// redirects and vendors that embed the destination in a query parameter,
// and it degrades to a best-effort answer instead of failing.
package redirect

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultMaxHops bounds the number of redirects followed per link.
	DefaultMaxHops = 10

	// DefaultTimeout bounds a single HEAD or GET exchange.
	DefaultTimeout = 15 * time.Second

	defaultMaxBodyBytes = 1 << 20
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ErrMaxRedirects is wrapped into results that ran out of hops.
var ErrMaxRedirects = errors.New("max redirects exceeded")

// Result describes where a link ended up. Err is nil on a clean resolution.
type Result struct {
	OriginalURL string
	FinalURL    string
	Hops        int
	Chain       []string
	Kind        Kind
	Err         error
}

// Changed reports whether resolution moved away from the input URL.
func (r Result) Changed() bool {
	return r.FinalURL != "" && r.FinalURL != r.OriginalURL
}

// Config holds the resolver settings. Zero values fall back to defaults.
type Config struct {
	MaxHops      int
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64

	// Transport is used for normal requests. InsecureTransport is used to
	// retry https requests that failed certificate verification.
	Transport         http.RoundTripper
	InsecureTransport http.RoundTripper
}

// Resolver follows redirect chains.
type Resolver struct {
	client    *http.Client
	insecure  *http.Client
	maxHops   int
	userAgent string
	maxBody   int64
}

// NewResolver creates a redirect resolver.
func NewResolver(cfg Config) *Resolver {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Transport == nil {
		cfg.Transport = newTransport(false)
	}
	if cfg.InsecureTransport == nil {
		cfg.InsecureTransport = newTransport(true)
	}

	return &Resolver{
		client:    newClient(cfg.Transport, cfg.Timeout),
		insecure:  newClient(cfg.InsecureTransport, cfg.Timeout),
		maxHops:   cfg.MaxHops,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
	}
}

func newTransport(skipVerify bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSHandshakeTimeout = 10 * time.Second
	t.ResponseHeaderTimeout = 20 * time.Second
	t.MaxIdleConnsPerHost = 4
	if skipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // retry path for broken certificates
	}
	return t
}

func newClient(rt http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
		// Redirects are followed hop by hop so every hop is visible.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// hopError carries a classified transport failure out of a single hop.
type hopError struct {
	kind Kind
	err  error
}

// Resolve follows rawURL to its final destination. It never returns an
// error value: failures are reported in Result.Err and Result.Kind, and
// FinalURL is the last URL that answered (the input if none did).
func (r *Resolver) Resolve(ctx context.Context, rawURL string) Result {
	res := Result{OriginalURL: rawURL, FinalURL: rawURL}

	current, err := parseHTTPURL(rawURL)
	if err != nil {
		res.Kind = KindInvalidURL
		res.Err = err
		return res
	}
	res.Chain = []string{current.String()}
	reached := rawURL

	for res.Hops < r.maxHops {
		next, herr := r.step(ctx, current)
		if herr != nil {
			res.FinalURL = reached
			res.Kind = herr.kind
			res.Err = herr.err
			slog.Debug("link resolution stopped",
				"url", rawURL,
				"at", current.String(),
				"kind", herr.kind,
				"error", herr.err,
			)
			return res
		}
		reached = current.String()
		res.FinalURL = reached
		if next == nil {
			return res
		}

		current = next
		res.Hops++
		res.Chain = append(res.Chain, current.String())
	}

	res.FinalURL = current.String()
	res.Kind = KindMaxHops
	res.Err = fmt.Errorf("%w after %d hops", ErrMaxRedirects, res.Hops)
	slog.Debug("link resolution ran out of hops", "url", rawURL, "hops", res.Hops)
	return res
}

// step performs one hop. A nil URL with a nil error means current is final.
func (r *Resolver) step(ctx context.Context, current *url.URL) (*url.URL, *hopError) {
	resp, herr := r.fetch(ctx, http.MethodHead, current)
	if herr != nil {
		return nil, herr
	}
	drain(resp)

	switch status := resp.StatusCode; {
	case isRedirect(status):
		return location(resp, current), nil
	case status == http.StatusOK,
		status == http.StatusNoContent,
		status == http.StatusForbidden,
		status == http.StatusMethodNotAllowed:
		// 200 needs the body for client-side redirects; the others reject HEAD.
		return r.stepGET(ctx, current)
	default:
		return nil, nil
	}
}

func (r *Resolver) stepGET(ctx context.Context, current *url.URL) (*url.URL, *hopError) {
	resp, herr := r.fetch(ctx, http.MethodGet, current)
	if herr != nil {
		return nil, herr
	}
	defer drain(resp)

	switch {
	case isRedirect(resp.StatusCode):
		return location(resp, current), nil
	case resp.StatusCode == http.StatusOK:
		if !scannable(resp.Header.Get("Content-Type")) {
			return queryParamTarget(current), nil
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBody))
		if err != nil && len(body) == 0 {
			slog.Debug("read body failed, treating page as final", "url", current.String(), "error", err)
			return nil, nil
		}
		return nextFromBody(current, string(body)), nil
	default:
		return nil, nil
	}
}

// fetch sends one request. TLS and abort-style failures on https URLs are
// retried once without certificate verification.
func (r *Resolver) fetch(ctx context.Context, method string, target *url.URL) (*http.Response, *hopError) {
	resp, err := r.send(ctx, r.client, method, target)
	if err == nil {
		return resp, nil
	}

	kind := Classify(err)
	if target.Scheme == "https" && kind.retryInsecure() {
		slog.Debug("retrying without certificate verification",
			"url", target.String(),
			"kind", kind,
			"error", err,
		)
		resp, retryErr := r.send(ctx, r.insecure, method, target)
		if retryErr == nil {
			return resp, nil
		}
		return nil, &hopError{
			kind: kind,
			err:  fmt.Errorf("%s %s: %w (may be a TLS issue, do not assume dead)", method, target.Redacted(), err),
		}
	}

	return nil, &hopError{kind: kind, err: fmt.Errorf("%s %s: %w", method, target.Redacted(), err)}
}

func (r *Resolver) send(ctx context.Context, client *http.Client, method string, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	return client.Do(req)
}

func isRedirect(status int) bool {
	return status >= 300 && status <= 399
}

// location resolves the Location header against the current URL.
func location(resp *http.Response, current *url.URL) *url.URL {
	loc := strings.TrimSpace(resp.Header.Get("Location"))
	if loc == "" {
		return nil
	}
	return resolveReference(current, loc)
}

// resolveReference resolves ref relative to base and keeps only http(s).
func resolveReference(base *url.URL, ref string) *url.URL {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	next := base.ResolveReference(u)
	if next.Scheme != "http" && next.Scheme != "https" {
		return nil
	}
	if next.Host == "" {
		return nil
	}
	return next
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}

func scannable(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "html") || strings.HasPrefix(ct, "text/") || strings.Contains(ct, "javascript")
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
