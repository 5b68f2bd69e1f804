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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/campaigns/internal/pipeline"
	"github.com/bcem/campaigns/internal/reprocess"
)

type mockReprocessor struct {
	got reprocess.Cursor
	err error
}

func (m *mockReprocessor) RunPage(_ context.Context, cur reprocess.Cursor) (*reprocess.PageResult, error) {
	m.got = cur
	if m.err != nil {
		return nil, m.err
	}
	return &reprocess.PageResult{
		Cursor:    reprocess.Cursor{LastEmailCursor: cur.LastEmailCursor + 10, LastSMSCursor: cur.LastSMSCursor},
		HasMore:   true,
		Processed: 10,
		Failures:  []reprocess.RecordFailure{},
	}, nil
}

type mockScanner struct {
	since time.Time
}

func (m *mockScanner) Run(_ context.Context, since time.Time) (*pipeline.RunResult, error) {
	m.since = since
	return &pipeline.RunResult{RunID: "run-1", Created: 2}, nil
}

func TestReprocess(t *testing.T) {
	rp := &mockReprocessor{}
	h := NewHandler(rp, nil, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reprocess",
		strings.NewReader(`{"lastEmailCursor": 20, "lastSmsCursor": 5}`))
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, reprocess.Cursor{LastEmailCursor: 20, LastSMSCursor: 5}, rp.got)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(30), body["lastEmailCursor"])
	assert.Equal(t, float64(5), body["lastSmsCursor"])
	assert.Equal(t, true, body["hasMore"])
	assert.Equal(t, float64(10), body["processed"])
}

func TestReprocess_EmptyBodyStartsFromZero(t *testing.T) {
	rp := &mockReprocessor{}
	h := NewHandler(rp, nil, time.Hour)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/reprocess", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, reprocess.Cursor{}, rp.got)
}

func TestReprocess_BadRequests(t *testing.T) {
	h := NewHandler(&mockReprocessor{}, nil, time.Hour)

	for _, body := range []string{`{not json`, `{"lastEmailCursor": -1}`} {
		rr := httptest.NewRecorder()
		h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/reprocess", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestReprocess_Failure(t *testing.T) {
	h := NewHandler(&mockReprocessor{err: errors.New("db down")}, nil, time.Hour)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/reprocess", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "db down")
}

func TestReprocess_MethodNotAllowed(t *testing.T) {
	h := NewHandler(&mockReprocessor{}, nil, time.Hour)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reprocess", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestScan(t *testing.T) {
	sc := &mockScanner{}
	h := NewHandler(&mockReprocessor{}, sc, 24*time.Hour)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/scan",
		strings.NewReader(`{"since": "2026-09-01T00:00:00Z"}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), sc.since.UTC())
	assert.Contains(t, rr.Body.String(), `"run_id":"run-1"`)
}

func TestScan_DisabledWithoutScanner(t *testing.T) {
	h := NewHandler(&mockReprocessor{}, nil, time.Hour)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/scan", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealth(t *testing.T) {
	healthy := Check{Name: "redis", Ping: func(context.Context) error { return nil }}
	broken := Check{Name: "postgres", Ping: func(context.Context) error { return errors.New("refused") }}

	rr := httptest.NewRecorder()
	NewHandler(&mockReprocessor{}, nil, time.Hour, healthy).Routes().
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")

	rr = httptest.NewRecorder()
	NewHandler(&mockReprocessor{}, nil, time.Hour, healthy, broken).Routes().
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "postgres unhealthy")
}
