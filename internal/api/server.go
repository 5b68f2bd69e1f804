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

// Package api serves the operator endpoints: health, on-demand scans and
// the paged reprocess job.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bcem/campaigns/internal/pipeline"
	"github.com/bcem/campaigns/internal/reprocess"
)

// Reprocessor runs one reprocess page.
type Reprocessor interface {
	RunPage(ctx context.Context, cur reprocess.Cursor) (*reprocess.PageResult, error)
}

// Scanner runs one pipeline scan.
type Scanner interface {
	Run(ctx context.Context, since time.Time) (*pipeline.RunResult, error)
}

// Check is a named dependency probe for /health.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler holds the operator endpoints.
type Handler struct {
	reprocessor Reprocessor
	scanner     Scanner
	lookback    time.Duration
	checks      []Check
}

// NewHandler creates the operator handler. scanner may be nil, which
// disables the scan endpoint.
func NewHandler(reprocessor Reprocessor, scanner Scanner, lookback time.Duration, checks ...Check) *Handler {
	return &Handler{
		reprocessor: reprocessor,
		scanner:     scanner,
		lookback:    lookback,
		checks:      checks,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/reprocess", h.reprocess)
		if h.scanner != nil {
			r.Post("/scan", h.scan)
		}
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.checks {
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "dependency", c.Name, "error", err)
			writeError(w, http.StatusServiceUnavailable, c.Name+" unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) reprocess(w http.ResponseWriter, r *http.Request) {
	var cur reprocess.Cursor
	if err := decodeBody(r, &cur); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cur.LastEmailCursor < 0 || cur.LastSMSCursor < 0 {
		writeError(w, http.StatusBadRequest, "cursors must not be negative")
		return
	}

	res, err := h.reprocessor.RunPage(r.Context(), cur)
	if err != nil {
		slog.Error("reprocess page failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "reprocess failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type scanRequest struct {
	Since *time.Time `json:"since"`
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since := time.Now().Add(-h.lookback)
	if req.Since != nil {
		since = *req.Since
	}

	res, err := h.scanner.Run(r.Context(), since)
	if err != nil {
		slog.Error("on-demand scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid request body: %w", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve binds the port and serves h until ctx is cancelled. The returned
// channel closes once the listener is bound.
func Serve(ctx context.Context, port int, h http.Handler) (<-chan struct{}, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	server := &http.Server{
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}
	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("api server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return ready, nil
}
