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

// Campaign service
//
// Long-running entry point. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL and Redis and builds the pipeline
//  3. Serves /health and the operator API
//  4. Scans every configured mailbox on a fixed interval
//  5. Shuts down gracefully on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcem/campaigns/internal/api"
	"github.com/bcem/campaigns/internal/app"
	"github.com/bcem/campaigns/internal/config"
	"github.com/bcem/campaigns/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting campaign service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"tenants", len(cfg.Tenants),
		"accounts", len(cfg.Accounts),
		"scan_interval", cfg.Detection.ScanInterval.String(),
		"ai_provider", cfg.AI.Provider,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("failed to initialise service", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handler := api.NewHandler(a.Reprocess, a.Pipeline, cfg.Detection.Lookback, a.Checks...)
	ready, err := api.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	scanLoop(ctx, a.Pipeline, cfg.Detection.ScanInterval, cfg.Detection.Lookback)
	slog.Info("campaign service stopped")
}

// scanLoop runs a scan immediately and then every interval until ctx ends.
// Each scan looks back far enough to overlap the previous one; the
// idempotency filter absorbs the overlap.
func scanLoop(ctx context.Context, p *pipeline.Pipeline, interval, lookback time.Duration) {
	if interval <= 0 {
		slog.Info("periodic scanning disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Run(ctx, time.Now().Add(-lookback)); err != nil && ctx.Err() == nil {
			slog.Error("scheduled scan failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("received shutdown signal")
			return
		case <-ticker.C:
		}
	}
}
