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

// Campaign scanner
//
// Runs a single scan over every configured mailbox and exits. With
// --dry-run nothing is written; detected campaigns are printed as JSON.
//
// Usage:
//
//	go run ./cmd/scanner/ [--since 72h] [--dry-run]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcem/campaigns/internal/app"
	"github.com/bcem/campaigns/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	sinceFlag := flag.String("since", "", "Lookback duration (defaults to detection.lookback)")
	dryRun := flag.Bool("dry-run", false, "Detect and classify without writing to Postgres or Redis")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	lookback := cfg.Detection.Lookback
	if *sinceFlag != "" {
		if lookback, err = time.ParseDuration(*sinceFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{DryRun: *dryRun})
	if err != nil {
		slog.Error("failed to initialise scanner", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	slog.Info("starting scan",
		"accounts", len(cfg.Accounts),
		"since", lookback.String(),
		"dry_run", *dryRun,
	)

	res, err := a.Pipeline.Run(ctx, time.Now().Add(-lookback))
	if err != nil {
		slog.Error("scan aborted", "error", err)
		os.Exit(1)
	}

	if *dryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(a.Memory.Campaigns()); err != nil {
			slog.Error("failed to print campaigns", "error", err)
		}
	}

	if res.Failed > 0 {
		slog.Warn("scan finished with failures", "failed", res.Failed)
		os.Exit(2)
	}
}
