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

// Package app wires configuration into a running pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/campaigns/internal/aggregate"
	"github.com/bcem/campaigns/internal/ai"
	"github.com/bcem/campaigns/internal/api"
	"github.com/bcem/campaigns/internal/attribution"
	"github.com/bcem/campaigns/internal/config"
	"github.com/bcem/campaigns/internal/cta"
	"github.com/bcem/campaigns/internal/dedup"
	"github.com/bcem/campaigns/internal/detect"
	"github.com/bcem/campaigns/internal/linkcache"
	"github.com/bcem/campaigns/internal/mailbox"
	"github.com/bcem/campaigns/internal/pipeline"
	"github.com/bcem/campaigns/internal/queue"
	"github.com/bcem/campaigns/internal/redirect"
	"github.com/bcem/campaigns/internal/reprocess"
	"github.com/bcem/campaigns/internal/store"
)

const memoryCacheTTL = 6 * time.Hour

// Options controls how much infrastructure is attached.
type Options struct {
	// DryRun keeps campaigns in memory and skips Postgres and Redis.
	DryRun bool
}

// App is the assembled service.
type App struct {
	Pipeline  *pipeline.Pipeline
	Reprocess *reprocess.Job         // nil in dry runs
	Memory    *aggregate.MemoryStore // set in dry runs
	Checks    []api.Check

	closers []func()
}

// New connects to the configured backends and builds the pipeline.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{}

	model, err := ai.New(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init ai client: %w", err)
	}
	if _, disabled := model.(ai.Disabled); disabled {
		slog.Warn("no ai provider configured, ambiguous links and broker senders stay unclassified")
	}

	layers := []linkcache.Cache{linkcache.NewMemory(memoryCacheTTL)}
	pcfg := pipeline.Config{
		Accounts: mailbox.AccountsFromConfig(cfg),
		Seeds:    cfg.SeedAddresses(),
	}

	var (
		db  *store.Store
		rdb *redis.Client
	)
	if !opts.DryRun {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		slog.Info("connected to PostgreSQL")

		if db, err = store.New(ctx, pool); err != nil {
			a.Close()
			return nil, err
		}

		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.closers = append(a.closers, func() { rdb.Close() })

		publisher := queue.NewPublisher(rdb, cfg.ReviewQueue)
		if err := publisher.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("connected to Redis")

		layers = append(layers, linkcache.NewRedis(rdb, 0), db.LinkCategories())
		pcfg.Seen = dedup.NewFilter(rdb, 0)
		pcfg.Review = publisher
		a.Checks = []api.Check{
			{Name: "redis", Ping: publisher.Ping},
			{Name: "postgres", Ping: pool.Ping},
		}
	}

	resolver := redirect.NewResolver(redirect.Config{
		MaxHops:   cfg.Resolver.MaxHops,
		Timeout:   cfg.Resolver.Timeout,
		UserAgent: cfg.Resolver.UserAgent,
	})
	links := cta.NewProcessor(cta.ProcessorConfig{
		Resolver:   resolver,
		Classifier: cta.NewClassifier(linkcache.NewTiered(layers...), model),
		AI:         model,
		MaxLinks:   cfg.MaxLinks,
	})

	source := mailbox.NewGraph(mailbox.GraphConfig{
		Clients: mailbox.TenantClients(ctx, cfg.Tenants),
	})
	pcfg.Collector = detect.NewCollector(source, cfg.Detection.BatchSize, cfg.Detection.MaxPerMailbox)
	pcfg.Detector = detect.NewDetector(detect.Config{
		MinOccurrences: cfg.Detection.MinOccurrences,
		SeedAddresses:  pcfg.Seeds,
	})
	pcfg.Links = links

	if opts.DryRun {
		a.Memory = aggregate.NewMemoryStore()
		pcfg.Aggregator = aggregate.NewAdapter(a.Memory)
	} else {
		attributor := attribution.NewResolver(db, model)
		pcfg.Attributor = attributor
		pcfg.Aggregator = aggregate.NewAdapter(db)
		a.Reprocess = reprocess.NewJob(db, links, attributor, pcfg.Seeds)
	}

	a.Pipeline = pipeline.New(pcfg)
	return a, nil
}

// Close releases backend connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
