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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TenantConfig holds Graph API credentials for a single tenant.
type TenantConfig struct {
	Alias        string `yaml:"alias"`
	Provider     string `yaml:"provider"` // "m365"
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// AccountConfig is one mailbox to scan.
type AccountConfig struct {
	Alias    string `yaml:"alias"`
	Tenant   string `yaml:"tenant"` // tenant alias
	Address  string `yaml:"address"`
	UserID   string `yaml:"user_id"` // Graph user ID or UPN, defaults to address
	Source   string `yaml:"source"`  // "seed" or "personal"
	ClientID string `yaml:"client_id"`
}

// AIConfig selects the classification backend.
type AIConfig struct {
	Provider string // "openai", "bedrock" or "" (disabled)
	APIKey   string
	Model    string
	Region   string
	Timeout  time.Duration
}

// DetectionConfig tunes the fingerprint and collection stage.
type DetectionConfig struct {
	MinOccurrences int
	BatchSize      int
	MaxPerMailbox  int
	Lookback       time.Duration
	ScanInterval   time.Duration
}

// ResolverConfig tunes redirect resolution.
type ResolverConfig struct {
	MaxHops   int
	Timeout   time.Duration
	UserAgent string
}

// Config holds all configuration for the campaign pipeline.
type Config struct {
	Tenants  []TenantConfig
	Accounts []AccountConfig

	DatabaseURL string

	// Redis
	RedisURL    string
	ReviewQueue string

	AI        AIConfig
	Detection DetectionConfig
	Resolver  ResolverConfig
	MaxLinks  int

	// Server (operator API + health check)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Tenants  []TenantConfig  `yaml:"tenants"`
	Accounts []AccountConfig `yaml:"accounts"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Review string `yaml:"review"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	AI struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
		Region   string `yaml:"region"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"ai"`
	Detection struct {
		MinOccurrences int    `yaml:"min_occurrences"`
		BatchSize      int    `yaml:"batch_size"`
		MaxPerMailbox  int    `yaml:"max_per_mailbox"`
		Lookback       string `yaml:"lookback"`
		ScanInterval   string `yaml:"scan_interval"`
	} `yaml:"detection"`
	Resolver struct {
		MaxHops   int    `yaml:"max_hops"`
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"resolver"`
	Links struct {
		MaxLinks int `yaml:"max_links"`
	} `yaml:"links"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. ${VAR} references are expanded
// before decoding.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL: firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/campaigns")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		ReviewQueue: firstNonEmpty(raw.Redis.Queues.Review, envOrDefault("REVIEW_QUEUE", "campaign_review")),
		AI: AIConfig{
			Provider: strings.ToLower(firstNonEmpty(raw.AI.Provider, os.Getenv("AI_PROVIDER"))),
			APIKey:   firstNonEmpty(raw.AI.APIKey, os.Getenv("OPENAI_API_KEY")),
			Model:    firstNonEmpty(raw.AI.Model, os.Getenv("AI_MODEL")),
			Region:   firstNonEmpty(raw.AI.Region, envOrDefault("AWS_REGION", "us-east-1")),
			Timeout:  durationOr(raw.AI.Timeout, envOrDefaultDuration("AI_TIMEOUT", 30*time.Second)),
		},
		Detection: DetectionConfig{
			MinOccurrences: intOr(raw.Detection.MinOccurrences, envOrDefaultInt("MIN_OCCURRENCES", 2)),
			BatchSize:      intOr(raw.Detection.BatchSize, envOrDefaultInt("MAILBOX_BATCH_SIZE", 10)),
			MaxPerMailbox:  intOr(raw.Detection.MaxPerMailbox, envOrDefaultInt("MAX_PER_MAILBOX", 500)),
			Lookback:       durationOr(raw.Detection.Lookback, envOrDefaultDuration("SCAN_LOOKBACK", 24*time.Hour)),
			ScanInterval:   durationOr(raw.Detection.ScanInterval, envOrDefaultDuration("SCAN_INTERVAL", time.Hour)),
		},
		Resolver: ResolverConfig{
			MaxHops:   intOr(raw.Resolver.MaxHops, envOrDefaultInt("RESOLVER_MAX_HOPS", 10)),
			Timeout:   durationOr(raw.Resolver.Timeout, envOrDefaultDuration("RESOLVER_TIMEOUT", 15*time.Second)),
			UserAgent: firstNonEmpty(raw.Resolver.UserAgent, envOrDefault("RESOLVER_USER_AGENT", defaultUserAgent)),
		},
		MaxLinks: intOr(raw.Links.MaxLinks, envOrDefaultInt("MAX_CTA_LINKS", 15)),
		Port:     envOrDefaultInt("PORT", 8080),
	}

	// Resolver timeouts outside 10-30s either hang batches or kill slow trackers.
	cfg.Resolver.Timeout = clampDuration(cfg.Resolver.Timeout, 10*time.Second, 30*time.Second)
	if cfg.MaxLinks > 15 {
		cfg.MaxLinks = 15
	}

	switch cfg.AI.Provider {
	case "", "openai", "bedrock":
	default:
		return nil, fmt.Errorf("unsupported ai.provider %q", cfg.AI.Provider)
	}

	for _, t := range raw.Tenants {
		// Skip tenants with empty credentials (commented out in YAML)
		if t.TenantID == "" || t.ClientID == "" || t.ClientSecret == "" {
			continue
		}
		if t.Alias == "" {
			t.Alias = t.TenantID[:min(8, len(t.TenantID))]
		}
		if t.Provider == "" {
			t.Provider = "m365"
		}
		cfg.Tenants = append(cfg.Tenants, t)
	}

	for _, a := range raw.Accounts {
		a.Address = strings.ToLower(strings.TrimSpace(a.Address))
		if a.Address == "" {
			continue
		}
		if a.UserID == "" {
			a.UserID = a.Address
		}
		if a.Alias == "" {
			a.Alias = a.Address
		}
		switch a.Source {
		case "":
			a.Source = "seed"
		case "seed", "personal":
		default:
			return nil, fmt.Errorf("account %s: unsupported source %q", a.Address, a.Source)
		}
		if cfg.Tenant(a.Tenant) == nil {
			return nil, fmt.Errorf("account %s: unknown tenant %q", a.Address, a.Tenant)
		}
		cfg.Accounts = append(cfg.Accounts, a)
	}

	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured: check config.yaml and environment variables")
	}

	return cfg, nil
}

// Tenant returns the tenant with the given alias, or nil.
func (c *Config) Tenant(alias string) *TenantConfig {
	for i := range c.Tenants {
		if c.Tenants[i].Alias == alias {
			return &c.Tenants[i]
		}
	}
	return nil
}

// SeedAddresses returns the addresses of all seed accounts. They are
// scrubbed from subjects and links so recipients never leak into records.
func (c *Config) SeedAddresses() []string {
	var out []string
	for _, a := range c.Accounts {
		if a.Source == "seed" {
			out = append(out, a.Address)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	return max(lo, min(d, hi))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
