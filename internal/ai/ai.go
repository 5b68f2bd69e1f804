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

// Package ai wraps the language-model backends used to classify links and
// sender content. Callers treat every error as "no answer" and fall back.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bcem/campaigns/internal/config"
)

var (
	// ErrDisabled is returned when no provider is configured.
	ErrDisabled = errors.New("ai classification disabled")

	// ErrUnexpectedReply means the model answered outside the schema.
	ErrUnexpectedReply = errors.New("unexpected ai reply")
)

// Schema constrains a structured classification.
type Schema struct {
	Name   string
	Labels []string
}

func (s Schema) allows(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Classification is a structured model answer.
type Classification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classifier is what the pipeline needs from a model.
type Classifier interface {
	// Classify returns a label from schema with a confidence in [0,1].
	Classify(ctx context.Context, prompt string, schema Schema) (*Classification, error)
	// Categorize returns free text, typically one answer per line.
	Categorize(ctx context.Context, prompt string) (string, error)
}

// Completer sends one system+user exchange to a model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const (
	categorizeSystem = "You label links found in political and marketing email. " +
		"Answer exactly in the format requested, one answer per line, with no extra text."

	classifySystem = "You classify email content. Reply with a single JSON object " +
		`{"type": string, "confidence": number between 0 and 1, "reasoning": string}. ` +
		"type must be one of: %s."
)

// Client implements Classifier on top of any Completer.
type Client struct {
	model Completer
}

// NewClient creates a Classifier backed by model.
func NewClient(model Completer) *Client {
	return &Client{model: model}
}

func (c *Client) Categorize(ctx context.Context, prompt string) (string, error) {
	reply, err := c.model.Complete(ctx, categorizeSystem, prompt)
	if err != nil {
		return "", fmt.Errorf("categorize: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func (c *Client) Classify(ctx context.Context, prompt string, schema Schema) (*Classification, error) {
	system := fmt.Sprintf(classifySystem, strings.Join(schema.Labels, ", "))
	reply, err := c.model.Complete(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", schema.Name, err)
	}
	return ParseClassification(reply, schema)
}

// ParseClassification decodes a JSON reply, tolerating markdown fences and
// text around the object.
func ParseClassification(reply string, schema Schema) (*Classification, error) {
	body := stripFences(reply)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var out Classification
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	out.Type = strings.ToLower(strings.TrimSpace(out.Type))
	if len(schema.Labels) > 0 && !schema.allows(out.Type) {
		return nil, fmt.Errorf("%w: label %q", ErrUnexpectedReply, out.Type)
	}
	out.Confidence = min(max(out.Confidence, 0), 1)
	return &out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Disabled is the Classifier used when no provider is configured.
type Disabled struct{}

func (Disabled) Classify(context.Context, string, Schema) (*Classification, error) {
	return nil, ErrDisabled
}

func (Disabled) Categorize(context.Context, string) (string, error) {
	return "", ErrDisabled
}

// New builds the configured Classifier. An empty provider yields Disabled.
func New(ctx context.Context, cfg config.AIConfig) (Classifier, error) {
	var model Completer
	switch cfg.Provider {
	case "":
		return Disabled{}, nil
	case "openai":
		model = NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model})
	case "bedrock":
		b, err := NewBedrock(ctx, BedrockConfig{Region: cfg.Region, Model: cfg.Model})
		if err != nil {
			return nil, err
		}
		model = b
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	return NewClient(NewGuarded(cfg.Provider, model, cfg.Timeout)), nil
}
