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

// Package aitest provides a deterministic ai.Classifier for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/bcem/campaigns/internal/ai"
)

// Stub answers from callbacks and records every call.
type Stub struct {
	ClassifyFn   func(prompt string, schema ai.Schema) (*ai.Classification, error)
	CategorizeFn func(prompt string) (string, error)

	mu              sync.Mutex
	classifyCalls   int
	categorizeCalls int
	prompts         []string
}

func (s *Stub) Classify(_ context.Context, prompt string, schema ai.Schema) (*ai.Classification, error) {
	s.mu.Lock()
	s.classifyCalls++
	s.prompts = append(s.prompts, prompt)
	fn := s.ClassifyFn
	s.mu.Unlock()

	if fn == nil {
		return nil, ai.ErrDisabled
	}
	return fn(prompt, schema)
}

func (s *Stub) Categorize(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.categorizeCalls++
	s.prompts = append(s.prompts, prompt)
	fn := s.CategorizeFn
	s.mu.Unlock()

	if fn == nil {
		return "", ai.ErrDisabled
	}
	return fn(prompt)
}

// ClassifyCalls returns how many times Classify ran.
func (s *Stub) ClassifyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifyCalls
}

// CategorizeCalls returns how many times Categorize ran.
func (s *Stub) CategorizeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categorizeCalls
}

// Prompts returns a copy of every prompt received.
func (s *Stub) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
