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

package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultTimeout bounds one model call.
const DefaultTimeout = 30 * time.Second

// Guarded adds a per-call timeout and a circuit breaker to a Completer, so
// an unavailable provider fails fast instead of stalling every campaign.
type Guarded struct {
	next    Completer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuarded wraps next.
func NewGuarded(name string, next Completer, timeout time.Duration) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	settings := gobreaker.Settings{
		Name:        "ai-" + name,
		MaxRequests: 2,
		Interval:    2 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("ai circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &Guarded{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
	}
}

func (g *Guarded) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.next.Complete(ctx, system, user)
	})
	if err != nil {
		return "", fmt.Errorf("ai call: %w", err)
	}
	return out.(string), nil
}

// State exposes the breaker state for health reporting.
func (g *Guarded) State() string {
	return g.cb.State().String()
}
