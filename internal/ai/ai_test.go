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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/campaigns/internal/config"
)

var brokerSchema = Schema{Name: "broker", Labels: []string{"newsletter", "sponsored_campaign"}}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    *Classification
		wantErr bool
	}{
		{
			name:  "plain json",
			reply: `{"type":"newsletter","confidence":0.82,"reasoning":"weekly digest"}`,
			want:  &Classification{Type: "newsletter", Confidence: 0.82, Reasoning: "weekly digest"},
		},
		{
			name:  "fenced with prose",
			reply: "```json\nSure: {\"type\":\"Sponsored_Campaign\",\"confidence\":1.4}\n```",
			want:  &Classification{Type: "sponsored_campaign", Confidence: 1},
		},
		{name: "label outside schema", reply: `{"type":"spam","confidence":0.9}`, wantErr: true},
		{name: "not json", reply: "newsletter", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.reply, brokerSchema)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnexpectedReply))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeCompleter struct {
	reply string
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeCompleter) Complete(ctx context.Context, _, _ string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func TestGuarded_TripsAfterConsecutiveFailures(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("503")}
	g := NewGuarded("test", fc, time.Second)

	for i := 0; i < 5; i++ {
		_, err := g.Complete(context.Background(), "s", "u")
		require.Error(t, err)
	}
	assert.Equal(t, "open", g.State())

	_, err := g.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, int32(5), fc.calls.Load(), "open breaker must not reach the backend")
}

func TestGuarded_Timeout(t *testing.T) {
	fc := &fakeCompleter{reply: "late", delay: time.Second}
	g := NewGuarded("test", fc, 20*time.Millisecond)

	_, err := g.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_Classify(t *testing.T) {
	c := NewClient(&fakeCompleter{reply: `{"type":"newsletter","confidence":0.9}`})

	got, err := c.Classify(context.Background(), "body", brokerSchema)
	require.NoError(t, err)
	assert.Equal(t, "newsletter", got.Type)

	_, err = NewClient(&fakeCompleter{err: errors.New("down")}).Categorize(context.Background(), "x")
	require.Error(t, err)
}

func TestOpenAI_Complete(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req struct {
			Model string `json:"model"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"1. donation"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	out, err := o.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "1. donation", out)
	assert.Equal(t, defaultOpenAIModel, gotModel)
}

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestBedrock_Complete(t *testing.T) {
	fi := &fakeInvoker{body: `{"content":[{"type":"text","text":"{\"type\":"},{"type":"text","text":"\"newsletter\"}"}]}`}
	b := newBedrock(fi, "")

	out, err := b.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"newsletter"}`, out)
	assert.Equal(t, defaultBedrockModel, *fi.input.ModelId)

	var req bedrockRequest
	require.NoError(t, json.Unmarshal(fi.input.Body, &req))
	assert.Equal(t, bedrockAPIVersion, req.AnthropicVersion)
	assert.Equal(t, "system", req.System)
}

func TestNew_Providers(t *testing.T) {
	c, err := New(context.Background(), config.AIConfig{})
	require.NoError(t, err)
	_, err = c.Categorize(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrDisabled))

	c, err = New(context.Background(), config.AIConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Client{}, c)

	_, err = New(context.Background(), config.AIConfig{Provider: "watson"})
	require.Error(t, err)
}
