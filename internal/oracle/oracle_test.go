package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/polyedge/internal/models"
)

func TestParseEstimates(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{
			name: "plain JSON",
			raw:  `{"opportunities":[{"market_id":"m1","direction":"YES","true_prob":0.55,"edge":0.15,"reasoning":"r"}]}`,
			want: 1,
		},
		{
			name: "json code fence",
			raw:  "```json\n{\"opportunities\":[{\"market_id\":\"m1\",\"direction\":\"NO\",\"true_prob\":0.8,\"edge\":0.1,\"reasoning\":\"r\"}]}\n```",
			want: 1,
		},
		{
			name: "bare code fence",
			raw:  "```\n{\"opportunities\":[]}\n```",
			want: 0,
		},
		{
			name: "prose around object",
			raw:  "Here is my analysis:\n{\"opportunities\":[{\"market_id\":\"m1\",\"direction\":\"yes\",\"true_prob\":\"0.6\",\"edge\":\"0.2\"}]}\nThanks.",
			want: 1,
		},
		{
			name: "malformed entries dropped individually",
			raw: `{"opportunities":[
				{"market_id":"m1","direction":"YES","true_prob":0.55,"edge":0.15},
				{"market_id":"m2","direction":"MAYBE","true_prob":0.55,"edge":0.15},
				{"market_id":"m3","direction":"YES","true_prob":"high","edge":0.15},
				{"market_id":"m4","direction":"YES","true_prob":1.4,"edge":0.15},
				{"direction":"YES","true_prob":0.5,"edge":0.15},
				{"market_id":"m6","direction":"NO","true_prob":0.5},
				"not an object"
			]}`,
			want: 1,
		},
		{
			name: "missing opportunities key",
			raw:  `{"result":"nothing"}`,
			want: 0,
		},
		{
			name:    "not JSON",
			raw:     "I could not find any relevant market.",
			wantErr: true,
		},
		{
			name:    "truncated JSON",
			raw:     `{"opportunities":[{"market_id":"m1"}`,
			wantErr: true,
		},
		{
			name:    "opportunities not a list",
			raw:     `{"opportunities":"none"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEstimates(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEstimates() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Errorf("error %v does not wrap ErrMalformedResponse", err)
				}
				return
			}
			if len(got) != tt.want {
				t.Errorf("got %d estimates, want %d: %+v", len(got), tt.want, got)
			}
		})
	}
}

func TestParseEstimates_Fields(t *testing.T) {
	got, err := ParseEstimates(`{"opportunities":[{"market_id":12345,"direction":" no ","true_prob":"0.30","edge":-0.12,"reasoning":"  priced in  "}]}`)
	if err != nil {
		t.Fatalf("ParseEstimates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d estimates", len(got))
	}
	e := got[0]
	if e.MarketID != "12345" || e.Direction != models.No || e.TrueProb != 0.30 || e.Edge != -0.12 || e.Reasoning != "priced in" {
		t.Errorf("unexpected estimate: %+v", e)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(Request{
		News:      models.NewsEvent{Text: "Fed cuts rates", Channel: "@wire", Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		Threshold: 0.07,
		Markets:   []models.MarketSummary{{ID: "m1", Question: "Will the Fed cut?", YesPrice: 0.4, NoPrice: 0.6}},
	})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	for _, want := range []string{"Fed cuts rates", "@wire", "2026-03-01T10:00:00Z", `"id": "m1"`, ">= 0.07", "7%"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

type sentMessage struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func TestClient_Estimate(t *testing.T) {
	var gotReq sentMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"test-model",` +
			`"content":[{"type":"text","text":"{\"opportunities\":[{\"market_id\":\"m1\",\"direction\":\"YES\",\"true_prob\":0.55,\"edge\":0.15,\"reasoning\":\"r\"}]}"}],` +
			`"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":20}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "sk-test", "test-model", 500, time.Second)
	got, err := c.Estimate(context.Background(), Request{
		News:      models.NewsEvent{Text: "news"},
		Threshold: 0.07,
		Markets:   []models.MarketSummary{{ID: "m1"}},
	})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if len(got) != 1 || got[0].MarketID != "m1" {
		t.Errorf("unexpected estimates: %+v", got)
	}
	if gotReq.Model != "test-model" || gotReq.MaxTokens != 500 || len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("unexpected request: %+v", gotReq)
	}
	if !strings.Contains(string(gotReq.Messages[0].Content), "news") {
		t.Errorf("prompt missing news text: %s", gotReq.Messages[0].Content)
	}
}

func TestClient_APIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "m", 100, time.Second)
	_, err := c.Estimate(context.Background(), Request{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected API error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", calls.Load())
	}
}

func TestClient_NoTextContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","content":[],"stop_reason":"max_tokens"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "m", 100, time.Second)
	if _, err := c.Estimate(context.Background(), Request{}); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}
