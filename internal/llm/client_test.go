package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dealermetrics/carmatch/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object",
			input: `{"make": "Peugeot"}`,
			want:  `{"make": "Peugeot"}`,
		},
		{
			name:  "code fence",
			input: "```json\n{\"make\": \"Peugeot\"}\n```",
			want:  `{"make": "Peugeot"}`,
		},
		{
			name:  "prose around object",
			input: `Here is the result: {"make": "Peugeot", "model": "3008"} as requested.`,
			want:  `{"make": "Peugeot", "model": "3008"}`,
		},
		{
			name:  "nested braces",
			input: `{"outer": {"inner": 1}} trailing`,
			want:  `{"outer": {"inner": 1}}`,
		},
		{
			name:  "brace inside string",
			input: `{"reason": "mismatch on {version}"}`,
			want:  `{"reason": "mismatch on {version}"}`,
		},
		{
			name:  "escaped quote inside string",
			input: `{"reason": "said \"GT {line}\""}`,
			want:  `{"reason": "said \"GT {line}\""}`,
		},
		{
			name:  "no object at all",
			input: "sorry, I cannot help with that",
			want:  "{}",
		},
		{
			name:  "unterminated object",
			input: `{"make": "Peugeot"`,
			want:  "{}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerateStructuredOpenAI(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"make": "Peugeot", "model": "3008", "mileage": 42000}`}},
			},
		})
	}))
	defer srv.Close()

	client := New(config.LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
		Endpoint: srv.URL,
	}, testLogger)

	var out FilterResult
	if err := client.GenerateStructured(context.Background(), "map fields", "a Peugeot 3008", FilterSchema, &out); err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if out.Make != "Peugeot" || out.Model != "3008" || out.Mileage != 42000 {
		t.Errorf("unexpected result: %+v", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if _, ok := gotPayload["response_format"]; !ok {
		t.Error("request did not carry a response_format schema")
	}
	msgs, ok := gotPayload["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %v", gotPayload["messages"])
	}
}

func TestGenerateStructuredGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if key := r.Header.Get("x-goog-api-key"); key != "test-key" {
			t.Errorf("x-goog-api-key = %q", key)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": `{"matching_percentage": 87.5, "matching_percentage_reason": "close mileage"}`},
				}}},
			},
		})
	}))
	defer srv.Close()

	client := New(config.LLMConfig{
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		APIKey:   "test-key",
		Endpoint: srv.URL,
	}, testLogger)

	var out MatchResult
	if err := client.GenerateStructured(context.Background(), "", "score this", MatchSchema, &out); err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if out.MatchingPercentage != 87.5 {
		t.Errorf("MatchingPercentage = %v, want 87.5", out.MatchingPercentage)
	}
	if out.MatchingPercentageReason != "close mileage" {
		t.Errorf("MatchingPercentageReason = %q", out.MatchingPercentageReason)
	}
}

func TestGenerateStructuredOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload["stream"] != false {
			t.Error("streaming should be disabled")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response": "```json\n{\"make\": \"Renault\", \"model\": \"Clio\"}\n```",
		})
	}))
	defer srv.Close()

	client := New(config.LLMConfig{
		Provider: "ollama",
		Model:    "llama3",
		Endpoint: srv.URL,
	}, testLogger)

	var out FilterResult
	if err := client.GenerateStructured(context.Background(), "sys", "map", nil, &out); err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if out.Make != "Renault" || out.Model != "Clio" {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestGenerateStructuredMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"mileage": "not a number"}`}},
			},
		})
	}))
	defer srv.Close()

	client := New(config.LLMConfig{Provider: "openai", Endpoint: srv.URL}, testLogger)

	var out FilterResult
	err := client.GenerateStructured(context.Background(), "", "map", FilterSchema, &out)
	if !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
}

func TestGenerateStructuredHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(config.LLMConfig{Provider: "openai", Endpoint: srv.URL}, testLogger)

	var out FilterResult
	err := client.GenerateStructured(context.Background(), "", "map", nil, &out)
	if err == nil {
		t.Fatal("expected an error for HTTP 429")
	}
	if errors.Is(err, ErrMalformedReply) {
		t.Fatalf("HTTP failure should not be a malformed reply: %v", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestGenerateStructuredUnknownProvider(t *testing.T) {
	client := New(config.LLMConfig{Provider: "mystery"}, testLogger)

	var out FilterResult
	if err := client.GenerateStructured(context.Background(), "", "map", nil, &out); err == nil {
		t.Fatal("expected an error for an unsupported provider")
	}
}
