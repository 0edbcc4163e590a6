package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/postforge/internal/apperr"
)

// newLLMServer answers every chat completion with one valid post.
func newLLMServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []map[string]any{{"id": "stub", "object": "model"}}})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "x",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": `[{"content":"Version 2 is out today.","hashtags":["release"]}]`},
			}},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(t *testing.T, llmURL string) Config {
	return Config{
		LLMProvider: "local",
		LLMBaseURL:  llmURL + "/v1",
		LLMModel:    "stub",
		DBDriver:    "sqlite",
		DBDSN:       filepath.Join(t.TempDir(), "postforge.db"),
		Platforms:   []string{"twitter", "facebook"},
		Content:     "We released version 2 of our product today.",
	}
}

func TestRun_WritesMarkdownAndPDF(t *testing.T) {
	ts := newLLMServer(t)
	cfg := testConfig(t, ts.URL)
	dir := t.TempDir()
	cfg.OutputPath = filepath.Join(dir, "posts.md")
	cfg.OutputPDFPath = filepath.Join(dir, "posts.pdf")

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	if err := a.Run(context.Background(), &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	md, err := os.ReadFile(cfg.OutputPath)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	for _, want := range []string{"## twitter", "## facebook", "Version 2 is out today.", "- Model: stub", "Daily generations: 1 of 5"} {
		if !strings.Contains(string(md), want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	pdf, err := os.ReadFile(cfg.OutputPDFPath)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("not a pdf: %q", pdf[:8])
	}
}

func TestRun_StdoutAndPersistedUsage(t *testing.T) {
	ts := newLLMServer(t)
	cfg := testConfig(t, ts.URL)
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	if err := a.Run(context.Background(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "# Generated posts") {
		t.Fatalf("stdout: %q", out.String())
	}
	u, err := a.Service.Usage(context.Background(), DefaultCLIUser)
	if err != nil {
		t.Fatal(err)
	}
	if u.DailyUsed != 1 {
		t.Fatalf("usage not persisted: %+v", u)
	}
}

func TestRun_FallbackWhenProviderDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()
	cfg := testConfig(t, ts.URL)
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("provider outage must not block startup: %v", err)
	}
	defer a.Close()
	var out bytes.Buffer
	if err := a.Run(context.Background(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "- Fallback: yes") || !strings.Contains(out.String(), "#twitter") {
		t.Fatalf("expected fallback output:\n%s", out.String())
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	ts := newLLMServer(t)
	cfg := testConfig(t, ts.URL)
	cfg.Platforms = []string{"myspace"}
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	err = a.Run(context.Background(), &bytes.Buffer{})
	if apperr.KindOf(err) != apperr.InvalidRequest {
		t.Fatalf("want invalid request, got %v", err)
	}
}

func TestHandler_ServesAPI(t *testing.T) {
	ts := newLLMServer(t)
	cfg := testConfig(t, ts.URL)
	cfg.AuthTokens = map[string]string{"tok": "api-user"}
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	api := httptest.NewServer(a.Handler())
	defer api.Close()

	req, _ := http.NewRequest(http.MethodPost, api.URL+"/v1/generate",
		strings.NewReader(`{"content":"Version 2 is here","platforms":["threads"]}`))
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, api.URL+"/v1/usage", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp2.StatusCode)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{LLMProvider: "acme"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
