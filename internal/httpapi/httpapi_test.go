package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/generate"
	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/llm"
	"github.com/hyperifyio/postforge/internal/metrics"
	"github.com/hyperifyio/postforge/internal/pipeline"
	"github.com/hyperifyio/postforge/internal/quota"
	"github.com/hyperifyio/postforge/internal/store"
)

type fakeProvider struct{}

func (fakeProvider) GenerateCompletion(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	return `[{"content":"Launch day for the new dashboard.","hashtags":["launch"]}]`, nil
}
func (fakeProvider) ValidateCredentials(ctx context.Context) bool { return true }
func (fakeProvider) ModelInfo() llm.ModelInfo                     { return llm.ModelInfo{Name: "fake"} }

func newTestServer(t *testing.T) (*httptest.Server, *metrics.Ring) {
	t.Helper()
	mem := store.NewMemory()
	engine := quota.NewEngine(mem)
	engine.Location = time.UTC
	ring := metrics.NewRing(10)
	reg := generator.DefaultRegistry()
	srv := &Server{
		Service: &pipeline.Service{
			Quota:        engine,
			Orchestrator: &generate.Orchestrator{Provider: fakeProvider{}, Registry: reg, Metrics: ring},
			Log:          mem,
		},
		Registry: reg,
		Metrics:  ring,
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, ring
}

func do(t *testing.T, method, url, user, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestGenerate_Success(t *testing.T) {
	ts, ring := newTestServer(t)
	resp := do(t, http.MethodPost, ts.URL+"/v1/generate", "alice",
		`{"content":"We shipped a dashboard","platforms":["twitter","threads"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out pipeline.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Posts["twitter"]) != 1 || len(out.Posts["threads"]) != 1 {
		t.Fatalf("posts: %+v", out.Posts)
	}
	if out.Usage.DailyUsed != 1 || out.GenerationID == "" {
		t.Fatalf("usage/id: %+v %q", out.Usage, out.GenerationID)
	}
	if ring.Len() != 1 {
		t.Fatalf("metrics entries = %d", ring.Len())
	}
}

func TestGenerate_Unauthorized(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodPost, ts.URL+"/v1/generate", "", `{"content":"x","platforms":["twitter"]}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body := decodeError(t, resp); body.Error.Kind != apperr.Unauthorized {
		t.Fatalf("kind %q", body.Error.Kind)
	}
}

func TestGenerate_ValidationErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	cases := map[string]string{
		"no platforms":     `{"content":"x","platforms":[]}`,
		"no input":         `{"platforms":["twitter"]}`,
		"bad url":          `{"url":"not a url","platforms":["twitter"]}`,
		"temperature":      `{"content":"x","platforms":["twitter"],"options":{"temperature":3}}`,
		"unknown field":    `{"content":"x","platforms":["twitter"],"extra":1}`,
		"malformed":        `{"content":`,
		"unknown platform": `{"content":"x","platforms":["myspace"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/v1/generate", "bob", body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status %d", resp.StatusCode)
			}
			if got := decodeError(t, resp).Error.Kind; got != apperr.InvalidRequest {
				t.Fatalf("kind %q", got)
			}
		})
	}
}

func TestGenerate_DailyLimit(t *testing.T) {
	ts, _ := newTestServer(t)
	for i := 0; i < 5; i++ {
		resp := do(t, http.MethodPost, ts.URL+"/v1/generate", "carol", `{"content":"x","platforms":["threads"]}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("attempt %d status %d", i+1, resp.StatusCode)
		}
	}
	resp := do(t, http.MethodPost, ts.URL+"/v1/generate", "carol", `{"content":"x","platforms":["threads"]}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if got := decodeError(t, resp).Error.Kind; got != apperr.DailyLimitExceeded {
		t.Fatalf("kind %q", got)
	}
}

func TestUsageAndHistoryLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/v1/generate", "dave", `{"content":"x","platforms":["twitter"]}`)

	resp := do(t, http.MethodGet, ts.URL+"/v1/usage", "dave", "")
	var u quota.Usage
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		t.Fatal(err)
	}
	if u.DailyUsed != 1 || u.DailyRemaining != 4 || u.Tier != quota.TierFree {
		t.Fatalf("usage: %+v", u)
	}

	resp = do(t, http.MethodGet, ts.URL+"/v1/generations?limit=5", "dave", "")
	var hist struct {
		Generations []store.GenerationRecord `json:"generations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.Generations) != 1 {
		t.Fatalf("history: %+v", hist)
	}
	id := hist.Generations[0].ID

	if resp := do(t, http.MethodPost, ts.URL+"/v1/generations/"+id+"/archive", "eve", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign archive status %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/v1/generations/"+id+"/archive", "dave", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("archive status %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, ts.URL+"/v1/generations/"+id, "dave", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/v1/generations/"+id+"/archive", "dave", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("archive after delete status %d", resp.StatusCode)
	}
}

func TestPlatforms(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/v1/platforms", "", "")
	var out struct {
		Platforms []platformInfo `json:"platforms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Platforms) != 7 {
		t.Fatalf("platforms: %+v", out.Platforms)
	}
	for _, p := range out.Platforms {
		if p.ID == "twitter" && (p.MaxLength != 280 || p.MaxPosts != 3) {
			t.Fatalf("twitter constraint: %+v", p)
		}
	}
}

func TestRecentMetricsAndPrometheus(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/v1/generate", "frank", `{"content":"x","platforms":["twitter"]}`)

	resp := do(t, http.MethodGet, ts.URL+"/v1/metrics/recent", "", "")
	var out struct {
		Entries []metrics.Entry `json:"entries"`
		Summary metrics.Summary `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Entries) != 1 || out.Summary.Successes != 1 {
		t.Fatalf("recent metrics: %+v", out)
	}

	resp = do(t, http.MethodGet, ts.URL+"/metrics", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("prometheus status %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/generate", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("missing CORS allow-origin header")
	}
}

func TestTokenAuthenticator(t *testing.T) {
	a := TokenAuthenticator{Tokens: map[string]string{"s3cret": "user-9"}}
	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	if _, err := a.Authenticate(req); apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("missing token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer wrong")
	if _, err := a.Authenticate(req); apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("wrong token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer s3cret")
	if id, err := a.Authenticate(req); err != nil || id != "user-9" {
		t.Fatalf("got %q, %v", id, err)
	}
	req = httptest.NewRequest(http.MethodGet, "/v1/ws?access_token=s3cret", nil)
	if id, err := a.Authenticate(req); err != nil || id != "user-9" {
		t.Fatalf("query token: %q, %v", id, err)
	}
}

func TestWebSocketGenerate(t *testing.T) {
	ts, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	header := http.Header{}
	header.Set(UserHeader, "grace")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(Frame{Type: "generate", ID: "r1",
		Payload: json.RawMessage(`{"content":"Release notes","platforms":["facebook"]}`)}); err != nil {
		t.Fatal(err)
	}
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Type != "result" || f.ID != "r1" {
		t.Fatalf("frame: %+v", f)
	}
	var out pipeline.Response
	if err := json.Unmarshal(f.Payload, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Posts["facebook"]) == 0 {
		t.Fatalf("posts: %+v", out.Posts)
	}

	if err := conn.WriteJSON(Frame{Type: "generate", ID: "r2", Payload: json.RawMessage(`{"platforms":[]}`)}); err != nil {
		t.Fatal(err)
	}
	f = Frame{}
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Type != "error" || f.ID != "r2" || f.Error == nil || f.Error.Error.Kind != apperr.InvalidRequest {
		t.Fatalf("error frame: %+v", f)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	ts, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response: %+v", resp)
	}
}

// heldProvider blocks every completion until release is closed.
type heldProvider struct{ release chan struct{} }

func (p heldProvider) GenerateCompletion(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	select {
	case <-p.release:
		return fakeProvider{}.GenerateCompletion(ctx, prompt, opts)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
func (heldProvider) ValidateCredentials(ctx context.Context) bool { return true }
func (heldProvider) ModelInfo() llm.ModelInfo                     { return llm.ModelInfo{Name: "fake"} }

func TestWebSocketLimitsRequestsInFlight(t *testing.T) {
	mem := store.NewMemory()
	engine := quota.NewEngine(mem)
	engine.Location = time.UTC
	reg := generator.DefaultRegistry()
	prov := heldProvider{release: make(chan struct{})}
	srv := &Server{
		Service: &pipeline.Service{
			Quota:        engine,
			Orchestrator: &generate.Orchestrator{Provider: prov, Registry: reg},
			Log:          mem,
		},
		Registry:    reg,
		MaxInFlight: 1,
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	header := http.Header{}
	header.Set(UserHeader, "grace")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/ws", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	payload := json.RawMessage(`{"content":"Release notes","platforms":["facebook"]}`)
	for _, id := range []string{"r1", "r2"} {
		if err := conn.WriteJSON(Frame{Type: "generate", ID: id, Payload: payload}); err != nil {
			t.Fatal(err)
		}
	}
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Type != "error" || f.ID != "r2" || f.Error == nil || f.Error.Error.Kind != apperr.InvalidRequest {
		t.Fatalf("want r2 rejected while r1 runs, got %+v", f)
	}

	close(prov.release)
	f = Frame{}
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Type != "result" || f.ID != "r1" {
		t.Fatalf("want r1 result, got %+v", f)
	}
}
