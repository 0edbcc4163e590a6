package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/llm"
	"github.com/hyperifyio/postforge/internal/metrics"
	"github.com/hyperifyio/postforge/internal/platform"
)

// stubProvider answers by matching a marker in the prompt.
type stubProvider struct {
	mu      sync.Mutex
	calls   int
	answers map[string]string
	errs    map[string]error
	block   bool
}

func (s *stubProvider) GenerateCompletion(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return "", apperr.Wrap(apperr.ProviderOther, ctx.Err(), "cancelled")
	}
	for marker, err := range s.errs {
		if strings.Contains(prompt, marker) {
			return "", err
		}
	}
	for marker, ans := range s.answers {
		if strings.Contains(prompt, marker) {
			return ans, nil
		}
	}
	return "", apperr.E(apperr.ProviderEmptyResponse, "no answer")
}

func (s *stubProvider) ValidateCredentials(ctx context.Context) bool { return true }

func (s *stubProvider) ModelInfo() llm.ModelInfo {
	return llm.ModelInfo{Name: "test-model", Provider: "stub", MaxTokens: 2000, ContextWindow: 32768}
}

func newOrchestrator(p llm.Provider) (*Orchestrator, *metrics.Ring) {
	ring := metrics.NewRing(10)
	return &Orchestrator{Provider: p, Registry: generator.DefaultRegistry(), Metrics: ring}, ring
}

func TestGenerate_PerPlatformIndependence(t *testing.T) {
	p := &stubProvider{answers: map[string]string{
		"Twitter/X": "this is not json",
		"LinkedIn":  `[{"content":"We shipped a new analytics dashboard.","hashtags":["analytics"]}]`,
	}}
	o, ring := newOrchestrator(p)
	res, err := o.Generate(context.Background(), Request{
		Content:   "Announcing our new analytics dashboard",
		Platforms: []platform.ID{platform.Twitter, platform.LinkedIn},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.Metadata.Model != "test-model" {
		t.Fatalf("outcome: %v model %q", res.Outcome, res.Metadata.Model)
	}
	if _, ok := res.Posts[platform.Twitter]; ok {
		t.Fatal("failed platform should be omitted")
	}
	if len(res.Posts[platform.LinkedIn]) != 1 {
		t.Fatalf("linkedin posts: %+v", res.Posts)
	}
	if res.Failures[platform.Twitter] == "" {
		t.Fatal("twitter failure not reported")
	}
	if res.Metadata.TokensUsed <= 0 {
		t.Fatal("tokens not counted")
	}
	if snap := ring.Snapshot(); len(snap) != 1 || !snap[0].Success || snap[0].PlatformCount != 2 {
		t.Fatalf("metrics: %+v", snap)
	}
}

// Provider auth and rate-limit errors omit the platform instead of failing
// the request; the reason is kept in Failures.
func TestGenerate_ProviderAuthErrorOmitsPlatform(t *testing.T) {
	p := &stubProvider{
		answers: map[string]string{"LinkedIn": `[{"content":"We shipped a new analytics dashboard."}]`},
		errs: map[string]error{
			"Twitter/X": apperr.E(apperr.ProviderAuthError, "bad key"),
			"Threads":   apperr.E(apperr.ProviderRateLimited, "slow down"),
		},
	}
	o, _ := newOrchestrator(p)
	res, err := o.Generate(context.Background(), Request{
		Content:   "Announcing our new analytics dashboard",
		Platforms: []platform.ID{platform.Twitter, platform.Threads, platform.LinkedIn},
	})
	if err != nil {
		t.Fatalf("provider errors must not surface: %v", err)
	}
	if res.Fallback() || len(res.Posts[platform.LinkedIn]) != 1 {
		t.Fatalf("want linkedin posts only, got %+v", res.Posts)
	}
	for _, id := range []platform.ID{platform.Twitter, platform.Threads} {
		if _, ok := res.Posts[id]; ok || res.Failures[id] == "" {
			t.Fatalf("%s: want omitted with a reason, got %+v", id, res.Failures)
		}
	}
}

func TestGenerate_FallbackWhenAllFail(t *testing.T) {
	p := &stubProvider{errs: map[string]error{
		"Source content": apperr.E(apperr.ProviderRateLimited, "slow down"),
	}}
	o, ring := newOrchestrator(p)
	content := "Our team rebuilt the analytics pipeline from scratch. It is now ten times faster and costs half as much to run. " +
		strings.Repeat("More details follow in this paragraph about the migration. ", 10)
	ids := platform.All()
	res, err := o.Generate(context.Background(), Request{Content: content, Platforms: ids})
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if !res.Fallback() || res.Metadata.Model != FallbackModel {
		t.Fatalf("expected fallback, got %v %q", res.Outcome, res.Metadata.Model)
	}
	for _, id := range ids {
		posts := res.Posts[id]
		c, _ := platform.Lookup(id)
		if len(posts) == 0 || len(posts) > 2 {
			t.Fatalf("%s: %d fallback posts", id, len(posts))
		}
		if c.MaxPosts > 1 && len(posts) != 2 {
			t.Fatalf("%s: want 2 posts for long content, got %d", id, len(posts))
		}
		for _, post := range posts {
			if post.CharacterCount != generator.Length(post.Content) || post.CharacterCount > c.MaxLength {
				t.Fatalf("%s: invalid fallback post %+v", id, post)
			}
			if !strings.Contains(post.Content, "#"+string(id)) {
				t.Fatalf("%s: missing platform tag: %q", id, post.Content)
			}
		}
	}
	if snap := ring.Snapshot(); !snap[0].Fallback {
		t.Fatalf("metrics should mark fallback: %+v", snap[0])
	}
}

func TestFallbackPosts_ShortContentSinglePost(t *testing.T) {
	c, _ := platform.Lookup(platform.Twitter)
	posts := FallbackPosts("Short note.", platform.Twitter, c, true)
	if len(posts) != 1 || posts[0].Content != "Short note.\n\n#twitter" {
		t.Fatalf("got %+v", posts)
	}
	if len(posts[0].Hashtags) != 1 {
		t.Fatalf("hashtags: %v", posts[0].Hashtags)
	}
	c, _ = platform.Lookup(platform.YouTube)
	long := strings.Repeat("Sentence number one is here. ", 20)
	if got := FallbackPosts(long, platform.YouTube, c, false); len(got) != 1 || len(got[0].Hashtags) != 0 {
		t.Fatalf("youtube allows one post: %+v", got)
	}
}

func TestGenerate_TruncationInvariant(t *testing.T) {
	long := strings.Repeat("Lots of words here ", 40)
	p := &stubProvider{answers: map[string]string{
		"Twitter/X": `[{"content":"` + long + `"}]`,
	}}
	o, _ := newOrchestrator(p)
	res, err := o.Generate(context.Background(), Request{Content: "Release notes", Platforms: []platform.ID{"x"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	post := res.Posts[platform.Twitter][0]
	if post.CharacterCount > 280 || post.CharacterCount != generator.Length(post.Content) {
		t.Fatalf("truncation invariant broken: %d vs %d", post.CharacterCount, generator.Length(post.Content))
	}
}

func TestGenerate_StripsHashtagsWhenDisabled(t *testing.T) {
	p := &stubProvider{answers: map[string]string{
		"Facebook": `[{"content":"Hello friends","hashtags":["a","b"]}]`,
	}}
	o, _ := newOrchestrator(p)
	off := false
	res, err := o.Generate(context.Background(), Request{
		Content:   "News",
		Platforms: []platform.ID{platform.Facebook},
		Options:   generator.Options{IncludeHashtags: &off},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := res.Posts[platform.Facebook][0].Hashtags; len(got) != 0 {
		t.Fatalf("hashtags should be stripped: %v", got)
	}
}

func TestGenerate_Validation(t *testing.T) {
	p := &stubProvider{}
	o, ring := newOrchestrator(p)
	o.MaxContentChars = 10
	cases := []struct {
		name string
		req  Request
		want apperr.Kind
	}{
		{"empty", Request{Content: "   ", Platforms: []platform.ID{platform.Twitter}}, apperr.InvalidRequest},
		{"no platforms", Request{Content: "hi", Platforms: []platform.ID{"myspace"}}, apperr.InvalidRequest},
		{"too long", Request{Content: strings.Repeat("a", 11), Platforms: []platform.ID{platform.Twitter}}, apperr.ContentTooLong},
	}
	for _, tc := range cases {
		_, err := o.Generate(context.Background(), tc.req)
		if apperr.KindOf(err) != tc.want {
			t.Fatalf("%s: want %s, got %v", tc.name, tc.want, err)
		}
	}
	if p.calls != 0 {
		t.Fatalf("provider must not be called on validation failure, got %d calls", p.calls)
	}
	if ring.Summarize().Failures != 3 {
		t.Fatalf("failures not recorded: %+v", ring.Summarize())
	}
}

func TestGenerate_TokenLimit(t *testing.T) {
	p := &stubProvider{}
	o, _ := newOrchestrator(p)
	o.MaxInputTokens = 100
	_, err := o.Generate(context.Background(), Request{Content: strings.Repeat("word ", 200), Platforms: []platform.ID{platform.LinkedIn}})
	if apperr.KindOf(err) != apperr.TokenLimitExceeded {
		t.Fatalf("want token limit, got %v", err)
	}
	if p.calls != 0 {
		t.Fatal("provider called despite token limit")
	}
}

// Multi-byte content is budgeted by characters, so 6,000 CJK characters
// (18,000 bytes) stay inside a 5,000-token input budget.
func TestGenerate_TokenLimitCountsCharacters(t *testing.T) {
	p := &stubProvider{answers: map[string]string{"LinkedIn": `[{"content":"A short summary of the launch."}]`}}
	o, _ := newOrchestrator(p)
	o.MaxInputTokens = 5000
	content := strings.Repeat("内容生成", 1500)
	res, err := o.Generate(context.Background(), Request{Content: content, Platforms: []platform.ID{platform.LinkedIn}})
	if err != nil {
		t.Fatalf("multi-byte content rejected: %v", err)
	}
	if p.calls != 1 || len(res.Posts[platform.LinkedIn]) != 1 {
		t.Fatalf("expected one generated post, got %d calls and %+v", p.calls, res.Posts)
	}
}

func TestGenerate_CancellationIsAnError(t *testing.T) {
	p := &stubProvider{block: true}
	o, _ := newOrchestrator(p)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := o.Generate(ctx, Request{Content: "hello", Platforms: []platform.ID{platform.Twitter, platform.Threads}})
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline error, got %v", err)
	}
}
