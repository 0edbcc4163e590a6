package app

import (
	"strings"
	"testing"

	"github.com/hyperifyio/postforge/internal/extract"
	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/pipeline"
	"github.com/hyperifyio/postforge/internal/platform"
	"github.com/hyperifyio/postforge/internal/quota"
)

func TestRenderMarkdown(t *testing.T) {
	resp := pipeline.Response{
		Posts: map[platform.ID][]generator.Post{
			platform.LinkedIn: {{Content: "Long form.", CharacterCount: 10}},
			platform.Twitter:  {{Content: "Short.", Hashtags: []string{"#a", "#b"}, CharacterCount: 6}},
			"mastodon":        {{Content: "Toot.", CharacterCount: 5}},
		},
		Usage:  quota.Usage{Tier: quota.TierPlus, DailyUsed: 3, DailyLimit: quota.Unlimited, MonthlyWordsUsed: 40, MonthlyWordsLimit: quota.Unlimited},
		Model:  "fallback",
		Source: &extract.Result{URL: "https://example.com/post", Title: "A post"},
	}
	resp.Fallback = true
	md := RenderMarkdown(resp)

	tw := strings.Index(md, "## twitter")
	li := strings.Index(md, "## linkedin")
	ma := strings.Index(md, "## mastodon")
	if tw < 0 || li < 0 || ma < 0 || !(tw < li && li < ma) {
		t.Fatalf("platform order:\n%s", md)
	}
	for _, want := range []string{"Hashtags: #a #b", "- Fallback: yes", "[A post](https://example.com/post)", "Daily generations: 3 (unlimited)"} {
		if !strings.Contains(md, want) {
			t.Fatalf("missing %q:\n%s", want, md)
		}
	}
}
