package app

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/postforge/internal/pipeline"
	"github.com/hyperifyio/postforge/internal/quota"
)

// RenderMarkdown formats a generation response for the CLI.
func RenderMarkdown(resp pipeline.Response) string {
	var b strings.Builder
	b.WriteString("# Generated posts\n\n")
	fmt.Fprintf(&b, "- Model: %s\n", resp.Model)
	if resp.Fallback {
		b.WriteString("- Fallback: yes\n")
	}
	fmt.Fprintf(&b, "- Tokens: %d\n", resp.Metadata.TokensUsed)
	fmt.Fprintf(&b, "- Time: %d ms\n", resp.Metadata.GenerationTimeMs)
	if resp.GenerationID != "" {
		fmt.Fprintf(&b, "- Generation: %s\n", resp.GenerationID)
	}
	if resp.Source != nil {
		title := resp.Source.Title
		if title == "" {
			title = resp.Source.URL
		}
		fmt.Fprintf(&b, "- Source: [%s](%s)\n", title, resp.Source.URL)
	}

	for _, id := range pipeline.SortedPlatforms(resp.Posts) {
		fmt.Fprintf(&b, "\n## %s\n", id)
		for i, p := range resp.Posts[id] {
			fmt.Fprintf(&b, "\n### Post %d (%d chars)\n\n", i+1, p.CharacterCount)
			b.WriteString(strings.TrimSpace(p.Content))
			b.WriteString("\n")
			if len(p.Hashtags) > 0 {
				fmt.Fprintf(&b, "\nHashtags: %s\n", strings.Join(p.Hashtags, " "))
			}
			if len(p.Mentions) > 0 {
				fmt.Fprintf(&b, "\nMentions: %s\n", strings.Join(p.Mentions, " "))
			}
		}
	}

	u := resp.Usage
	b.WriteString("\n## Usage\n\n")
	fmt.Fprintf(&b, "- Tier: %s\n", u.Tier)
	fmt.Fprintf(&b, "- Words generated: %d\n", u.WordsGenerated)
	fmt.Fprintf(&b, "- Daily generations: %s\n", usageLine(u.DailyUsed, u.DailyLimit))
	fmt.Fprintf(&b, "- Monthly words: %s\n", usageLine(u.MonthlyWordsUsed, u.MonthlyWordsLimit))
	return b.String()
}

func usageLine(used, limit int) string {
	if limit == quota.Unlimited {
		return fmt.Sprintf("%d (unlimited)", used)
	}
	return fmt.Sprintf("%d of %d", used, limit)
}
