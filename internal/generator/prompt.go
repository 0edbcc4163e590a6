package generator

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/postforge/internal/platform"
)

// SystemMessage is sent alongside every platform prompt.
const SystemMessage = "You are an experienced social media copywriter. You adapt source material to each platform's audience and limits. You respond with strict JSON only: no prose, no markdown, no code fences."

// promptSpec holds the platform-specific parts of a prompt.
type promptSpec struct {
	Name     string
	Noun     string
	Guidance []string
	Shape    string
}

func buildPrompt(spec promptSpec, c platform.Constraint, content string, o Options) string {
	var b strings.Builder
	target := TargetLength(c, o)
	count := c.MaxPosts
	noun := spec.Noun
	if count == 1 {
		fmt.Fprintf(&b, "Write 1 %s %s based on the source content below.\n", spec.Name, noun)
	} else {
		fmt.Fprintf(&b, "Write up to %d %s %ss based on the source content below.\n", count, spec.Name, noun)
	}
	fmt.Fprintf(&b, "Tone: %s.\n", c.Tone)
	fmt.Fprintf(&b, "Aim for about %d characters per item and never exceed %d characters.\n", target, c.MaxLength)
	if o.Hashtags() && c.HashtagCount > 0 {
		fmt.Fprintf(&b, "Include up to %d relevant hashtags.\n", c.HashtagCount)
	} else {
		b.WriteString("Do not include hashtags.\n")
	}
	if o.Emojis() {
		b.WriteString("Use emojis where they fit naturally.\n")
	} else {
		b.WriteString("Do not use emojis.\n")
	}
	if a := strings.TrimSpace(o.TargetAudience); a != "" {
		fmt.Fprintf(&b, "Target audience: %s.\n", a)
	}
	for _, g := range spec.Guidance {
		b.WriteString(g)
		b.WriteByte('\n')
	}
	if ci := strings.TrimSpace(o.CustomInstructions); ci != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", ci)
	}
	b.WriteString("\nRespond with a JSON array only. Each element must have this shape:\n")
	b.WriteString(spec.Shape)
	b.WriteString("\n\nSource content:\n\"\"\"\n")
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n\"\"\"\n")
	return b.String()
}
