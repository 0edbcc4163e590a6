package generate

import (
	"strings"

	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/platform"
)

// ExcerptChars is the target length of a fallback excerpt.
const ExcerptChars = 200

// FallbackPosts builds deterministic posts from content for one platform.
// Two posts are produced when the platform allows more than one and the
// content continues past the first excerpt.
func FallbackPosts(content string, id platform.ID, c platform.Constraint, hashtags bool) []generator.Post {
	tag := "#" + string(id)
	text := strings.Join(strings.Fields(content), " ")
	room := c.MaxLength - generator.Length(tag) - 2
	if room < 1 {
		room = c.MaxLength
		tag = ""
	}
	size := ExcerptChars
	if size > room {
		size = room
	}

	first := generator.SmartExcerpt(text, size)
	posts := []generator.Post{fallbackPost(first, tag, c, hashtags)}
	if c.MaxPosts > 1 && generator.Length(text) > generator.Length(first) {
		rest := strings.TrimSpace(strings.TrimPrefix(text, strings.TrimSuffix(first, "...")))
		if rest != "" {
			posts = append(posts, fallbackPost(generator.SmartExcerpt(rest, size), tag, c, hashtags))
		}
	}
	return posts
}

func fallbackPost(excerpt, tag string, c platform.Constraint, hashtags bool) generator.Post {
	content := excerpt
	if tag != "" {
		content += "\n\n" + tag
	}
	content = generator.Truncate(content, c.MaxLength)
	p := generator.Post{
		Content:        content,
		Hashtags:       []string{},
		Mentions:       []string{},
		CharacterCount: generator.Length(content),
	}
	if hashtags && tag != "" && c.HashtagCount > 0 {
		p.Hashtags = []string{tag}
	}
	return p
}
