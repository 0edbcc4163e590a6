package generator

import (
	"strings"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/platform"
)

const textShape = `{"content": "post text", "hashtags": ["tag"], "mentions": ["handle"]}`

// Text generates plain text posts for feed-style platforms.
type Text struct {
	ID    platform.ID
	Rules platform.Constraint
	Spec  promptSpec
}

type rawTextPost struct {
	Content  string     `json:"content"`
	Text     string     `json:"text"`
	Hashtags stringList `json:"hashtags"`
	Mentions stringList `json:"mentions"`
}

func (g *Text) Platform() platform.ID           { return g.ID }
func (g *Text) Constraint() platform.Constraint { return g.Rules }

func (g *Text) GeneratePrompt(content string, opts Options) string {
	return buildPrompt(g.Spec, g.Rules, content, opts)
}

func (g *Text) ProcessResponse(raw string) ([]Post, error) {
	items, err := decodeItems[rawTextPost](raw)
	if err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(items))
	for _, it := range items {
		body := it.Content
		if strings.TrimSpace(body) == "" {
			body = it.Text
		}
		if p, ok := finalize(g.Rules, body, it.Hashtags, it.Mentions); ok {
			posts = append(posts, p)
		}
		if len(posts) == g.Rules.MaxPosts {
			break
		}
	}
	if len(posts) == 0 {
		return nil, apperr.E(apperr.ResponseParseError, "%s: model output contained no usable posts", g.ID)
	}
	return posts, nil
}

func (g *Text) ValidatePost(p Post) bool {
	return validate(g.Rules, p)
}

// finalize enforces the platform's limits on a candidate post.
func finalize(c platform.Constraint, content string, hashtags, mentions []string) (Post, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Post{}, false
	}
	content = Truncate(content, c.MaxLength)
	p := Post{
		Content:        content,
		Hashtags:       normalizeTags(hashtags, "#", c.HashtagCount),
		Mentions:       normalizeTags(mentions, "@", c.HashtagCount),
		CharacterCount: Length(content),
	}
	if p.Hashtags == nil {
		p.Hashtags = []string{}
	}
	if p.Mentions == nil {
		p.Mentions = []string{}
	}
	return p, validate(c, p)
}

func validate(c platform.Constraint, p Post) bool {
	n := Length(p.Content)
	if strings.TrimSpace(p.Content) == "" || n > c.MaxLength {
		return false
	}
	if p.CharacterCount != n {
		return false
	}
	return len(p.Hashtags) <= c.HashtagCount && len(p.Mentions) <= c.HashtagCount
}

func newText(id platform.ID, spec promptSpec) *Text {
	c, _ := platform.Lookup(id)
	spec.Shape = textShape
	return &Text{ID: id, Rules: c, Spec: spec}
}

// NewTwitter returns the thread generator for Twitter/X.
func NewTwitter() *Text {
	return newText(platform.Twitter, promptSpec{
		Name: "Twitter/X",
		Noun: "thread tweet",
		Guidance: []string{
			"Write the tweets as a thread: the first tweet hooks the reader, later tweets carry one idea each.",
			"Keep hashtags out of the tweet text; list them in the hashtags field.",
		},
	})
}

// NewLinkedIn returns the article-style generator for LinkedIn.
func NewLinkedIn() *Text {
	return newText(platform.LinkedIn, promptSpec{
		Name: "LinkedIn",
		Noun: "post",
		Guidance: []string{
			"Open with a strong first line, use short paragraphs, and close with a question or call to action.",
			"Focus on professional insight and takeaways.",
		},
	})
}

// NewInstagram returns the caption generator for Instagram.
func NewInstagram() *Text {
	return newText(platform.Instagram, promptSpec{
		Name: "Instagram",
		Noun: "caption",
		Guidance: []string{
			"The first sentence must work on its own before the caption is collapsed.",
			"Describe a visual that would suit the caption in one short line at the end.",
		},
	})
}

// NewFacebook returns the post generator for Facebook.
func NewFacebook() *Text {
	return newText(platform.Facebook, promptSpec{
		Name: "Facebook",
		Noun: "post",
		Guidance: []string{
			"Write as if talking to friends and followers; invite comments.",
		},
	})
}

// NewThreads returns the thread generator for Threads.
func NewThreads() *Text {
	return newText(platform.Threads, promptSpec{
		Name: "Threads",
		Noun: "post",
		Guidance: []string{
			"Keep each post conversational and self-contained; the series should read as a thread.",
		},
	})
}
