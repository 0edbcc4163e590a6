package generator

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/hyperifyio/postforge/internal/apperr"
	"github.com/hyperifyio/postforge/internal/platform"
)

// ShortVideo generates short-form video scripts (TikTok). The model returns
// a title, caption, sound suggestions and trending topics which are composed
// into the canonical post.
type ShortVideo struct {
	Rules platform.Constraint
}

type rawShortVideo struct {
	Title            string     `json:"title"`
	Caption          string     `json:"caption"`
	Script           string     `json:"script"`
	Hashtags         stringList `json:"hashtags"`
	Mentions         stringList `json:"mentions"`
	SoundSuggestions stringList `json:"soundSuggestions"`
	TrendingTopics   stringList `json:"trendingTopics"`
}

// NewTikTok returns the short-video generator.
func NewTikTok() *ShortVideo {
	c, _ := platform.Lookup(platform.TikTok)
	return &ShortVideo{Rules: c}
}

func (g *ShortVideo) Platform() platform.ID           { return platform.TikTok }
func (g *ShortVideo) Constraint() platform.Constraint { return g.Rules }

func (g *ShortVideo) GeneratePrompt(content string, opts Options) string {
	return buildPrompt(promptSpec{
		Name: "TikTok",
		Noun: "video script",
		Guidance: []string{
			"Each script starts with a hook for the first three seconds, then the key points, then a call to action.",
			"Suggest background sounds and trending topics that fit the video.",
		},
		Shape: `{"title": "short hook", "caption": "script and caption text", "hashtags": ["tag"], "mentions": [], "soundSuggestions": ["sound"], "trendingTopics": ["topic"]}`,
	}, g.Rules, content, opts)
}

func (g *ShortVideo) ProcessResponse(raw string) ([]Post, error) {
	items, err := decodeItems[rawShortVideo](raw)
	if err != nil {
		return nil, err
	}
	var posts []Post
	for _, it := range items {
		body := it.Caption
		if strings.TrimSpace(body) == "" {
			body = it.Script
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		parts := []string{strings.TrimSpace(it.Title), strings.TrimSpace(body)}
		var extras []string
		if len(it.SoundSuggestions) > 0 {
			extras = append(extras, "Sound: "+strings.Join(it.SoundSuggestions, ", "))
		}
		if len(it.TrendingTopics) > 0 {
			extras = append(extras, "Trending: "+strings.Join(it.TrendingTopics, ", "))
		}
		content := composeSections(parts, extras, g.Rules.MaxLength)
		if p, ok := finalize(g.Rules, content, it.Hashtags, it.Mentions); ok {
			posts = append(posts, p)
		}
		if len(posts) == g.Rules.MaxPosts {
			break
		}
	}
	if len(posts) == 0 {
		return nil, apperr.E(apperr.ResponseParseError, "tiktok: model output contained no usable scripts")
	}
	return posts, nil
}

func (g *ShortVideo) ValidatePost(p Post) bool {
	return validate(g.Rules, p)
}

// LongVideo generates long-form video descriptions (YouTube) with a title,
// description, tags and chapter timestamps.
type LongVideo struct {
	Rules platform.Constraint
}

type chapter struct {
	Time  string
	Label string
}

// UnmarshalJSON accepts "0:00 Intro" strings or objects with time/label
// (or timestamp/title) keys.
func (c *chapter) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if sp := strings.IndexAny(s, " \t"); sp > 0 {
			c.Time, c.Label = s[:sp], strings.TrimLeft(strings.TrimSpace(s[sp:]), "-: ")
		} else {
			c.Time = s
		}
		return nil
	}
	var obj struct {
		Time      string `json:"time"`
		Timestamp string `json:"timestamp"`
		Label     string `json:"label"`
		Title     string `json:"title"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	c.Time, c.Label = obj.Time, obj.Label
	if c.Time == "" {
		c.Time = obj.Timestamp
	}
	if c.Label == "" {
		c.Label = obj.Title
	}
	return nil
}

type rawLongVideo struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tags        stringList `json:"tags"`
	Hashtags    stringList `json:"hashtags"`
	Mentions    stringList `json:"mentions"`
	Timestamps  []chapter  `json:"timestamps"`
}

// NewYouTube returns the long-video generator.
func NewYouTube() *LongVideo {
	c, _ := platform.Lookup(platform.YouTube)
	return &LongVideo{Rules: c}
}

func (g *LongVideo) Platform() platform.ID           { return platform.YouTube }
func (g *LongVideo) Constraint() platform.Constraint { return g.Rules }

func (g *LongVideo) GeneratePrompt(content string, opts Options) string {
	return buildPrompt(promptSpec{
		Name: "YouTube",
		Noun: "video description",
		Guidance: []string{
			"Give the video a searchable title under 100 characters.",
			"The description summarizes the video and lists chapter timestamps that start at 0:00.",
		},
		Shape: `{"title": "video title", "description": "description text", "tags": ["tag"], "timestamps": [{"time": "0:00", "label": "Intro"}]}`,
	}, g.Rules, content, opts)
}

func (g *LongVideo) ProcessResponse(raw string) ([]Post, error) {
	items, err := decodeItems[rawLongVideo](raw)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if strings.TrimSpace(it.Description) == "" {
			continue
		}
		parts := []string{strings.TrimSpace(it.Title), strings.TrimSpace(it.Description)}
		var extras []string
		if len(it.Timestamps) > 0 {
			lines := []string{"Chapters:"}
			for _, ch := range it.Timestamps {
				if ch.Time == "" {
					continue
				}
				lines = append(lines, strings.TrimSpace(ch.Time+" "+ch.Label))
			}
			if len(lines) > 1 {
				extras = append(extras, strings.Join(lines, "\n"))
			}
		}
		tags := append([]string{}, it.Tags...)
		tags = append(tags, it.Hashtags...)
		content := composeSections(parts, extras, g.Rules.MaxLength)
		if p, ok := finalize(g.Rules, content, tags, it.Mentions); ok {
			return []Post{p}, nil
		}
	}
	return nil, apperr.E(apperr.ResponseParseError, "youtube: model output contained no usable description")
}

func (g *LongVideo) ValidatePost(p Post) bool {
	return validate(g.Rules, p)
}

// composeSections joins the required parts and as many optional extras as
// fit within max. Extras are dropped from the end first.
func composeSections(parts, extras []string, max int) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	for n := len(extras); n >= 0; n-- {
		all := append(append([]string{}, kept...), extras[:n]...)
		s := strings.Join(all, "\n\n")
		if Length(s) <= max || n == 0 {
			return s
		}
	}
	return strings.Join(kept, "\n\n")
}
