package platform

import (
	"sort"
	"strings"
)

// ID identifies a target social platform.
type ID string

const (
	Twitter   ID = "twitter"
	LinkedIn  ID = "linkedin"
	Instagram ID = "instagram"
	Facebook  ID = "facebook"
	Threads   ID = "threads"
	TikTok    ID = "tiktok"
	YouTube   ID = "youtube"
)

// Tone is the voice a platform's posts should be written in.
type Tone string

const (
	Casual         Tone = "casual"
	Professional   Tone = "professional"
	Engaging       Tone = "engaging"
	Friendly       Tone = "friendly"
	Conversational Tone = "conversational"
	Playful        Tone = "playful"
	Informative    Tone = "informative"
)

// Format is the structural shape of a platform's posts.
type Format string

const (
	FormatThread           Format = "thread"
	FormatArticle          Format = "article"
	FormatCaption          Format = "caption"
	FormatPost             Format = "post"
	FormatVideoScript      Format = "video_script"
	FormatVideoDescription Format = "video_description"
)

// Constraint holds the per-platform limits every generated post must respect.
type Constraint struct {
	MaxLength    int    `json:"maxLength" yaml:"maxLength"`
	MaxPosts     int    `json:"maxPosts" yaml:"maxPosts"`
	HashtagCount int    `json:"hashtagCount" yaml:"hashtagCount"`
	Tone         Tone   `json:"tone" yaml:"tone"`
	Format       Format `json:"format" yaml:"format"`
}

var constraints = map[ID]Constraint{
	Twitter:   {MaxLength: 280, MaxPosts: 3, HashtagCount: 2, Tone: Casual, Format: FormatThread},
	LinkedIn:  {MaxLength: 3000, MaxPosts: 2, HashtagCount: 5, Tone: Professional, Format: FormatArticle},
	Instagram: {MaxLength: 2200, MaxPosts: 2, HashtagCount: 30, Tone: Engaging, Format: FormatCaption},
	Facebook:  {MaxLength: 2000, MaxPosts: 2, HashtagCount: 3, Tone: Friendly, Format: FormatPost},
	Threads:   {MaxLength: 500, MaxPosts: 3, HashtagCount: 3, Tone: Conversational, Format: FormatThread},
	TikTok:    {MaxLength: 2200, MaxPosts: 2, HashtagCount: 5, Tone: Playful, Format: FormatVideoScript},
	YouTube:   {MaxLength: 5000, MaxPosts: 1, HashtagCount: 15, Tone: Informative, Format: FormatVideoDescription},
}

var aliases = map[string]ID{
	"x":       Twitter,
	"tweet":   Twitter,
	"yt":      YouTube,
	"ig":      Instagram,
	"fb":      Facebook,
	"tik-tok": TikTok,
}

// Lookup returns the constraint for id.
func Lookup(id ID) (Constraint, bool) {
	c, ok := constraints[id]
	return c, ok
}

// Normalize maps user input (any case, common aliases) to a known ID.
func Normalize(s string) (ID, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return "", false
	}
	if id, ok := aliases[v]; ok {
		return id, true
	}
	id := ID(v)
	if _, ok := constraints[id]; ok {
		return id, true
	}
	return "", false
}

// Known reports whether id has a constraint entry.
func Known(id ID) bool {
	_, ok := constraints[id]
	return ok
}

// All returns every known platform sorted by name.
func All() []ID {
	out := make([]ID, 0, len(constraints))
	for id := range constraints {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseList normalizes a list of platform names, dropping unknown entries and
// duplicates while preserving first-seen order. Unknown names are returned
// separately so callers can report them.
func ParseList(in []string) (known []ID, unknown []string) {
	seen := map[ID]bool{}
	for _, s := range in {
		id, ok := Normalize(s)
		if !ok {
			if strings.TrimSpace(s) != "" {
				unknown = append(unknown, s)
			}
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		known = append(known, id)
	}
	return known, unknown
}
