// Package generator turns source content into platform-tailored prompts and
// turns model output back into validated posts. One Generator exists per
// platform and a Registry dispatches by platform id.
package generator

import (
	"math"
	"unicode/utf8"

	"github.com/hyperifyio/postforge/internal/platform"
)

// Post is the canonical generated post shape shared by every platform.
type Post struct {
	Content        string   `json:"content"`
	Hashtags       []string `json:"hashtags"`
	Mentions       []string `json:"mentions"`
	CharacterCount int      `json:"characterCount"`
}

// Options are the caller-supplied generation knobs. Pointer fields
// distinguish "unset" from a zero value.
type Options struct {
	Temperature        *float64 `json:"temperature,omitempty" yaml:"temperature" validate:"omitempty,gte=0,lte=1"`
	CreativityLevel    *int     `json:"creativityLevel,omitempty" yaml:"creativityLevel" validate:"omitempty,gte=0,lte=100"`
	IncludeHashtags    *bool    `json:"includeHashtags,omitempty" yaml:"includeHashtags"`
	IncludeEmojis      *bool    `json:"includeEmojis,omitempty" yaml:"includeEmojis"`
	TargetAudience     string   `json:"targetAudience,omitempty" yaml:"targetAudience" validate:"max=200"`
	CustomInstructions string   `json:"customInstructions,omitempty" yaml:"customInstructions" validate:"max=2000"`
	ContentLength      *int     `json:"contentLength,omitempty" yaml:"contentLength" validate:"omitempty,gte=0,lte=100"`
}

// Hashtags reports whether hashtags were requested. Defaults to true.
func (o Options) Hashtags() bool {
	return o.IncludeHashtags == nil || *o.IncludeHashtags
}

// Emojis reports whether emojis were requested. Defaults to false.
func (o Options) Emojis() bool {
	return o.IncludeEmojis != nil && *o.IncludeEmojis
}

// Generator is the per-platform strategy.
type Generator interface {
	Platform() platform.ID
	Constraint() platform.Constraint
	GeneratePrompt(content string, opts Options) string
	ProcessResponse(raw string) ([]Post, error)
	ValidatePost(p Post) bool
}

const defaultTemperature = 0.7

// Temperature maps options to a sampling temperature. An explicit
// temperature wins; otherwise creativity 0..100 maps onto 0.1..1.0.
func Temperature(o Options) float64 {
	if o.Temperature != nil {
		return clampFloat(*o.Temperature, 0, 1)
	}
	if o.CreativityLevel != nil {
		c := clampInt(*o.CreativityLevel, 0, 100)
		return 0.1 + (float64(c)/100)*0.9
	}
	return defaultTemperature
}

// TargetLength scales the platform's max length by the content-length hint:
// floor(maxLength * (0.5 + hint/100)), never above maxLength.
func TargetLength(c platform.Constraint, o Options) int {
	if o.ContentLength == nil {
		return c.MaxLength
	}
	hint := clampInt(*o.ContentLength, 0, 100)
	target := int(math.Floor(float64(c.MaxLength) * (0.5 + float64(hint)/100)))
	if target > c.MaxLength {
		return c.MaxLength
	}
	if target < 1 {
		return 1
	}
	return target
}

// Length is the character count used for every limit check.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
