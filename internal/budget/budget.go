package budget

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Prompt sizing uses an empirical ratio of 3.5 characters per token for the
// target model family, plus a 20% buffer for message framing and JSON
// structure. Expressed as the exact fraction 12/35 to keep integer math.
const (
	tokensNumerator   = 12
	tokensDenominator = 35
)

// EstimateTokensFromChars converts a character count into an estimated token
// count: ceil(chars / 3.5 * 1.2). The result is at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return (charCount*tokensNumerator + tokensDenominator - 1) / tokensDenominator
}

// EstimateTokens returns the estimated token count of a string, counting
// characters rather than bytes.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(utf8.RuneCountInString(s))
}

// EstimatePromptTokens estimates the total tokens for a system message and a
// user message sent together.
func EstimatePromptTokens(system string, user string) int {
	return EstimateTokens(system) + EstimateTokens(user)
}

// ModelContextTokens returns an estimated maximum context window for a given
// model name. Unknown models fall back to a conservative default.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return 8192
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	for _, s := range []struct {
		suffix string
		tokens int
	}{
		{"1m", 1_000_000},
		{"512k", 512_000},
		{"200k", 200_000},
		{"128k", 128_000},
		{"32k", 32_768},
	} {
		if strings.HasSuffix(name, s.suffix) {
			return s.tokens
		}
	}
	if strings.Contains(name, "gemini") {
		return 1_000_000
	}
	if strings.Contains(name, "-mini") || strings.HasPrefix(name, "gpt-4") {
		return 128_000
	}
	return 8192
}

// RemainingContext computes the remaining input token budget given a model,
// a reservation for output generation, and the estimated prompt tokens.
// The result is never negative.
func RemainingContext(modelName string, reservedForOutput int, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	remaining := ModelContextTokens(modelName) - reservedForOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HeadroomTokens is the larger of 5% of the model context or 512 tokens.
func HeadroomTokens(modelName string) int {
	dyn := int(math.Ceil(float64(ModelContextTokens(modelName)) * 0.05))
	if dyn < 512 {
		return 512
	}
	return dyn
}

// FitsInContext reports whether the prompt fits into the model's context
// window after reserving output tokens and headroom.
func FitsInContext(modelName string, reservedForOutput int, promptTokens int) bool {
	return RemainingContext(modelName, reservedForOutput+HeadroomTokens(modelName), promptTokens) > 0
}

// knownModelMax contains rough context sizes for common model identifiers.
var knownModelMax = map[string]int{
	"gpt-4o":                  128_000,
	"gpt-4o-mini":             128_000,
	"gpt-4.1":                 1_047_576,
	"gpt-4.1-mini":            1_047_576,
	"gpt-4-turbo":             128_000,
	"gpt-3.5-turbo":           16_384,
	"llama-3.1-8b-instant":    128_000,
	"llama-3.3-70b-versatile": 128_000,
	"gemini-1.5-flash":        1_000_000,
	"gemini-2.0-flash":        1_000_000,
	"test-model":              32_768,
}
