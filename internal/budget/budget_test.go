package budget

import (
	"strings"
	"testing"
)

func TestEstimateTokensFromChars(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 0},
		{-3, 0},
		{1, 1},   // ceil(12/35)=1
		{35, 12}, // exactly 10 tokens of 3.5 chars, +20%
		{36, 13}, // ceil(432/35)=13
		{350, 120},
		{3500, 1200},
	}
	for _, c := range cases {
		if got := EstimateTokensFromChars(c.in); got != c.want {
			t.Fatalf("EstimateTokensFromChars(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEstimatePromptTokens(t *testing.T) {
	// 35 chars -> 12, 70 chars -> 24
	sys := "12345678901234567890123456789012345"
	user := sys + sys
	if got := EstimatePromptTokens(sys, user); got != 36 {
		t.Fatalf("EstimatePromptTokens() = %d, want 36", got)
	}
}

func TestEstimateTokens_CountsCharacters(t *testing.T) {
	cjk := strings.Repeat("内容", 35) // 70 characters, 210 bytes
	if got := EstimateTokens(cjk); got != 24 {
		t.Fatalf("EstimateTokens(cjk) = %d, want 24", got)
	}
	if got, want := EstimateTokens(strings.Repeat("é", 35)), EstimateTokens(strings.Repeat("e", 35)); got != want {
		t.Fatalf("accented text estimated %d tokens, ascii %d", got, want)
	}
}

func TestModelContextTokens(t *testing.T) {
	if ModelContextTokens("") != 8192 {
		t.Fatal("empty model should default to 8192")
	}
	if ModelContextTokens("GPT-4o") < 100_000 {
		t.Fatal("case-insensitive gpt-4o lookup should be ~128k")
	}
	if ModelContextTokens("mystery-512k") != 512_000 {
		t.Fatal("512k suffix heuristic failed")
	}
	if ModelContextTokens("gemini-exp") != 1_000_000 {
		t.Fatal("gemini family should be 1M")
	}
}

func TestFitsInContext(t *testing.T) {
	model := "test-model"
	max := ModelContextTokens(model)
	if !FitsInContext(model, 1000, 2000) {
		t.Fatal("small prompt should fit")
	}
	if FitsInContext(model, 1000, max) {
		t.Fatal("prompt as large as the window must not fit")
	}
	if RemainingContext(model, 10, max) != 0 {
		t.Fatal("remaining should clamp at zero")
	}
	if HeadroomTokens("") != 512 {
		t.Fatal("default headroom should floor to 512")
	}
}
