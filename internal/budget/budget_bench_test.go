package budget

import (
	"strconv"
	"testing"
)

func BenchmarkEstimateTokens(b *testing.B) {
	for _, n := range []int{64, 1024, 16384, 65536} {
		b.Run("chars="+strconv.Itoa(n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = EstimateTokensFromChars(n)
			}
		})
	}
}

func BenchmarkFitsInContext(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = FitsInContext("gpt-4o", 2000, 20_000)
	}
}
