package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
)

// Canonicalize trims and collapses internal whitespace, preserving case.
func Canonicalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeForMatch lowercases and collapses whitespace for containment checks.
func NormalizeForMatch(s string) string {
	return strings.ToLower(Canonicalize(s))
}

// HashText returns the sha256 hex digest of the canonicalized text.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(Canonicalize(s)))
	return hex.EncodeToString(sum[:])
}

// EstimateTokens is the fixed tokenizer shared by the distiller and the
// synthesizer: ~4 chars per token for English-ish text.
func EstimateTokens(s string) int {
	r := []rune(s)
	return int(math.Ceil(float64(len(r)) / 4.0))
}

func TrimToChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
