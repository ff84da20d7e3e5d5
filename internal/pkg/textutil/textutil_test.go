package textutil

import (
	"math"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  hello   world ", "hello world"},
		{"one\ttwo\nthree", "one two three"},
		{"Already Clean", "Already Clean"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Canonicalize(c.in); got != c.want {
			t.Fatalf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeForMatch(t *testing.T) {
	if got := NormalizeForMatch("  Invoice   TOTAL "); got != "invoice total" {
		t.Fatalf("got %q", got)
	}
}

func TestHashTextIgnoresWhitespace(t *testing.T) {
	if HashText("a  b") != HashText(" a b ") {
		t.Fatalf("hash should ignore whitespace differences")
	}
	if HashText("a b") == HashText("a c") {
		t.Fatalf("distinct texts should hash differently")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("empty = %d", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Fatalf("abcd = %d", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Fatalf("abcde = %d", got)
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0}
	c := []float32{0, 1}
	if got := Cosine(a, b); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: %v", got)
	}
	if got := Cosine(a, c); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: %v", got)
	}
	if got := Cosine(a, []float32{1}); got != 0 {
		t.Fatalf("length mismatch should be 0, got %v", got)
	}
}
