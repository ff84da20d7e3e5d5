package steps

import (
	"context"
	"strings"
	"testing"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

func synthState(query string) *QueryState {
	return &QueryState{
		GroupID:      "g1",
		Text:         query,
		Embedding:    []float32{1, 0},
		TokenBudget:  32000,
		ResponseType: domain.ResponseSummary,
	}
}

func TestSynthesizeRefusesEmptyContextWithoutLLMCall(t *testing.T) {
	deps := testDeps(&fakeStore{})
	llm := &fakeLLM{}
	deps.LLM = llm

	res, err := Synthesize(context.Background(), deps, synthState("What is the invoice total amount?"), domain.DistilledContext{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !res.Refused || res.AnswerText != domain.RefusalSentence {
		t.Fatalf("expected the canonical refusal, got refused=%v %q", res.Refused, res.AnswerText)
	}
	if llm.calls != 0 {
		t.Fatalf("empty context must not reach the LLM, saw %d calls", llm.calls)
	}
	if res.Citations != nil {
		t.Fatalf("refusals carry no citations, got %v", res.Citations)
	}
}

func TestSynthesizeBindsCitations(t *testing.T) {
	deps := testDeps(&fakeStore{})
	deps.LLM = &fakeLLM{textFn: func(_, user string) (string, error) {
		if !strings.Contains(user, "Invoice total: $5,170.00") {
			t.Fatalf("evidence context missing from the prompt")
		}
		return "## Summary\nThe invoice total is $5,170.00 [1].\n## Key Points\n- Total due: $5,170.00 [1]", nil
	}}

	dctx := domain.DistilledContext{
		Candidates: []domain.Candidate{{ChunkID: "c1", DocID: "d1", Text: longTextB}},
	}
	res, err := Synthesize(context.Background(), deps, synthState("What is the invoice total amount?"), dctx)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Refused {
		t.Fatalf("unexpected refusal: %q", res.AnswerText)
	}
	if !strings.Contains(res.AnswerText, "$5,170.00") {
		t.Fatalf("numeric value missing from the answer: %q", res.AnswerText)
	}
	if len(res.Citations) != 1 || res.Citations[0].ChunkID != "c1" {
		t.Fatalf("expected one bound citation to c1, got %+v", res.Citations)
	}
}

func TestSynthesizeDetectsModelRefusal(t *testing.T) {
	deps := testDeps(&fakeStore{})
	deps.LLM = &fakeLLM{textFn: func(_, _ string) (string, error) {
		return "## Summary\n" + domain.RefusalSentence + "\n## Key Points\n", nil
	}}
	dctx := domain.DistilledContext{
		Candidates: []domain.Candidate{{ChunkID: "c1", DocID: "d1", Text: longTextA}},
	}
	res, err := Synthesize(context.Background(), deps, synthState("What is the renewal bonus?"), dctx)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !res.Refused || res.AnswerText != domain.RefusalSentence {
		t.Fatalf("model refusal must normalize to the canonical sentence, got %q", res.AnswerText)
	}
}

func TestSynthesizeFieldLookupPostCheck(t *testing.T) {
	deps := testDeps(&fakeStore{})
	deps.LLM = &fakeLLM{textFn: func(_, _ string) (string, error) {
		// A hallucinated value that must not survive the post-check.
		return "## Summary\nThe SWIFT code is DEUTDEFF [1].\n## Key Points\n- SWIFT: DEUTDEFF [1]", nil
	}}
	dctx := domain.DistilledContext{
		Candidates: []domain.Candidate{{ChunkID: "c1", DocID: "d1", Text: longTextB}},
	}
	res, err := Synthesize(context.Background(), deps, synthState("What is the SWIFT code?"), dctx)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !res.Refused || res.AnswerText != domain.RefusalSentence {
		t.Fatalf("post-check should replace the invented value, got %q", res.AnswerText)
	}
}

func TestSynthesizeFieldLookupPassesWhenFieldPresent(t *testing.T) {
	deps := testDeps(&fakeStore{})
	deps.LLM = &fakeLLM{textFn: func(_, _ string) (string, error) {
		return "## Summary\nThe invoice total is $5,170.00 [1].\n## Key Points\n- $5,170.00 [1]", nil
	}}
	dctx := domain.DistilledContext{
		Candidates: []domain.Candidate{{ChunkID: "c1", DocID: "d1", Text: longTextB}},
	}
	res, err := Synthesize(context.Background(), deps, synthState("What is the invoice total amount?"), dctx)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Refused {
		t.Fatalf("field is present in the context, refusal is wrong: %q", res.AnswerText)
	}
}

func TestFieldLookupTokens(t *testing.T) {
	cases := []struct {
		query string
		want  []string
	}{
		{"What is the SWIFT code?", []string{"swift"}},
		{"What is the invoice total amount?", []string{"invoice", "total"}},
		{"What is the Agent fee for short-term rentals (<180 days)?", []string{"agent", "fee"}},
		{"Summarize the contract", nil},
	}
	for _, tc := range cases {
		got := fieldLookupTokens(tc.query)
		if len(got) != len(tc.want) {
			t.Fatalf("fieldLookupTokens(%q) = %v, want %v", tc.query, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("fieldLookupTokens(%q) = %v, want %v", tc.query, got, tc.want)
			}
		}
	}
}
