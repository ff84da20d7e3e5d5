package steps

import (
	"context"
	"regexp"
	"strings"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
)

type SynthesisResult struct {
	AnswerText string
	Citations  []domain.Citation
	Refused    bool
}

// Synthesize turns a distilled context into a cited answer. An empty
// context refuses without calling the model; a model answer that contains
// the refusal sentence, or that fails the field-lookup post-check, is
// replaced by the canonical refusal verbatim.
func Synthesize(ctx context.Context, deps Deps, q *QueryState, dctx domain.DistilledContext) (SynthesisResult, error) {
	if len(dctx.Candidates) == 0 && dctx.CommunityPreamble == "" {
		return refusalResult(), nil
	}

	prompt := BuildSynthesisPrompt(q.Text, dctx, q.ResponseType)
	answer, err := deps.LLM.GenerateText(ctx, synthesisSystemPrompt, prompt, deps.Cfg.MaxOutputTokens)
	if err != nil {
		return SynthesisResult{}, err
	}

	if strings.Contains(answer, domain.RefusalSentence) {
		return refusalResult(), nil
	}

	if tokens := fieldLookupTokens(q.Text); len(tokens) > 0 && !contextCoversField(dctx, tokens) {
		deps.Log.Warn("field-lookup post-check failed, refusing",
			"query", q.Text, "missing_field_tokens", tokens)
		return refusalResult(), nil
	}

	return SynthesisResult{
		AnswerText: answer,
		Citations:  BindCitations(answer, dctx, deps.Log),
	}, nil
}

func refusalResult() SynthesisResult {
	return SynthesisResult{AnswerText: domain.RefusalSentence, Refused: true}
}

var fieldLookupRe = regexp.MustCompile(`(?i)^\s*what\s+(?:is|are|was|were)\s+the\s+(.+?)\s*\??\s*$`)

// fieldStopwords never carry the identity of the requested field.
var fieldStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "for": true,
	"in": true, "on": true, "to": true, "and": true, "or": true,
	// Generic field nouns: any corpus mentions amounts and numbers, so
	// their presence proves nothing about the specific field.
	"amount": true, "amounts": true, "value": true, "values": true,
	"number": true, "numbers": true, "code": true, "codes": true,
	"date": true, "dates": true, "id": true, "name": true,
}

// fieldLookupTokens extracts the significant tokens of a specific-field
// question ("what is the SWIFT code?" -> ["swift"]). A nil result means the
// question is not a field lookup and the post-check does not apply.
func fieldLookupTokens(queryText string) []string {
	m := fieldLookupRe.FindStringSubmatch(queryText)
	if m == nil {
		return nil
	}
	phrase := strings.ToLower(m[1])
	for _, sep := range []string{" of ", " for ", " in ", " on "} {
		if i := strings.Index(phrase, sep); i >= 0 {
			phrase = phrase[:i]
		}
	}
	var tokens []string
	for _, w := range strings.Fields(phrase) {
		w = strings.Trim(w, `"'().,;:`)
		if w == "" || fieldStopwords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// contextCoversField reports whether every significant field token appears
// in at least one candidate's normalized text.
func contextCoversField(dctx domain.DistilledContext, tokens []string) bool {
	texts := make([]string, 0, len(dctx.Candidates)+1)
	for _, c := range dctx.Candidates {
		texts = append(texts, textutil.NormalizeForMatch(c.Text))
	}
	if dctx.CommunityPreamble != "" {
		texts = append(texts, textutil.NormalizeForMatch(dctx.CommunityPreamble))
	}
	for _, tok := range tokens {
		found := false
		for _, t := range texts {
			if strings.Contains(t, tok) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
