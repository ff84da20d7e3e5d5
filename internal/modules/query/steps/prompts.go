package steps

import (
	"fmt"
	"strings"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

const synthesisSystemPrompt = `You are a careful analyst answering questions strictly from the evidence context supplied by the user.

Rules:
- Answer only from the evidence context. If the context does not contain the exact information the question asks for, reply with exactly: "` + domain.RefusalSentence + `"
- Respect qualifiers in the question (time ranges, thresholds, categories). Never substitute a value that belongs to a different qualifier.
- Include numeric values verbatim as they appear in the evidence.
- When the question asks about obligations, clauses, or terms, enumerate each distinct item separately.
- Cite every factual claim with [N], where N is the number of the evidence block the claim comes from.

Output format, in markdown:
## Summary
Two to three short paragraphs, or the refusal sentence alone.
## Key Points
Bulleted list of distinct items, each with its [N] citations.`

// BuildSynthesisPrompt renders the distilled context as the user prompt:
// preamble, numbered evidence blocks, relationships, entity descriptions,
// then the output-shape tail. Block numbers are 1-based and match the
// distiller's candidate order, which citation binding relies on.
func BuildSynthesisPrompt(queryText string, dctx domain.DistilledContext, responseType domain.ResponseType) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(queryText)
	b.WriteString("\n\nEvidence Context:\n")

	if dctx.CommunityPreamble != "" {
		b.WriteString(dctx.CommunityPreamble)
		b.WriteString("\n")
	}

	for i, c := range dctx.Candidates {
		fmt.Fprintf(&b, "\n[%d] (document %s, section %s)\n%s\n", i+1, c.DocID, c.SectionID, c.Text)
	}

	if len(dctx.Relationships) > 0 {
		b.WriteString("\nEntity Relationships:\n")
		for _, r := range dctx.Relationships {
			b.WriteString(relationshipLine(r))
			b.WriteString("\n")
		}
	}
	if len(dctx.EntityDescriptions) > 0 {
		b.WriteString("\nEntity Descriptions:\n")
		for _, d := range dctx.EntityDescriptions {
			fmt.Fprintf(&b, "- %s: %s\n", d.EntityID, d.Description)
		}
	}

	b.WriteString("\n")
	if responseType == domain.ResponseDetailed {
		b.WriteString("Write a detailed answer: a thorough Summary section and an exhaustive Key Points list covering every relevant evidence block.")
	} else {
		b.WriteString("Write a concise answer: a short Summary section and the most important Key Points only.")
	}
	return b.String()
}

const decomposeSystemPrompt = `You break a multi-hop question into simpler sub-questions that can each be answered from a single document. Produce at most %d sub-questions, ordered from most to least central. Respond with JSON only.`

var decomposeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sub_questions": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"sub_questions"},
	"additionalProperties": false,
}
