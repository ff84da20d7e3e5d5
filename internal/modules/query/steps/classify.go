package steps

import (
	"context"
	"regexp"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

var (
	globalPatternRe  = regexp.MustCompile(`(?i)\b(each document|every document|all documents|summari[sz]e all|across)\b`)
	relationWordsRe  = regexp.MustCompile(`(?i)\b(between|connection|connections|relationship|relationships|linked|relates?)\b`)
	factoidOfFieldRe = regexp.MustCompile(`(?i)^\s*what\s+(is|are|was|were)\s+the\b`)
)

var routeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"route": map[string]any{
			"type": "string",
			"enum": []string{"vector", "local", "global", "drift"},
		},
	},
	"required":             []string{"route"},
	"additionalProperties": false,
}

const classifySystemPrompt = `You are a query router for a document question answering system. Pick exactly one route for the question:
- "vector": a precise factual lookup of a single value or field.
- "local": a question about one named entity and its immediate context.
- "global": a thematic question spanning many documents.
- "drift": a question that requires connecting facts across multiple hops or documents.
Respond with JSON only.`

// ClassifyRoute picks the retrieval route. Rules first, in fixed order, so
// repeated runs agree; the LLM only breaks ties for queries no rule claims,
// and any LLM failure falls back to the local route.
func ClassifyRoute(ctx context.Context, deps Deps, queryText string) (domain.Route, string) {
	if globalPatternRe.MatchString(queryText) {
		return domain.RouteGlobal, "rule:global-phrase"
	}
	if relationWordsRe.MatchString(queryText) || len(properNounPhrases(queryText)) >= 2 {
		return domain.RouteDrift, "rule:relation-or-multi-entity"
	}
	// Only the "what is/are the X" field-lookup shape is a factoid. Other
	// question words (who, when, where) name an entity and its context, which
	// the local route answers.
	if factoidOfFieldRe.MatchString(queryText) {
		return domain.RouteVector, "rule:factoid"
	}

	if deps.LLM != nil {
		out, err := deps.LLM.GenerateJSON(ctx, classifySystemPrompt,
			"Question: "+queryText, "route_choice", routeSchema)
		if err == nil {
			if r, ok := out["route"].(string); ok && domain.ValidRoute(r) {
				return domain.Route(r), "llm"
			}
		} else {
			deps.Log.Warn("route classification call failed, defaulting to local", "error", err)
		}
	}
	return domain.RouteLocal, "default:local"
}
