package steps

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

var questionWords = map[string]bool{
	"what": true, "who": true, "when": true, "where": true, "why": true,
	"how": true, "which": true, "is": true, "are": true, "was": true,
	"were": true, "the": true, "a": true, "an": true, "of": true,
	"trace": true, "summarize": true, "summarise": true, "list": true,
	"describe": true, "explain": true, "compare": true, "between": true,
	"and": true, "or": true, "for": true, "in": true, "on": true,
	"does": true, "do": true, "did": true,
}

// properNounPhrases pulls runs of capitalized words out of the query text.
// These are the name-match seeds for the entity-anchored routes.
func properNounPhrases(text string) []string {
	words := strings.Fields(text)
	var phrases []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			phrases = append(phrases, strings.Join(cur, " "))
			cur = nil
		}
	}
	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed == "" {
			flush()
			continue
		}
		first := []rune(trimmed)[0]
		if unicode.IsUpper(first) && !questionWords[strings.ToLower(trimmed)] {
			cur = append(cur, trimmed)
			continue
		}
		flush()
	}
	flush()
	return phrases
}

var hexIDRe = regexp.MustCompile(`^[0-9a-fA-F-]{12,}$`)

// isArtifactName reports whether an entity name is an extraction artifact
// rather than a real named thing: chunk-ID lookalikes, bare punctuation,
// single characters.
func isArtifactName(name string) bool {
	n := strings.TrimSpace(name)
	if len([]rune(n)) < 2 {
		return true
	}
	hasLetter := false
	for _, r := range n {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return true
	}
	if hexIDRe.MatchString(n) {
		return true
	}
	lower := strings.ToLower(n)
	if strings.HasPrefix(lower, "chunk_") || strings.HasPrefix(lower, "chunk-") || strings.Contains(n, "::") {
		return true
	}
	return false
}

// topEvidence converts ranked entities into the response's evidence list,
// keeping the top k.
func topEvidence(ranked []domain.ScoredEntity, k int) []domain.EvidenceNode {
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]domain.EvidenceNode, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, domain.EvidenceNode{EntityID: e.EntityID, Score: e.Score})
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
