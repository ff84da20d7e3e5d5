package steps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
)

// DistillInput is the candidate pool plus the optional side channels a
// route hands to the distiller.
type DistillInput struct {
	Candidates         []domain.Candidate
	QueryEmbedding     []float32
	Communities        []ScoredCommunity
	Relationships      []domain.Relationship
	EntityDescriptions []domain.EntityDescription
	TokenBudget        int
}

// Distill runs the fixed pipeline: exact dedup, noise filter, cross-source
// dedup, unified re-rank, token-budget truncation, preamble assembly, side
// channels. CPU only; deterministic for identical inputs and config.
func Distill(deps Deps, in DistillInput) domain.DistilledContext {
	cfg := deps.Cfg

	// 1. Exact dedup on canonicalized text, first occurrence wins.
	byHash := make(map[string]int)
	pool := make([]domain.Candidate, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		canon := textutil.Canonicalize(c.Text)
		h := textutil.HashText(canon)
		if prev, ok := byHash[h]; ok {
			pool[prev].Sources = mergeSources(pool[prev].Sources, c.Sources)
			continue
		}
		byHash[h] = len(pool)
		c.Text = canon
		pool = append(pool, c)
	}

	// 2. Noise filter on canonicalized text.
	filtered := pool[:0]
	for _, c := range pool {
		if isNoise(c.Text) {
			continue
		}
		filtered = append(filtered, c)
	}
	pool = filtered

	// 3. Cross-source dedup by chunk ID, highest base score wins.
	byChunk := make(map[string]int)
	merged := make([]domain.Candidate, 0, len(pool))
	for _, c := range pool {
		if prev, ok := byChunk[c.ChunkID]; ok {
			if c.BaseScore > merged[prev].BaseScore {
				c.Sources = mergeSources(merged[prev].Sources, c.Sources)
				c.EntityAnchors = mergeAnchors(merged[prev].EntityAnchors, c.EntityAnchors)
				merged[prev] = c
			} else {
				merged[prev].Sources = mergeSources(merged[prev].Sources, c.Sources)
				merged[prev].EntityAnchors = mergeAnchors(merged[prev].EntityAnchors, c.EntityAnchors)
			}
			continue
		}
		byChunk[c.ChunkID] = len(merged)
		merged = append(merged, c)
	}
	pool = merged

	// 4. Unified re-rank: blend cosine relevance with the min-max normalized
	// base score, then impose the final total order.
	minBase, maxBase := baseRange(pool)
	final := make([]float64, len(pool))
	for i, c := range pool {
		rerank := textutil.Cosine(in.QueryEmbedding, c.Embedding)
		norm := 1.0
		if maxBase > minBase {
			norm = (c.BaseScore - minBase) / (maxBase - minBase)
		}
		final[i] = cfg.RerankWeight*rerank + cfg.BaseWeight*norm
	}
	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if final[order[a]] != final[order[b]] {
			return final[order[a]] > final[order[b]]
		}
		return pool[order[a]].ChunkID < pool[order[b]].ChunkID
	})

	// 6 (assembled first so its tokens count against the budget). Preamble.
	preamble := buildPreamble(in.Communities, min(cfg.CommunityPreambleBudget, in.TokenBudget))
	preambleTokens := textutil.EstimateTokens(preamble)

	// 5. Token-budget truncation, never splitting a chunk.
	budget := in.TokenBudget
	used := preambleTokens
	out := domain.DistilledContext{CommunityPreamble: preamble}
	for rank, idx := range order {
		c := pool[idx]
		t := textutil.EstimateTokens(c.Text)
		if used+t > budget {
			break
		}
		used += t
		c.Rank = rank + 1
		c.BaseScore = final[idx]
		out.Candidates = append(out.Candidates, c)
	}

	// 7. Side channels fill the remaining budget.
	for _, r := range in.Relationships {
		if len(out.Relationships) >= cfg.MaxRelationships {
			break
		}
		t := textutil.EstimateTokens(relationshipLine(r))
		if used+t > budget {
			break
		}
		used += t
		out.Relationships = append(out.Relationships, r)
	}
	for _, d := range in.EntityDescriptions {
		if len(out.EntityDescriptions) >= cfg.MaxEntityDescriptions {
			break
		}
		t := textutil.EstimateTokens(d.Description)
		if used+t > budget {
			break
		}
		used += t
		out.EntityDescriptions = append(out.EntityDescriptions, d)
	}

	out.TotalTokens = used
	return out
}

// isNoise drops form labels, bare headings, and fragments too short to
// carry evidence. Operates on canonicalized text.
func isNoise(canon string) bool {
	n := len([]rune(canon))
	if n < 20 {
		return true
	}
	if n < 40 && strings.HasSuffix(canon, ":") {
		return true
	}
	if n < 50 && !strings.ContainsAny(canon, ".!?,;") {
		return true
	}
	return false
}

func mergeSources(a, b []domain.CandidateSource) []domain.CandidateSource {
	seen := make(map[domain.CandidateSource]bool, len(a)+len(b))
	out := make([]domain.CandidateSource, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeAnchors(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, lst := range [][]string{a, b} {
		for _, id := range lst {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

func baseRange(pool []domain.Candidate) (float64, float64) {
	if len(pool) == 0 {
		return 0, 0
	}
	minB, maxB := pool[0].BaseScore, pool[0].BaseScore
	for _, c := range pool[1:] {
		if c.BaseScore < minB {
			minB = c.BaseScore
		}
		if c.BaseScore > maxB {
			maxB = c.BaseScore
		}
	}
	return minB, maxB
}

func buildPreamble(comms []ScoredCommunity, tokenBudget int) string {
	if len(comms) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Thematic Overview\n")
	used := textutil.EstimateTokens("## Thematic Overview\n")
	added := 0
	for _, c := range comms {
		section := fmt.Sprintf("\n### %s\n%s\n", c.Title, c.Summary)
		t := textutil.EstimateTokens(section)
		if used+t > tokenBudget {
			break
		}
		used += t
		added++
		b.WriteString(section)
	}
	if added == 0 {
		return ""
	}
	return b.String()
}

func relationshipLine(r domain.Relationship) string {
	return fmt.Sprintf("%s -[%s]-> %s (%.2f)", r.Src, r.Predicate, r.Dst, r.Weight)
}
