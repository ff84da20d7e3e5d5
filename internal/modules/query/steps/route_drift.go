package steps

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/apierr"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
	"github.com/veridoc/veridoc-backend/internal/retrieval"
)

// RunDriftRoute decomposes a multi-hop question into sub-questions and runs
// the full seed-beam-trace-hybrid pipeline per sub-question, merging every
// candidate into one pool distilled once against the original query.
func RunDriftRoute(ctx context.Context, deps Deps, q *QueryState) (RouteResult, error) {
	subQs := decomposeQuery(ctx, deps, q.Text)

	embeds, err := embedSubQuestions(ctx, deps, q, subQs)
	if err != nil {
		return RouteResult{}, err
	}

	type subResult struct {
		cands  []domain.Candidate
		ranked []domain.ScoredEntity
	}
	results := make([]subResult, len(subQs))

	var mu sync.Mutex
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deps.Cfg.MaxConcurrent)
	for i := range subQs {
		g.Go(func() error {
			cands, ranked, err := runSubQuestion(gctx, deps, q.GroupID, subQs[i], embeds[i])
			if err != nil {
				deps.Log.Warn("sub-question retrieval failed", "sub_question", subQs[i], "error", err)
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			results[i] = subResult{cands: cands, ranked: ranked}
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return RouteResult{}, ctx.Err()
	}

	var pool []domain.Candidate
	combined := make(map[string]float64)
	for _, r := range results {
		pool = append(pool, r.cands...)
		for _, e := range r.ranked {
			combined[e.EntityID] += e.Score
		}
	}
	if len(pool) == 0 && failures == len(subQs) {
		return RouteResult{}, apierr.New(apierr.KindGraphUnavailable, "steps.RunDriftRoute",
			fmt.Sprintf("all %d sub-questions failed", len(subQs)))
	}

	merged := make([]domain.ScoredEntity, 0, len(combined))
	for _, id := range sortedKeys(combined) {
		merged = append(merged, domain.ScoredEntity{EntityID: id, Score: combined[id]})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].EntityID < merged[j].EntityID
	})

	rels, descs := fetchSideChannels(ctx, deps, q.GroupID, merged)

	dctx := Distill(deps, DistillInput{
		Candidates:         pool,
		QueryEmbedding:     q.Embedding,
		Relationships:      rels,
		EntityDescriptions: descs,
		TokenBudget:        q.TokenBudget,
	})

	res := RouteResult{
		Context:  dctx,
		Evidence: topEvidence(merged, deps.Cfg.EvidenceTopK),
	}
	if q.Debug {
		res.Trace = map[string]any{
			"sub_questions":        subQs,
			"pool_size":            len(pool),
			"traced_entities":      len(merged),
			"distilled_candidates": len(dctx.Candidates),
		}
	}
	return res, nil
}

// decomposeQuery asks the model for sub-questions; the original question is
// always first and any decomposition failure degrades to it alone.
func decomposeQuery(ctx context.Context, deps Deps, queryText string) []string {
	subQs := []string{queryText}
	seen := map[string]bool{textutil.NormalizeForMatch(queryText): true}

	out, err := deps.LLM.GenerateJSON(ctx,
		fmt.Sprintf(decomposeSystemPrompt, deps.Cfg.MaxSubQuestions-1),
		"Question: "+queryText, "sub_questions", decomposeSchema)
	if err != nil {
		deps.Log.Warn("query decomposition failed, using the original question only", "error", err)
		return subQs
	}
	raw, _ := out["sub_questions"].([]any)
	for _, v := range raw {
		if len(subQs) >= deps.Cfg.MaxSubQuestions {
			break
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		key := textutil.NormalizeForMatch(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		subQs = append(subQs, s)
	}
	return subQs
}

// embedSubQuestions embeds the decomposed sub-questions in one batch call,
// reusing the already computed embedding for the original question.
func embedSubQuestions(ctx context.Context, deps Deps, q *QueryState, subQs []string) ([][]float32, error) {
	embeds := make([][]float32, len(subQs))
	embeds[0] = q.Embedding
	if len(subQs) == 1 {
		return embeds, nil
	}
	vecs, err := deps.Embed.Embed(ctx, subQs[1:])
	if err != nil {
		return nil, err
	}
	copy(embeds[1:], vecs)
	return embeds, nil
}

// runSubQuestion executes the per-sub-question pipeline: seeds, beam walk,
// five-path trace, mentions expansion, hybrid retrieval. Entities found by
// the beam walk join the trace seeds with a per-hop damping decay.
func runSubQuestion(ctx context.Context, deps Deps, groupID, subQ string, emb []float32) ([]domain.Candidate, []domain.ScoredEntity, error) {
	seeds := identifySeeds(ctx, deps, groupID, subQ, emb)

	if len(seeds) > 0 {
		seedIDs := sortedKeys(seeds)
		paths, err := deps.Store.BeamExpand(ctx, groupID, seedIDs, emb, deps.Cfg.MaxHops, deps.Cfg.BeamWidth)
		if err != nil {
			deps.Log.Warn("beam walk failed, tracing from direct seeds only", "error", err)
		} else {
			for _, p := range paths {
				hops := len(p.Path) - 1
				if hops < 1 {
					continue
				}
				w := math.Pow(deps.Cfg.Damping, float64(hops))
				if w > seeds[p.EntityID] {
					seeds[p.EntityID] = w
				}
			}
		}
	}

	var ranked []domain.ScoredEntity
	var cands []domain.Candidate
	if len(seeds) > 0 {
		var err error
		ranked, err = deps.Store.PPRTraverse(ctx, groupID, seeds, retrieval.PPRConfig{
			Damping:   deps.Cfg.Damping,
			SimWeight: deps.Cfg.SimWeight,
			HubWeight: deps.Cfg.HubWeight,
		})
		if err != nil {
			deps.Log.Warn("sub-question trace failed", "error", err)
		} else {
			cands, err = ExpandMentions(ctx, deps, groupID, ranked)
			if err != nil {
				deps.Log.Warn("sub-question mentions expansion failed", "error", err)
				cands = nil
			}
		}
	}

	hybrid, err := RunHybrid(ctx, deps, groupID, subQ, emb)
	if err != nil {
		if len(cands) == 0 {
			return nil, nil, err
		}
		deps.Log.Warn("sub-question hybrid retrieval failed", "error", err)
	}
	return append(cands, hybrid...), ranked, nil
}
